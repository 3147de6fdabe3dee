// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carequeue

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAction is returned when a queued action carries a type tag this build cannot replay.
	ErrUnknownAction = errors.New("unknown action type")
	// ErrDrainInProgress is returned by Syncer.Drain when another pass is already running.
	ErrDrainInProgress = errors.New("drain already in progress")
	// ErrOffline is returned by remotes that already know the device is offline.
	ErrOffline = errors.New("device is offline")
	// ErrNoIdentity is returned when an operation needs a signed-in user and there is none.
	ErrNoIdentity = errors.New("no signed-in user")
	// ErrQueueVersion is returned when the persisted queue was written by a newer format.
	ErrQueueVersion = errors.New("unsupported offline queue format version")
)

// Remote error codes. They match the codes written by the carestore HTTP handlers.
const (
	CodePermissionDenied = "permission-denied"
	CodeUnauthenticated  = "unauthenticated"
	CodeUnavailable      = "unavailable"
	CodeDeadlineExceeded = "deadline-exceeded"
	CodeInvalidArgument  = "invalid-argument"
	CodeNotFound         = "not-found"
	CodeInternal         = "internal"
)

// RemoteError is a failure reported by the remote document store.
type RemoteError struct {
	Status  int    // HTTP status, 0 when not transported over HTTP
	Code    string // one of the Code* constants
	Message string
}

func (e *RemoteError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("remote %s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("remote %s: %s", e.Code, e.Message)
}
