// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carequeue

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// ErrorClass is the replay-relevant category of a write failure.
type ErrorClass int

const (
	// ClassUnknown failures halt the pass and keep the action queued.
	ClassUnknown ErrorClass = iota
	// ClassOffline failures are transient; the action is retried on the next pass.
	ClassOffline
	// ClassPermission failures are terminal; the action is dropped.
	ClassPermission
)

func (c ErrorClass) String() string {
	switch c {
	case ClassOffline:
		return "offline"
	case ClassPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// Classifier maps a write failure to an ErrorClass.
type Classifier interface {
	Classify(err error) ErrorClass
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(err error) ErrorClass

func (f ClassifierFunc) Classify(err error) ErrorClass { return f(err) }

// DefaultClassifier inspects typed remote errors first, then transport errors,
// and finally falls back to matching the error message.
type DefaultClassifier struct{}

var (
	permissionMarkers = []string{
		"permission-denied",
		"permission denied",
		"missing or insufficient permissions",
		"forbidden",
	}
	offlineMarkers = []string{
		"offline",
		"unavailable",
		"network",
		"failed to fetch",
		"connection refused",
		"connection reset",
		"timeout",
		"no such host",
	}
)

func (DefaultClassifier) Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		switch remoteErr.Code {
		case CodePermissionDenied:
			return ClassPermission
		case CodeUnavailable, CodeDeadlineExceeded:
			return ClassOffline
		default:
			return ClassUnknown
		}
	}

	if errors.Is(err, ErrOffline) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassOffline
	}

	var urlErr *url.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &urlErr) || errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return ClassOffline
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassOffline
	}

	msg := strings.ToLower(err.Error())
	for _, m := range permissionMarkers {
		if strings.Contains(msg, m) {
			return ClassPermission
		}
	}
	for _, m := range offlineMarkers {
		if strings.Contains(msg, m) {
			return ClassOffline
		}
	}
	return ClassUnknown
}

// IsPermissionError reports whether err is a terminal authorization failure.
func IsPermissionError(err error) bool {
	return DefaultClassifier{}.Classify(err) == ClassPermission
}

// IsProbablyOfflineError reports whether err looks like a connectivity failure.
func IsProbablyOfflineError(err error) bool {
	return DefaultClassifier{}.Classify(err) == ClassOffline
}
