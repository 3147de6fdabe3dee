// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrPermissionDenied is returned when a principal may not access a path.
var ErrPermissionDenied = errors.New("missing or insufficient permissions")

// Principal is the authenticated caller.
type Principal struct {
	UserID   string
	DeviceID string
	Role     string
}

// IsAdmin reports whether p carries the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Rules decides access to document paths.
type Rules interface {
	CanWrite(p Principal, path string, body json.RawMessage) error
	CanRead(p Principal, collection string) error
}

// OwnerRules grants each user their own subtree under users/{uid}. Feedback
// may be created by any user for themselves and read only by admins.
type OwnerRules struct{}

func denied(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, fmt.Sprintf(format, args...))
}

func (OwnerRules) CanWrite(p Principal, path string, body json.RawMessage) error {
	if p.UserID == "" {
		return denied("anonymous write")
	}
	segs := strings.Split(path, "/")
	switch segs[0] {
	case RootUsers:
		if len(segs) < 2 || segs[1] != p.UserID {
			return denied("user %s cannot write %s", p.UserID, path)
		}
		return nil
	case RootFeedback:
		var fb struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(body, &fb); err != nil || fb.UserID != p.UserID {
			return denied("feedback must be submitted as its author")
		}
		return nil
	default:
		return denied("no write access to %s", segs[0])
	}
}

func (OwnerRules) CanRead(p Principal, collection string) error {
	if p.UserID == "" {
		return denied("anonymous read")
	}
	segs := strings.Split(collection, "/")
	switch segs[0] {
	case RootUsers:
		if p.IsAdmin() {
			return nil
		}
		if len(segs) < 2 || segs[1] != p.UserID {
			return denied("user %s cannot read %s", p.UserID, collection)
		}
		return nil
	case RootFeedback:
		if !p.IsAdmin() {
			return denied("feedback is admin-only")
		}
		return nil
	default:
		return denied("no read access to %s", segs[0])
	}
}
