// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package auth carries the authenticated caller through request contexts.
package auth

import (
	"context"
)

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	deviceIDKey contextKey = "device_id"
	roleKey     contextKey = "role"
)

// Identity is the caller extracted from a verified token.
type Identity struct {
	UserID   string
	DeviceID string
	Role     string
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, userIDKey, id.UserID)
	ctx = context.WithValue(ctx, deviceIDKey, id.DeviceID)
	return context.WithValue(ctx, roleKey, id.Role)
}

// FromContext returns the identity stored by WithIdentity. ok is false when
// no user is present.
func FromContext(ctx context.Context) (Identity, bool) {
	uid, ok := ctx.Value(userIDKey).(string)
	if !ok || uid == "" {
		return Identity{}, false
	}
	did, _ := ctx.Value(deviceIDKey).(string)
	role, _ := ctx.Value(roleKey).(string)
	return Identity{UserID: uid, DeviceID: did, Role: role}, true
}

// UserID returns just the user id from ctx.
func UserID(ctx context.Context) (string, bool) {
	id, ok := FromContext(ctx)
	return id.UserID, ok
}
