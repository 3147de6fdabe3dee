// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carestore

// Error codes written in ErrorResponse.Error. Clients classify failures by them.
const (
	CodePermissionDenied = "permission-denied"
	CodeUnauthenticated  = "unauthenticated"
	CodeInvalidArgument  = "invalid-argument"
	CodeNotFound         = "not-found"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

// Roles carried in the JWT "role" claim.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Top-level collections.
const (
	RootUsers    = "users"
	RootFeedback = "feedback"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 500
	// DefaultMaxBodyBytes bounds a single document body.
	DefaultMaxBodyBytes = 256 << 10
)
