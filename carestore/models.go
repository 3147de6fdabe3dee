// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carestore

import (
	"encoding/json"
	"time"
)

// REST/JSON models for the document API

// Document is a stored JSON document addressed by its slash-separated path.
type Document struct {
	Path      string          `json:"path"`
	OwnerID   string          `json:"-"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ListQuery selects one page of a collection.
type ListQuery struct {
	Collection string            // odd number of path segments, e.g. "users/u1/vitals"
	Filters    map[string]string // equality on top-level fields, compared as text
	OrderBy    string            // top-level field; empty orders by path only
	Desc       bool
	After      string // path of the last document of the previous page
	Limit      int
}

// WriteResponse is returned by a successful PUT.
type WriteResponse struct {
	Path      string    `json:"path"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListResponse is one page of documents.
type ListResponse struct {
	Documents []Document `json:"documents"`
	HasMore   bool       `json:"has_more"`
	NextAfter string     `json:"next_after,omitempty"`
}

// SigninRequest asks the dev signin endpoint for a token.
type SigninRequest struct {
	UserID   string `json:"user"`
	DeviceID string `json:"device"`
	Role     string `json:"role,omitempty"`
}

// SigninResponse carries a freshly minted token.
type SigninResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
