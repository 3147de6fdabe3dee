// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carequeue

import (
	"context"
	"encoding/json"
	"time"
)

// Remote is the remote document store the replayer and list cache talk to.
type Remote interface {
	// Write creates or replaces the document at path.
	Write(ctx context.Context, path string, doc any) error
	// List returns at most req.Limit documents of a collection after req.After.
	List(ctx context.Context, req ListRequest) ([]Document, error)
}

// ListRequest selects one page of a collection.
type ListRequest struct {
	Collection string            // e.g. "users/u1/vitals"
	Filters    map[string]string // equality filters on top-level fields
	OrderBy    string            // top-level field, empty orders by path
	Desc       bool
	After      string // path of the last document of the previous page
	Limit      int
}

// Document is one stored document.
type Document struct {
	Path      string          `json:"path"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}
