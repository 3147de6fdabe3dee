// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carestore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrInvalidPath   = errors.New("invalid document path")
	ErrInvalidCursor = errors.New("cursor document not found in collection")
	ErrInvalidField  = errors.New("invalid field name")
	ErrInvalidBody   = errors.New("document body must be valid JSON")
	ErrBodyTooLarge  = errors.New("document body too large")
)

// DocumentStore persists documents. Put is an upsert so that repeated writes
// of the same path are idempotent.
type DocumentStore interface {
	Put(ctx context.Context, doc Document) (Document, error)
	Get(ctx context.Context, path string) (Document, error)
	List(ctx context.Context, q ListQuery) ([]Document, error)
}

var fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// splitPath validates a slash-separated path and returns its segments.
func splitPath(path string) ([]string, error) {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" || s == "." || s == ".." || len(s) > 256 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs, nil
}

// ValidateDocumentPath checks that path addresses a document (collection/id pairs).
func ValidateDocumentPath(path string) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segs)%2 != 0 {
		return fmt.Errorf("%w: %q is a collection, not a document", ErrInvalidPath, path)
	}
	return nil
}

// ValidateCollectionPath checks that path addresses a collection.
func ValidateCollectionPath(path string) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segs)%2 != 1 {
		return fmt.Errorf("%w: %q is a document, not a collection", ErrInvalidPath, path)
	}
	return nil
}

// CollectionOf returns the parent collection of a document path.
func CollectionOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

func validateListQuery(q ListQuery) error {
	if err := ValidateCollectionPath(q.Collection); err != nil {
		return err
	}
	if q.OrderBy != "" && !fieldNameRe.MatchString(q.OrderBy) {
		return fmt.Errorf("%w: %q", ErrInvalidField, q.OrderBy)
	}
	for k := range q.Filters {
		if !fieldNameRe.MatchString(k) {
			return fmt.Errorf("%w: %q", ErrInvalidField, k)
		}
	}
	if q.After != "" && CollectionOf(q.After) != q.Collection {
		return fmt.Errorf("%w: %q", ErrInvalidCursor, q.After)
	}
	return nil
}
