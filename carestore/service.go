// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ServiceConfig holds configuration for the store service.
type ServiceConfig struct {
	MaxPageSize  int // upper bound on a list page (0 = MaxPageSize)
	MaxBodyBytes int // upper bound on a document body (0 = DefaultMaxBodyBytes)

	StageMetrics    StageMetricsRecorder
	LogStageTimings bool
}

// StoreService applies access rules and caching around a DocumentStore.
type StoreService struct {
	store  DocumentStore
	rules  Rules
	cache  *ListCache
	config ServiceConfig
	logger *slog.Logger
}

// NewStoreService wires a service. rules defaults to OwnerRules and cache may
// be nil.
func NewStoreService(store DocumentStore, rules Rules, cache *ListCache, config *ServiceConfig, logger *slog.Logger) (*StoreService, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if rules == nil {
		rules = OwnerRules{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := ServiceConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = MaxPageSize
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &StoreService{store: store, rules: rules, cache: cache, config: cfg, logger: logger}, nil
}

// Put writes body at path on behalf of p.
func (s *StoreService) Put(ctx context.Context, p Principal, path string, body json.RawMessage) (WriteResponse, error) {
	total := s.stageStart()
	if err := ValidateDocumentPath(path); err != nil {
		return WriteResponse{}, err
	}
	if len(body) > s.config.MaxBodyBytes {
		return WriteResponse{}, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body))
	}
	if !json.Valid(body) {
		return WriteResponse{}, ErrInvalidBody
	}

	start := s.stageStart()
	err := s.rules.CanWrite(p, path, body)
	s.observeStage(ctx, MetricsOpWrite, MetricsStageRules, start, 1, err != nil)
	if err == nil {
		err = s.checkExistingOwner(ctx, p, path)
	}
	if err != nil {
		return WriteResponse{}, err
	}

	start = s.stageStart()
	doc, err := s.store.Put(ctx, Document{Path: path, OwnerID: ownerOf(p, path), Data: body})
	s.observeStage(ctx, MetricsOpWrite, MetricsStageStore, start, 1, err != nil)
	if err != nil {
		return WriteResponse{}, err
	}

	start = s.stageStart()
	if err := s.cache.Invalidate(ctx, CollectionOf(path)); err != nil {
		s.logger.Warn("Failed to invalidate list cache", "collection", CollectionOf(path), "error", err)
	}
	s.observeStage(ctx, MetricsOpWrite, MetricsStageCacheDrop, start, 1, false)
	s.observeStage(ctx, MetricsOpWrite, MetricsStageTotal, total, 1, false)

	s.logger.Debug("Document written", "path", path, "user_id", p.UserID, "device_id", p.DeviceID)
	return WriteResponse{Path: doc.Path, UpdatedAt: doc.UpdatedAt}, nil
}

// Get reads one document on behalf of p.
func (s *StoreService) Get(ctx context.Context, p Principal, path string) (Document, error) {
	if err := ValidateDocumentPath(path); err != nil {
		return Document{}, err
	}
	if err := s.rules.CanRead(p, CollectionOf(path)); err != nil {
		return Document{}, err
	}
	return s.store.Get(ctx, path)
}

// List returns one page of q.Collection on behalf of p. HasMore is exact:
// the store is asked for one row beyond the limit.
func (s *StoreService) List(ctx context.Context, p Principal, q ListQuery) (ListResponse, error) {
	total := s.stageStart()
	if err := validateListQuery(q); err != nil {
		return ListResponse{}, err
	}
	if err := s.rules.CanRead(p, q.Collection); err != nil {
		return ListResponse{}, err
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > s.config.MaxPageSize {
		q.Limit = s.config.MaxPageSize
	}

	start := s.stageStart()
	resp, version, ok := s.cache.Get(ctx, q)
	if ok {
		s.observeStage(ctx, MetricsOpList, MetricsStageCacheHit, start, len(resp.Documents), false)
		return resp, nil
	}

	start = s.stageStart()
	lookahead := q
	lookahead.Limit = q.Limit + 1
	docs, err := s.store.List(ctx, lookahead)
	s.observeStage(ctx, MetricsOpList, MetricsStageStore, start, len(docs), err != nil)
	if err != nil {
		return ListResponse{}, err
	}

	resp = ListResponse{Documents: docs}
	if len(docs) > q.Limit {
		resp.Documents = docs[:q.Limit]
		resp.HasMore = true
	}
	if resp.Documents == nil {
		resp.Documents = []Document{}
	}
	if n := len(resp.Documents); n > 0 {
		resp.NextAfter = resp.Documents[n-1].Path
	}

	start = s.stageStart()
	if err := s.cache.Set(ctx, q, version, resp); err != nil {
		s.logger.Warn("Failed to fill list cache", "collection", q.Collection, "error", err)
	}
	s.observeStage(ctx, MetricsOpList, MetricsStageCacheFill, start, len(resp.Documents), false)
	s.observeStage(ctx, MetricsOpList, MetricsStageTotal, total, len(resp.Documents), false)
	return resp, nil
}

// checkExistingOwner rejects overwriting a document outside users/ that was
// created by someone else. Paths under users/{uid} are owned by uid.
func (s *StoreService) checkExistingOwner(ctx context.Context, p Principal, path string) error {
	if strings.HasPrefix(path, RootUsers+"/") {
		return nil
	}
	existing, err := s.store.Get(ctx, path)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.OwnerID != p.UserID:
		return denied("%s belongs to another user", path)
	}
	return nil
}

// ownerOf attributes a document to the user subtree it lives in, or to the
// writer for shared roots.
func ownerOf(p Principal, path string) string {
	segs := strings.SplitN(path, "/", 3)
	if segs[0] == RootUsers && len(segs) >= 2 {
		return segs[1]
	}
	return p.UserID
}
