// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carequeue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultPageSize is used when a Query does not set PageSize.
const DefaultPageSize = 20

// Query describes a paginated list of one collection.
type Query struct {
	Collection string
	Filters    map[string]string
	OrderBy    string
	Desc       bool
	PageSize   int
}

func (q Query) pageSize() int {
	if q.PageSize <= 0 {
		return DefaultPageSize
	}
	return q.PageSize
}

// Key returns the canonical cache key: equal queries produce equal keys
// regardless of filter map ordering.
func (q Query) Key() string {
	v := url.Values{}
	for k, val := range q.Filters {
		v.Set("f."+k, val)
	}
	if q.OrderBy != "" {
		v.Set("order_by", q.OrderBy)
	}
	if q.Desc {
		v.Set("desc", "true")
	}
	v.Set("limit", strconv.Itoa(q.pageSize()))
	return q.Collection + "?" + v.Encode() // Encode sorts by key
}

// Page is one fetched page.
type Page struct {
	Documents []Document
	Cursor    string // path of the last document, "" for an empty page
}

type pagedEntry struct {
	pages   []Page
	hasMore bool
	loaded  bool
	gen     uint64
}

func (e *pagedEntry) cursor() string {
	for i := len(e.pages) - 1; i >= 0; i-- {
		if e.pages[i].Cursor != "" {
			return e.pages[i].Cursor
		}
	}
	return ""
}

// PageCache accumulates fetched pages per query key. Fetches for the same key
// and position are shared between concurrent callers.
type PageCache struct {
	remote Remote
	logger *slog.Logger
	group  singleflight.Group

	mu      sync.Mutex
	entries map[string]*pagedEntry
	gens    map[string]uint64
}

// NewPageCache creates a cache reading from remote.
func NewPageCache(remote Remote, logger *slog.Logger) *PageCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageCache{
		remote:  remote,
		logger:  logger,
		entries: make(map[string]*pagedEntry),
		gens:    make(map[string]uint64),
	}
}

// Snapshot returns the concatenated documents of all pages fetched for q.
func (c *PageCache) Snapshot(q Query) (docs []Document, hasMore bool, loaded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[q.Key()]
	if e == nil {
		return nil, false, false
	}
	for _, p := range e.pages {
		docs = append(docs, p.Documents...)
	}
	return docs, e.hasMore, e.loaded
}

// Load fetches the first page of q unless it is already cached.
func (c *PageCache) Load(ctx context.Context, q Query) error {
	key := q.Key()
	c.mu.Lock()
	if e := c.entries[key]; e != nil && e.loaded {
		c.mu.Unlock()
		return nil
	}
	gen := c.gens[key]
	c.mu.Unlock()
	return c.fetch(ctx, q, key, gen, true)
}

// LoadMore fetches the page after the last cached one. It is a no-op when the
// last fetch returned a short page. The first page is loaded if missing.
func (c *PageCache) LoadMore(ctx context.Context, q Query) error {
	key := q.Key()
	c.mu.Lock()
	e := c.entries[key]
	gen := c.gens[key]
	c.mu.Unlock()
	if e == nil || !e.loaded {
		return c.fetch(ctx, q, key, gen, true)
	}
	if !e.hasMore {
		return nil
	}
	return c.fetch(ctx, q, key, gen, false)
}

// Refresh drops every cached page of q and fetches page one again.
func (c *PageCache) Refresh(ctx context.Context, q Query) error {
	key := q.Key()
	c.Invalidate(q)
	c.mu.Lock()
	gen := c.gens[key]
	c.mu.Unlock()
	return c.fetch(ctx, q, key, gen, true)
}

// Invalidate drops every cached page of q. Results of fetches already in
// flight for the dropped generation are discarded.
func (c *PageCache) Invalidate(q Query) {
	key := q.Key()
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
}

// fetch loads one page. first selects page one; otherwise the page after the
// current cursor. The singleflight key covers generation and cursor so that
// concurrent callers share exactly one request per page.
func (c *PageCache) fetch(ctx context.Context, q Query, key string, gen uint64, first bool) error {
	after := ""
	if !first {
		c.mu.Lock()
		if e := c.entries[key]; e != nil {
			after = e.cursor()
		}
		c.mu.Unlock()
	}
	flightKey := fmt.Sprintf("%s#%d#%t#%s", key, gen, first, after)

	_, err, _ := c.group.Do(flightKey, func() (any, error) {
		limit := q.pageSize()
		docs, err := c.remote.List(ctx, ListRequest{
			Collection: q.Collection,
			Filters:    q.Filters,
			OrderBy:    q.OrderBy,
			Desc:       q.Desc,
			After:      after,
			Limit:      limit,
		})
		if err != nil {
			return nil, err
		}
		page := Page{Documents: docs}
		if len(docs) > 0 {
			page.Cursor = docs[len(docs)-1].Path
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gens[key] != gen {
			c.logger.Debug("Discarding page fetched before invalidation", "query", key)
			return nil, nil
		}
		e := c.entries[key]
		if first || e == nil {
			e = &pagedEntry{gen: gen}
			c.entries[key] = e
		} else if e.cursor() != after {
			// Another caller already appended this page.
			return nil, nil
		}
		e.pages = append(e.pages, page)
		e.hasMore = len(docs) == limit
		e.loaded = true
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", q.Collection, err)
	}
	return nil
}

// CollectionState is the view-facing state of a Collection.
type CollectionState[T any] struct {
	Items         []T
	IsLoading     bool
	IsLoadingMore bool
	HasMore       bool
	Err           error
}

// Collection binds one query at a time to a PageCache and decodes documents into T.
type Collection[T any] struct {
	cache  *PageCache
	logger *slog.Logger

	mu          sync.Mutex
	query       *Query
	loading     int // in-flight Bind and Refresh calls
	loadingMore int // in-flight LoadMore calls
	err         error
}

// NewCollection creates an unbound collection view.
func NewCollection[T any](cache *PageCache) *Collection[T] {
	return &Collection[T]{cache: cache, logger: cache.logger}
}

// Bind switches the collection to q. The first page is loaded on the first
// bind of a query; later binds of a cached query do not refetch.
func (c *Collection[T]) Bind(ctx context.Context, q Query) error {
	c.mu.Lock()
	c.query = &q
	c.err = nil
	c.loading++
	c.mu.Unlock()

	err := c.cache.Load(ctx, q)
	c.finish(q, err, false)
	return err
}

// LoadMore fetches the next page. No-op when unbound or when no more pages exist.
func (c *Collection[T]) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.query == nil {
		c.mu.Unlock()
		return nil
	}
	q := *c.query
	c.mu.Unlock()
	if _, hasMore, loaded := c.cache.Snapshot(q); loaded && !hasMore {
		return nil
	}

	c.mu.Lock()
	c.loadingMore++
	c.mu.Unlock()
	err := c.cache.LoadMore(ctx, q)
	c.finish(q, err, true)
	return err
}

// Refresh discards the cached pages of the bound query and reloads page one.
func (c *Collection[T]) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.query == nil {
		c.mu.Unlock()
		return nil
	}
	q := *c.query
	c.loading++
	c.mu.Unlock()

	err := c.cache.Refresh(ctx, q)
	c.finish(q, err, false)
	return err
}

func (c *Collection[T]) finish(q Query, err error, more bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if more {
		c.loadingMore--
	} else {
		c.loading--
	}
	if c.query != nil && c.query.Key() == q.Key() {
		c.err = err
	}
}

// State returns the accumulated items and loading flags.
func (c *Collection[T]) State() CollectionState[T] {
	c.mu.Lock()
	st := CollectionState[T]{IsLoading: c.loading > 0, IsLoadingMore: c.loadingMore > 0, Err: c.err}
	q := c.query
	c.mu.Unlock()
	if q == nil {
		return st
	}

	docs, hasMore, _ := c.cache.Snapshot(*q)
	st.HasMore = hasMore
	st.Items = make([]T, 0, len(docs))
	for _, d := range docs {
		var item T
		if err := json.Unmarshal(d.Data, &item); err != nil {
			c.logger.Warn("Skipping undecodable document", "path", d.Path, "error", err)
			continue
		}
		st.Items = append(st.Items, item)
	}
	return st
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
