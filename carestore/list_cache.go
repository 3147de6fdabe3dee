// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carestore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultListCacheTTL bounds how long a cached page may be served.
const DefaultListCacheTTL = 2 * time.Minute

// listVersionTTL keeps a collection version alive well past any page cached
// under it.
const listVersionTTL = 24 * time.Hour

// ListCache is a cache-aside store of list pages in Redis. Page keys carry a
// per-collection version that every write bumps, so a page read from the
// store before a write can never be served after it. Page keys are also
// recorded in a per-collection set so a write can free them. A nil
// *ListCache is a valid disabled cache.
type ListCache struct {
	redis  redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// cachedPage is the msgpack form of a ListResponse.
type cachedPage struct {
	Documents []cachedDoc `msgpack:"d"`
	HasMore   bool        `msgpack:"m"`
	NextAfter string      `msgpack:"n"`
}

type cachedDoc struct {
	Path      string `msgpack:"p"`
	OwnerID   string `msgpack:"o"`
	Data      []byte `msgpack:"b"`
	UpdatedAt int64  `msgpack:"u"`
}

// NewListCache wraps client. A nil client yields a disabled cache.
func NewListCache(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *ListCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultListCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ListCache{redis: client, ttl: ttl, prefix: "carestore:", logger: logger}
}

func (c *ListCache) pageKey(q ListQuery, version int64) string {
	v := url.Values{}
	v.Set("c", q.Collection)
	v.Set("v", strconv.FormatInt(version, 10))
	v.Set("o", q.OrderBy)
	v.Set("d", strconv.FormatBool(q.Desc))
	v.Set("a", q.After)
	v.Set("l", strconv.Itoa(q.Limit))
	for k, f := range q.Filters {
		v.Set("f."+k, f)
	}
	sum := sha1.Sum([]byte(v.Encode()))
	return c.prefix + "page:" + hex.EncodeToString(sum[:])
}

func (c *ListCache) indexKey(collection string) string {
	return c.prefix + "idx:" + collection
}

func (c *ListCache) versionKey(collection string) string {
	return c.prefix + "ver:" + collection
}

// Get returns a cached page for q along with the collection version it was
// looked up under. On a miss the caller reads the store and passes that
// version to Set. A negative version means the cache is unusable.
func (c *ListCache) Get(ctx context.Context, q ListQuery) (ListResponse, int64, bool) {
	if c == nil || c.redis == nil {
		return ListResponse{}, -1, false
	}
	version, err := c.redis.Get(ctx, c.versionKey(q.Collection)).Int64()
	if errors.Is(err, redis.Nil) {
		version, err = 0, nil
	}
	if err != nil {
		c.logger.Warn("List cache version read failed", "collection", q.Collection, "error", err)
		return ListResponse{}, -1, false
	}
	data, err := c.redis.Get(ctx, c.pageKey(q, version)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("List cache read failed", "collection", q.Collection, "error", err)
		}
		return ListResponse{}, version, false
	}
	var page cachedPage
	if err := msgpack.Unmarshal(data, &page); err != nil {
		return ListResponse{}, version, false
	}
	resp := ListResponse{HasMore: page.HasMore, NextAfter: page.NextAfter}
	resp.Documents = make([]Document, 0, len(page.Documents))
	for _, d := range page.Documents {
		resp.Documents = append(resp.Documents, Document{
			Path:      d.Path,
			OwnerID:   d.OwnerID,
			Data:      d.Data,
			UpdatedAt: time.UnixMicro(d.UpdatedAt).UTC(),
		})
	}
	return resp, version, true
}

// Set stores resp as the page for q under version, as returned by Get. A page
// stored under a version that a write has since bumped is never read.
func (c *ListCache) Set(ctx context.Context, q ListQuery, version int64, resp ListResponse) error {
	if c == nil || c.redis == nil || version < 0 {
		return nil
	}
	page := cachedPage{HasMore: resp.HasMore, NextAfter: resp.NextAfter}
	for _, d := range resp.Documents {
		page.Documents = append(page.Documents, cachedDoc{
			Path:      d.Path,
			OwnerID:   d.OwnerID,
			Data:      d.Data,
			UpdatedAt: d.UpdatedAt.UnixMicro(),
		})
	}
	data, err := msgpack.Marshal(&page)
	if err != nil {
		return err
	}
	key, idx := c.pageKey(q, version), c.indexKey(q.Collection)
	_, err = c.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, data, c.ttl)
		p.SAdd(ctx, idx, key)
		p.Expire(ctx, idx, c.ttl)
		return nil
	})
	return err
}

// Invalidate bumps the version of collection and drops its cached pages.
func (c *ListCache) Invalidate(ctx context.Context, collection string) error {
	if c == nil || c.redis == nil {
		return nil
	}
	ver := c.versionKey(collection)
	if _, err := c.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, ver)
		p.Expire(ctx, ver, max(listVersionTTL, 2*c.ttl))
		return nil
	}); err != nil {
		return err
	}
	idx := c.indexKey(collection)
	keys, err := c.redis.SMembers(ctx, idx).Result()
	if err != nil {
		return err
	}
	keys = append(keys, idx)
	return c.redis.Del(ctx, keys...).Err()
}
