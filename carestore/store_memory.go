// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps documents in process memory. Ordering and filtering follow
// PGStore: missing fields sort as JSON null, and values order
// null < string < number < boolean < array < object.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
	now  func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document), now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, doc Document) (Document, error) {
	if err := ValidateDocumentPath(doc.Path); err != nil {
		return Document{}, err
	}
	if !json.Valid(doc.Data) {
		return Document{}, ErrInvalidBody
	}
	doc.UpdatedAt = m.now().UTC()
	doc.Data = append(json.RawMessage(nil), doc.Data...)
	m.mu.Lock()
	m.docs[doc.Path] = doc
	m.mu.Unlock()
	return doc, nil
}

func (m *MemoryStore) Get(_ context.Context, path string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[path]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

type memRow struct {
	doc    Document
	fields map[string]any
}

func (m *MemoryStore) List(_ context.Context, q ListQuery) ([]Document, error) {
	if err := validateListQuery(q); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var rows []memRow
	for p, d := range m.docs {
		if CollectionOf(p) != q.Collection {
			continue
		}
		var fields map[string]any
		_ = json.Unmarshal(d.Data, &fields) // non-object bodies have no fields
		rows = append(rows, memRow{doc: d, fields: fields})
	}
	m.mu.RUnlock()

	rows = filterRows(rows, q.Filters)
	less := func(a, b memRow) bool {
		if q.OrderBy != "" {
			if c := compareJSON(a.fields[q.OrderBy], b.fields[q.OrderBy]); c != 0 {
				return c < 0
			}
		}
		return a.doc.Path < b.doc.Path
	}
	sort.Slice(rows, func(i, j int) bool {
		if q.Desc {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})

	start := 0
	if q.After != "" {
		found := false
		for i, r := range rows {
			if r.doc.Path == q.After {
				start, found = i+1, true
				break
			}
		}
		if !found {
			// The cursor may exist but be excluded by filters.
			m.mu.RLock()
			cur, ok := m.docs[q.After]
			m.mu.RUnlock()
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, q.After)
			}
			var fields map[string]any
			_ = json.Unmarshal(cur.Data, &fields)
			cr := memRow{doc: cur, fields: fields}
			start = sort.Search(len(rows), func(i int) bool {
				if q.Desc {
					return less(rows[i], cr)
				}
				return less(cr, rows[i])
			})
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	out := make([]Document, 0, limit)
	for i := start; i < len(rows) && len(out) < limit; i++ {
		out = append(out, rows[i].doc)
	}
	return out, nil
}

func filterRows(rows []memRow, filters map[string]string) []memRow {
	if len(filters) == 0 {
		return rows
	}
	out := rows[:0]
	for _, r := range rows {
		ok := true
		for k, v := range filters {
			if textOf(r.fields[k]) != v {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out
}

// textOf mirrors Postgres' body->>'field' rendering for scalar values.
func textOf(v any) string {
	switch x := v.(type) {
	case nil:
		return "\x00null" // never equal to a filter value
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

func jsonRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case string:
		return 1
	case float64:
		return 2
	case bool:
		return 3
	case []any:
		return 4
	default:
		return 5
	}
}

func compareJSON(a, b any) int {
	ra, rb := jsonRank(a), jsonRank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case string:
		return strings.Compare(x, b.(string))
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case nil:
		return 0
	default:
		ab, _ := json.Marshal(a)
		bb, _ := json.Marshal(b)
		return strings.Compare(string(ab), string(bb))
	}
}
