package carestore

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func putDoc(t *testing.T, s DocumentStore, path, body string) {
	t.Helper()
	_, err := s.Put(context.Background(), Document{Path: path, Data: json.RawMessage(body)})
	require.NoError(t, err)
}

func paths(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Path
	}
	return out
}

// seedVitals stores five heart-rate readings and one blood pressure reading.
func seedVitals(t *testing.T, s DocumentStore) {
	putDoc(t, s, "users/u1/vitals/a", `{"kind":"heart_rate","value":72}`)
	putDoc(t, s, "users/u1/vitals/b", `{"kind":"heart_rate","value":65}`)
	putDoc(t, s, "users/u1/vitals/c", `{"kind":"heart_rate","value":80}`)
	putDoc(t, s, "users/u1/vitals/d", `{"kind":"heart_rate","value":65}`)
	putDoc(t, s, "users/u1/vitals/e", `{"kind":"heart_rate"}`)
	putDoc(t, s, "users/u1/vitals/f", `{"kind":"blood_pressure","value":120}`)
	putDoc(t, s, "users/u2/vitals/a", `{"kind":"heart_rate","value":1}`)
	putDoc(t, s, "users/u1/medications/m1/logs/2025-01-01", `{"status":"taken"}`)
}

func listAll(t *testing.T, s DocumentStore, q ListQuery) []string {
	t.Helper()
	var out []string
	for i := 0; i < 20; i++ {
		docs, err := s.List(context.Background(), q)
		require.NoError(t, err)
		out = append(out, paths(docs)...)
		if len(docs) < q.Limit {
			return out
		}
		q.After = docs[len(docs)-1].Path
	}
	t.Fatalf("pagination did not terminate")
	return nil
}

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	doc, err := s.Put(ctx, Document{Path: "users/u1/vitals/v1", Data: json.RawMessage(`{"value":1}`)})
	require.NoError(t, err)
	require.False(t, doc.UpdatedAt.IsZero())

	got, err := s.Get(ctx, "users/u1/vitals/v1")
	require.NoError(t, err)
	require.JSONEq(t, `{"value":1}`, string(got.Data))

	_, err = s.Get(ctx, "users/u1/vitals/missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Put(ctx, Document{Path: "users/u1/vitals", Data: json.RawMessage(`{}`)})
	require.ErrorIs(t, err, ErrInvalidPath)
	_, err = s.Put(ctx, Document{Path: "users/u1/vitals/v2", Data: json.RawMessage(`{`)})
	require.ErrorIs(t, err, ErrInvalidBody)
}

func TestMemoryStoreListByPath(t *testing.T) {
	s := NewMemoryStore()
	seedVitals(t, s)

	got := listAll(t, s, ListQuery{Collection: "users/u1/vitals", Limit: 2})
	require.Equal(t, []string{
		"users/u1/vitals/a", "users/u1/vitals/b", "users/u1/vitals/c",
		"users/u1/vitals/d", "users/u1/vitals/e", "users/u1/vitals/f",
	}, got)

	got = listAll(t, s, ListQuery{Collection: "users/u1/vitals", Desc: true, Limit: 4})
	require.Equal(t, []string{
		"users/u1/vitals/f", "users/u1/vitals/e", "users/u1/vitals/d",
		"users/u1/vitals/c", "users/u1/vitals/b", "users/u1/vitals/a",
	}, got)
}

func TestMemoryStoreListOrderedWithTies(t *testing.T) {
	s := NewMemoryStore()
	seedVitals(t, s)

	// Missing values sort first as null; ties break by path.
	got := listAll(t, s, ListQuery{Collection: "users/u1/vitals", OrderBy: "value", Limit: 2})
	require.Equal(t, []string{
		"users/u1/vitals/e", "users/u1/vitals/b", "users/u1/vitals/d",
		"users/u1/vitals/a", "users/u1/vitals/c", "users/u1/vitals/f",
	}, got)

	got = listAll(t, s, ListQuery{Collection: "users/u1/vitals", OrderBy: "value", Desc: true, Limit: 3})
	require.Equal(t, []string{
		"users/u1/vitals/f", "users/u1/vitals/c", "users/u1/vitals/a",
		"users/u1/vitals/d", "users/u1/vitals/b", "users/u1/vitals/e",
	}, got)
}

func TestMemoryStoreListFilters(t *testing.T) {
	s := NewMemoryStore()
	seedVitals(t, s)

	got := listAll(t, s, ListQuery{
		Collection: "users/u1/vitals",
		Filters:    map[string]string{"kind": "heart_rate"},
		OrderBy:    "value",
		Limit:      10,
	})
	require.Equal(t, []string{
		"users/u1/vitals/e", "users/u1/vitals/b", "users/u1/vitals/d",
		"users/u1/vitals/a", "users/u1/vitals/c",
	}, got)

	// Numeric fields compare by their text form.
	docs, err := s.List(context.Background(), ListQuery{
		Collection: "users/u1/vitals",
		Filters:    map[string]string{"value": "65"},
		Limit:      10,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"users/u1/vitals/b", "users/u1/vitals/d"}, paths(docs))
}

func TestMemoryStoreListCursorOutsideFilter(t *testing.T) {
	s := NewMemoryStore()
	seedVitals(t, s)

	docs, err := s.List(context.Background(), ListQuery{
		Collection: "users/u1/vitals",
		Filters:    map[string]string{"kind": "heart_rate"},
		After:      "users/u1/vitals/c",
		Limit:      10,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"users/u1/vitals/d", "users/u1/vitals/e"}, paths(docs))

	// a is excluded by the filter but still positions the page.
	docs, err = s.List(context.Background(), ListQuery{
		Collection: "users/u1/vitals",
		Filters:    map[string]string{"kind": "blood_pressure"},
		After:      "users/u1/vitals/a",
		Limit:      10,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"users/u1/vitals/f"}, paths(docs))
}

func TestMemoryStoreListValidation(t *testing.T) {
	s := NewMemoryStore()
	seedVitals(t, s)
	ctx := context.Background()

	_, err := s.List(ctx, ListQuery{Collection: "users/u1"})
	require.ErrorIs(t, err, ErrInvalidPath)
	_, err = s.List(ctx, ListQuery{Collection: "users/u1/vitals", OrderBy: "value; drop"})
	require.ErrorIs(t, err, ErrInvalidField)
	_, err = s.List(ctx, ListQuery{Collection: "users/u1/vitals", Filters: map[string]string{"a b": "x"}})
	require.ErrorIs(t, err, ErrInvalidField)
	_, err = s.List(ctx, ListQuery{Collection: "users/u1/vitals", After: "users/u2/vitals/a"})
	require.ErrorIs(t, err, ErrInvalidCursor)
	_, err = s.List(ctx, ListQuery{Collection: "users/u1/vitals", After: "users/u1/vitals/zzz"})
	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestMemoryStoreListDefaultLimit(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < DefaultPageSize+5; i++ {
		putDoc(t, s, fmt.Sprintf("users/u1/reminders/r%02d", i), `{}`)
	}
	docs, err := s.List(context.Background(), ListQuery{Collection: "users/u1/reminders"})
	require.NoError(t, err)
	require.Len(t, docs, DefaultPageSize)
}

func TestDocumentPaths(t *testing.T) {
	require.NoError(t, ValidateDocumentPath("feedback/f1"))
	require.NoError(t, ValidateDocumentPath("users/u1/medications/m1/logs/2025-01-01"))
	for _, bad := range []string{"", "users", "/users/u1", "users/u1/", "users//u1/x", "users/../x/y"} {
		require.ErrorIs(t, ValidateDocumentPath(bad), ErrInvalidPath, bad)
	}
	require.NoError(t, ValidateCollectionPath("users/u1/vitals"))
	require.ErrorIs(t, ValidateCollectionPath("users/u1"), ErrInvalidPath)
	require.Equal(t, "users/u1/vitals", CollectionOf("users/u1/vitals/v1"))
	require.Equal(t, "", CollectionOf("users"))
}
