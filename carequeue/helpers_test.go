package carequeue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRemote is an in-memory Remote with injectable failures.
type fakeRemote struct {
	mu       sync.Mutex
	docs     map[string]json.RawMessage
	writes   []string // paths in write order
	lists    []ListRequest
	writeErr func(path string) error
	listErr  error
	listGate chan struct{} // when set, List blocks until it is closed
	onWrite  func(path string)

	// blockWrite, when set, runs before the write and fails it on error.
	blockWrite func(ctx context.Context, path string) error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{docs: make(map[string]json.RawMessage)}
}

func (f *fakeRemote) Write(ctx context.Context, path string, doc any) error {
	if f.onWrite != nil {
		f.onWrite(path)
	}
	if f.blockWrite != nil {
		if err := f.blockWrite(ctx, path); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		if err := f.writeErr(path); err != nil {
			return err
		}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	f.docs[path] = b
	f.writes = append(f.writes, path)
	return nil
}

func (f *fakeRemote) List(ctx context.Context, req ListRequest) ([]Document, error) {
	if f.listGate != nil {
		select {
		case <-f.listGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, req)
	if f.listErr != nil {
		return nil, f.listErr
	}
	prefix := req.Collection + "/"
	var paths []string
	for p := range f.docs {
		if strings.HasPrefix(p, prefix) && !strings.Contains(p[len(prefix):], "/") {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	var out []Document
	for _, p := range paths {
		if req.After != "" && p <= req.After {
			continue
		}
		out = append(out, Document{Path: p, Data: f.docs[p]})
		if req.Limit > 0 && len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRemote) put(path string, doc any) {
	b, _ := json.Marshal(doc)
	f.mu.Lock()
	f.docs[path] = b
	f.mu.Unlock()
}

func (f *fakeRemote) writtenPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeRemote) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists)
}

// failingStorage fails every operation.
type failingStorage struct{}

var errStorageDown = errors.New("storage unavailable")

func (failingStorage) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errStorageDown
}
func (failingStorage) Set(context.Context, string, []byte) error { return errStorageDown }
func (failingStorage) Delete(context.Context, string) error      { return errStorageDown }

func permissionErr() error {
	return &RemoteError{Status: 403, Code: CodePermissionDenied, Message: "Missing or insufficient permissions."}
}

func offlineErr() error {
	return &RemoteError{Status: 503, Code: CodeUnavailable, Message: "backend unavailable"}
}
