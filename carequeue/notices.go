// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carequeue

import (
	"log/slog"
	"sync"
)

// NoticeKind identifies a user-visible sync notice.
type NoticeKind string

const (
	// NoticeSynced follows a completed pass that replayed at least one action.
	NoticeSynced NoticeKind = "synced"
	// NoticePermissionDenied is emitted once per action dropped for lack of permission.
	NoticePermissionDenied NoticeKind = "permission-denied"
)

// Notice is delivered to the UI layer.
type Notice struct {
	Kind       NoticeKind
	UserID     string
	ActionID   string     // permission-denied only
	ActionType ActionType // permission-denied only
	Count      int        // synced only: actions replayed in the pass
	Err        error
}

// Notifier receives sync notices.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Notices fans notices out to registered handlers.
type Notices struct {
	mu        sync.RWMutex
	listeners map[NoticeKind][]func(Notice)
	all       []func(Notice)
	logger    *slog.Logger
}

// NewNotices creates an empty fan-out.
func NewNotices(logger *slog.Logger) *Notices {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notices{listeners: make(map[NoticeKind][]func(Notice)), logger: logger}
}

// On registers handler for one notice kind.
func (e *Notices) On(kind NoticeKind, handler func(Notice)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[kind] = append(e.listeners[kind], handler)
}

// OnAny registers handler for every notice.
func (e *Notices) OnAny(handler func(Notice)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, handler)
}

// Notify delivers n to its handlers. A panicking handler is logged and skipped.
func (e *Notices) Notify(n Notice) {
	e.mu.RLock()
	handlers := append(append([]func(Notice){}, e.listeners[n.Kind]...), e.all...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("Notice handler panicked", "kind", n.Kind, "panic", r)
				}
			}()
			h(n)
		}()
	}
}

// RemoveAll drops every handler.
func (e *Notices) RemoveAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[NoticeKind][]func(Notice))
	e.all = nil
}
