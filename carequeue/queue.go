// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carequeue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// QueueStorageKey is the storage key holding the whole offline queue.
	QueueStorageKey = "carequeue.offline_actions"
	// queueCorruptKeyPrefix, followed by a unix-nano timestamp, receives the
	// raw bytes of an unreadable queue before it is reset.
	queueCorruptKeyPrefix = QueueStorageKey + ".corrupt."

	queueFormatVersion = 1
)

type queueEnvelope struct {
	Version int            `json:"version"`
	Actions []QueuedAction `json:"actions"`
}

// Queue is the durable, per-user FIFO of offline actions. The full list is
// stored under one key; every read filters by user.
type Queue struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	mu sync.Mutex // serializes read-modify-write cycles
}

// NewQueue creates a queue over storage. A nil logger uses slog.Default().
func NewQueue(storage Storage, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		storage: storage,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Enqueue appends action for userID and persists the queue. It returns the new
// entry id, or "" if the action was rejected or could not be persisted. It
// never fails the caller: problems are logged and the enqueue is dropped.
func (q *Queue) Enqueue(ctx context.Context, userID string, action Action) (id string) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Offline enqueue panicked", "user_id", userID, "panic", r)
			id = ""
		}
	}()

	if userID == "" {
		q.logger.Warn("Offline enqueue skipped: empty user id")
		return ""
	}
	if action == nil {
		q.logger.Warn("Offline enqueue skipped: nil action", "user_id", userID)
		return ""
	}
	now := q.now().UTC()
	prepared, err := action.prepare(now)
	if err != nil {
		q.logger.Warn("Offline enqueue skipped: invalid action", "user_id", userID, "type", action.Type(), "error", err)
		return ""
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	actions, err := q.load(ctx)
	if err != nil {
		q.logger.Error("Offline enqueue dropped: failed to load queue", "user_id", userID, "type", action.Type(), "error", err)
		return ""
	}
	entry := QueuedAction{
		ID:         q.newID(),
		UserID:     userID,
		Type:       prepared.Type(),
		Payload:    prepared,
		EnqueuedAt: now,
	}
	if err := q.save(ctx, append(actions, entry)); err != nil {
		q.logger.Error("Offline enqueue dropped: failed to persist queue", "user_id", userID, "type", entry.Type, "error", err)
		return ""
	}
	q.logger.Debug("Queued offline action", "user_id", userID, "action_id", entry.ID, "type", entry.Type)
	return entry.ID
}

// List returns the queued actions for userID in insertion order. An empty
// userID returns every user's actions. Read failures are logged and yield an
// empty list.
func (q *Queue) List(ctx context.Context, userID string) []QueuedAction {
	q.mu.Lock()
	actions, err := q.load(ctx)
	q.mu.Unlock()
	if err != nil {
		q.logger.Warn("Failed to read offline queue", "error", err)
		return nil
	}
	if userID == "" {
		return actions
	}
	out := make([]QueuedAction, 0, len(actions))
	for _, a := range actions {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of actions queued for userID.
func (q *Queue) Len(ctx context.Context, userID string) int {
	return len(q.List(ctx, userID))
}

// Remove deletes the entry with id. Removing an unknown id is a no-op.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions, err := q.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load offline queue: %w", err)
	}
	kept := actions[:0]
	found := false
	for _, a := range actions {
		if a.ID == id {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return nil
	}
	if err := q.save(ctx, kept); err != nil {
		return fmt.Errorf("failed to persist offline queue: %w", err)
	}
	return nil
}

// load reads the persisted queue. Callers must hold q.mu.
func (q *Queue) load(ctx context.Context) ([]QueuedAction, error) {
	data, found, err := q.storage.Get(ctx, QueueStorageKey)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if !found || len(data) == 0 {
		return nil, nil
	}

	// Unversioned layout: a bare array of entries.
	if data[0] == '[' {
		var actions []QueuedAction
		if err := json.Unmarshal(data, &actions); err != nil {
			return q.resetCorrupt(ctx, data, err)
		}
		return actions, nil
	}

	var env queueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return q.resetCorrupt(ctx, data, err)
	}
	if env.Version > queueFormatVersion {
		return nil, fmt.Errorf("%w: stored %d, supported %d", ErrQueueVersion, env.Version, queueFormatVersion)
	}
	return env.Actions, nil
}

// resetCorrupt moves unreadable queue bytes aside so the queue can keep working.
func (q *Queue) resetCorrupt(ctx context.Context, data []byte, cause error) ([]QueuedAction, error) {
	backupKey := corruptBackupKey(q.now())
	q.logger.Error("Offline queue is unreadable, moving it aside", "key", backupKey, "error", cause)
	if err := q.storage.Set(ctx, backupKey, data); err != nil {
		return nil, fmt.Errorf("failed to back up corrupt queue: %w", err)
	}
	if err := q.storage.Delete(ctx, QueueStorageKey); err != nil {
		return nil, fmt.Errorf("failed to reset corrupt queue: %w", err)
	}
	return nil, nil
}

func corruptBackupKey(at time.Time) string {
	return queueCorruptKeyPrefix + strconv.FormatInt(at.UnixNano(), 10)
}

// save persists actions. Callers must hold q.mu.
func (q *Queue) save(ctx context.Context, actions []QueuedAction) error {
	if actions == nil {
		actions = []QueuedAction{}
	}
	data, err := json.Marshal(queueEnvelope{Version: queueFormatVersion, Actions: actions})
	if err != nil {
		return fmt.Errorf("failed to marshal offline queue: %w", err)
	}
	return q.storage.Set(ctx, QueueStorageKey, data)
}
