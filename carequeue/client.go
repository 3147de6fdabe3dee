// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package carequeue is the offline write queue and synchronization core of
// the care app client. User writes that fail while the device is offline are
// queued durably per user and replayed in order once connectivity returns.
// It also provides a paginated cache for remote list views.
package carequeue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config holds configuration for the client.
type Config struct {
	DispatchTimeout      time.Duration   // bound on each replayed write, e.g. 30s
	SyncedNoticeDebounce time.Duration   // minimum gap between "synced" notices, e.g. 3s
	Classifier           Classifier      // nil uses DefaultClassifier
	Observer             DrainObserver   // optional per-pass hook
	Connectivity         *Signal[bool]   // nil creates one starting online
	Identity             *Signal[string] // nil creates one starting signed out
	Logger               *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		DispatchTimeout:      30 * time.Second,
		SyncedNoticeDebounce: 3 * time.Second,
	}
}

// Client ties the queue, dispatcher, sync loop and page cache together.
type Client struct {
	Queue        *Queue
	Remote       Remote
	Notices      *Notices
	Pages        *PageCache
	Connectivity *Signal[bool]
	Identity     *Signal[string]

	config     *Config
	logger     *slog.Logger
	classifier Classifier
	dispatcher *Dispatcher
	syncer     *Syncer
}

// SubmitOutcome reports what Submit did with an action.
type SubmitOutcome int

const (
	// Written means the remote write succeeded immediately.
	Written SubmitOutcome = iota
	// Queued means the action was stored for replay.
	Queued
)

// NewClient creates a client persisting into storage and writing through remote.
func NewClient(storage Storage, remote Remote, config *Config) (*Client, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if remote == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	classifier := config.Classifier
	if classifier == nil {
		classifier = DefaultClassifier{}
	}
	connectivity := config.Connectivity
	if connectivity == nil {
		connectivity = NewSignal(true)
	}
	identity := config.Identity
	if identity == nil {
		identity = NewSignal("")
	}

	c := &Client{
		Queue:        NewQueue(storage, logger),
		Remote:       remote,
		Notices:      NewNotices(logger),
		Pages:        NewPageCache(remote, logger),
		Connectivity: connectivity,
		Identity:     identity,
		config:       config,
		logger:       logger,
		classifier:   classifier,
		dispatcher:   NewDispatcher(NewRemoteReplayer(remote), config.DispatchTimeout),
	}
	c.syncer = NewSyncer(c.Queue, c.dispatcher, connectivity, identity, SyncerConfig{
		Classifier:           classifier,
		Notifier:             c.Notices,
		Observer:             config.Observer,
		SyncedNoticeDebounce: config.SyncedNoticeDebounce,
		Logger:               logger,
	})
	return c, nil
}

// Syncer returns the client's sync loop.
func (c *Client) Syncer() *Syncer { return c.syncer }

// Start launches the background sync loop.
func (c *Client) Start(ctx context.Context) error { return c.syncer.Start(ctx) }

// Stop stops the background sync loop.
func (c *Client) Stop() { c.syncer.Stop() }

// SyncNow runs one drain pass for the signed-in user.
func (c *Client) SyncNow(ctx context.Context) (DrainResult, error) { return c.syncer.Drain(ctx) }

// SignIn sets the current identity, which triggers a drain for that user.
func (c *Client) SignIn(userID string) { c.Identity.Set(userID) }

// SignOut clears the current identity. Queued actions stay stored for the user.
func (c *Client) SignOut() { c.Identity.Set("") }

// SetOnline records a connectivity change.
func (c *Client) SetOnline(online bool) { c.Connectivity.Set(online) }

// EnqueueOfflineAction stores action for later replay and returns its queue id ("" if dropped).
func (c *Client) EnqueueOfflineAction(ctx context.Context, userID string, action Action) string {
	return c.Queue.Enqueue(ctx, userID, action)
}

// ListOfflineActions returns userID's queued actions in insertion order.
func (c *Client) ListOfflineActions(ctx context.Context, userID string) []QueuedAction {
	return c.Queue.List(ctx, userID)
}

// RemoveOfflineAction removes a queued action. Unknown ids are ignored.
func (c *Client) RemoveOfflineAction(ctx context.Context, id string) error {
	return c.Queue.Remove(ctx, id)
}

// IsProbablyOfflineError classifies err with the client's classifier.
func (c *Client) IsProbablyOfflineError(err error) bool {
	return c.classifier.Classify(err) == ClassOffline
}

// IsPermissionError classifies err with the client's classifier.
func (c *Client) IsPermissionError(err error) bool {
	return c.classifier.Classify(err) == ClassPermission
}

// Submit writes action for userID, queueing it instead when the device is
// offline or the write fails with an offline-classified error. Other errors
// are returned without queueing.
func (c *Client) Submit(ctx context.Context, userID string, action Action) (SubmitOutcome, error) {
	if userID == "" {
		return Written, ErrNoIdentity
	}
	if action == nil {
		return Written, fmt.Errorf("action cannot be nil")
	}
	// Fix generated ids now so a queued replay targets the same documents.
	prepared, err := action.prepare(time.Now().UTC())
	if err != nil {
		return Written, err
	}

	if !c.Connectivity.Get() {
		return c.enqueueAfter(ctx, userID, prepared, ErrOffline)
	}
	err = c.dispatcher.Dispatch(ctx, QueuedAction{UserID: userID, Type: prepared.Type(), Payload: prepared})
	if err == nil {
		return Written, nil
	}
	if c.classifier.Classify(err) == ClassOffline {
		return c.enqueueAfter(ctx, userID, prepared, err)
	}
	return Written, err
}

func (c *Client) enqueueAfter(ctx context.Context, userID string, action Action, cause error) (SubmitOutcome, error) {
	if id := c.Queue.Enqueue(ctx, userID, action); id == "" {
		return Written, fmt.Errorf("failed to queue %s: %w", action.Type(), cause)
	}
	c.logger.Info("Write queued for replay", "user_id", userID, "type", action.Type(), "cause", cause)
	return Queued, nil
}
