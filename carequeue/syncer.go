// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carequeue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SyncState is the state of the synchronization loop.
type SyncState int32

const (
	StateIdle SyncState = iota
	StateDraining
	// StateStopped means the last pass halted early; remaining actions wait for the next trigger.
	StateStopped
)

func (s SyncState) String() string {
	switch s {
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// StopReason explains how a drain pass ended.
type StopReason string

const (
	ReasonCompleted       StopReason = "completed"
	ReasonEmpty           StopReason = "empty"
	ReasonNoIdentity      StopReason = "no-identity"
	ReasonOffline         StopReason = "offline"
	ReasonError           StopReason = "error"
	ReasonCancelled       StopReason = "cancelled"
	ReasonIdentityChanged StopReason = "identity-changed"
)

// DrainResult summarizes one drain pass.
type DrainResult struct {
	UserID    string
	Attempted int // dispatches started
	Removed   int // replayed successfully and removed
	Dropped   int // removed after a permission failure
	Reason    StopReason
	LastErr   error
	Duration  time.Duration
}

// Halted reports whether the pass stopped before reaching the end of its snapshot.
func (r DrainResult) Halted() bool {
	switch r.Reason {
	case ReasonOffline, ReasonError, ReasonCancelled, ReasonIdentityChanged:
		return true
	}
	return false
}

// DrainObserver receives the result of every pass.
type DrainObserver interface {
	ObserveDrain(ctx context.Context, result DrainResult)
}

// DrainObserverFunc adapts a function to DrainObserver.
type DrainObserverFunc func(ctx context.Context, result DrainResult)

func (f DrainObserverFunc) ObserveDrain(ctx context.Context, result DrainResult) { f(ctx, result) }

// SyncerConfig holds the collaborators and tuning of a Syncer.
type SyncerConfig struct {
	Classifier           Classifier // nil uses DefaultClassifier
	Notifier             Notifier   // nil drops notices
	Observer             DrainObserver
	SyncedNoticeDebounce time.Duration
	Logger               *slog.Logger
}

// Syncer drains the offline queue for the signed-in user whenever the device
// comes online, the identity changes, the loop starts, or Trigger is called.
type Syncer struct {
	queue        *Queue
	dispatcher   *Dispatcher
	connectivity Observable[bool]
	identity     Observable[string]
	classifier   Classifier
	notifier     Notifier
	observer     DrainObserver
	debounce     time.Duration
	logger       *slog.Logger
	now          func() time.Time

	state atomic.Int32

	noticeMu   sync.Mutex
	lastSynced time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}
	passes sync.WaitGroup
}

// NewSyncer wires a sync loop. connectivity reports whether the device is
// online; identity reports the signed-in user id ("" when signed out).
func NewSyncer(queue *Queue, dispatcher *Dispatcher, connectivity Observable[bool], identity Observable[string], cfg SyncerConfig) *Syncer {
	if cfg.Classifier == nil {
		cfg.Classifier = DefaultClassifier{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NotifierFunc(func(Notice) {})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Syncer{
		queue:        queue,
		dispatcher:   dispatcher,
		connectivity: connectivity,
		identity:     identity,
		classifier:   cfg.Classifier,
		notifier:     cfg.Notifier,
		observer:     cfg.Observer,
		debounce:     cfg.SyncedNoticeDebounce,
		logger:       cfg.Logger,
		now:          time.Now,
		wake:         make(chan struct{}, 1),
	}
}

// State returns the current loop state.
func (s *Syncer) State() SyncState {
	return SyncState(s.state.Load())
}

// Drain runs one pass for the current user. It returns ErrDrainInProgress if
// a pass is already running.
func (s *Syncer) Drain(ctx context.Context) (DrainResult, error) {
	for {
		cur := s.state.Load()
		if SyncState(cur) == StateDraining {
			return DrainResult{}, ErrDrainInProgress
		}
		if s.state.CompareAndSwap(cur, int32(StateDraining)) {
			break
		}
	}

	start := s.now()
	res := s.drain(ctx)
	res.Duration = s.now().Sub(start)

	final := StateIdle
	if res.Halted() {
		final = StateStopped
	}
	s.state.Store(int32(final))

	if s.observer != nil {
		s.observer.ObserveDrain(ctx, res)
	}
	return res, nil
}

func (s *Syncer) drain(ctx context.Context) DrainResult {
	userID := s.identity.Get()
	res := DrainResult{UserID: userID}
	if userID == "" {
		res.Reason = ReasonNoIdentity
		return res
	}
	if !s.connectivity.Get() {
		res.Reason = ReasonOffline
		res.LastErr = ErrOffline
		return res
	}

	snapshot := s.queue.List(ctx, userID)
	if len(snapshot) == 0 {
		res.Reason = ReasonEmpty
		return res
	}
	s.logger.Debug("Draining offline queue", "user_id", userID, "count", len(snapshot))

	// A started dispatch runs to completion so its queue entry is settled;
	// cancellation is honored between actions.
	dispatchCtx := context.WithoutCancel(ctx)
	for _, qa := range snapshot {
		if err := ctx.Err(); err != nil {
			res.Reason, res.LastErr = ReasonCancelled, err
			return res
		}
		if !s.connectivity.Get() {
			res.Reason, res.LastErr = ReasonOffline, ErrOffline
			return res
		}
		if s.identity.Get() != userID {
			res.Reason = ReasonIdentityChanged
			return res
		}

		res.Attempted++
		err := s.dispatcher.Dispatch(dispatchCtx, qa)
		if err == nil {
			if rmErr := s.queue.Remove(dispatchCtx, qa.ID); rmErr != nil {
				// The write is idempotent, so a leftover entry is replayed harmlessly later.
				s.logger.Warn("Failed to remove replayed action", "user_id", userID, "action_id", qa.ID, "error", rmErr)
			}
			res.Removed++
			continue
		}

		class := s.classifier.Classify(err)
		res.LastErr = err
		switch class {
		case ClassPermission:
			s.logger.Warn("Dropping offline action: permission denied",
				"user_id", userID, "action_id", qa.ID, "type", qa.Type, "error", err)
			if rmErr := s.queue.Remove(dispatchCtx, qa.ID); rmErr != nil {
				s.logger.Warn("Failed to remove dropped action", "user_id", userID, "action_id", qa.ID, "error", rmErr)
			}
			res.Dropped++
			s.notifier.Notify(Notice{
				Kind:       NoticePermissionDenied,
				UserID:     userID,
				ActionID:   qa.ID,
				ActionType: qa.Type,
				Err:        err,
			})
		case ClassOffline:
			s.logger.Info("Offline action replay halted: offline",
				"user_id", userID, "action_id", qa.ID, "type", qa.Type, "error", err)
			res.Reason = ReasonOffline
			return res
		default:
			s.logger.Warn("Offline action replay halted: unexpected error",
				"user_id", userID, "action_id", qa.ID, "type", qa.Type, "error", err)
			res.Reason = ReasonError
			return res
		}
	}

	res.Reason = ReasonCompleted
	if res.Removed > 0 {
		s.notifySynced(userID, res.Removed)
	}
	return res
}

func (s *Syncer) notifySynced(userID string, count int) {
	s.noticeMu.Lock()
	now := s.now()
	if s.debounce > 0 && !s.lastSynced.IsZero() && now.Sub(s.lastSynced) < s.debounce {
		s.noticeMu.Unlock()
		s.logger.Debug("Synced notice suppressed", "user_id", userID, "count", count)
		return
	}
	s.lastSynced = now
	s.noticeMu.Unlock()
	s.notifier.Notify(Notice{Kind: NoticeSynced, UserID: userID, Count: count})
}

// Start launches the event loop. It drains immediately if the device is
// online with a signed-in user, then on every offline-to-online transition,
// every change to a non-empty identity, and every Trigger.
func (s *Syncer) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("syncer already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	connCh, unsubConn := s.connectivity.Subscribe()
	idCh, unsubID := s.identity.Subscribe()
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		defer unsubConn()
		defer unsubID()
		s.run(ctx, connCh, idCh)
	}(s.done)
	return nil
}

// Stop cancels the loop and waits for it and any running pass to exit. A pass
// in progress finishes its current dispatch and starts no further ones.
func (s *Syncer) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.passes.Wait()
}

// Trigger requests a drain pass from the running loop. It never blocks.
func (s *Syncer) Trigger() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Syncer) run(ctx context.Context, connCh <-chan bool, idCh <-chan string) {
	wasOnline := s.connectivity.Get()
	lastUser := s.identity.Get()
	s.kick(ctx, "start")

	for {
		select {
		case <-ctx.Done():
			return
		case online := <-connCh:
			if online && !wasOnline {
				s.kick(ctx, "online")
			}
			wasOnline = online
		case user := <-idCh:
			if user != "" && user != lastUser {
				s.kick(ctx, "identity")
			}
			lastUser = user
		case <-s.wake:
			s.kick(ctx, "manual")
		}
	}
}

// kick starts a pass in the background. It is a no-op while a pass is running.
func (s *Syncer) kick(ctx context.Context, trigger string) {
	if s.State() == StateDraining || !s.connectivity.Get() || s.identity.Get() == "" {
		return
	}
	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		res, err := s.Drain(ctx)
		if errors.Is(err, ErrDrainInProgress) {
			return
		}
		if res.Reason != ReasonEmpty {
			s.logger.Info("Offline drain pass finished",
				"trigger", trigger,
				"user_id", res.UserID,
				"reason", res.Reason,
				"removed", res.Removed,
				"dropped", res.Dropped,
				"duration", res.Duration)
		}
		// A user switch mid-pass leaves the new user's trigger swallowed by the guard.
		if res.Reason == ReasonIdentityChanged && ctx.Err() == nil {
			s.Trigger()
		}
	}()
}
