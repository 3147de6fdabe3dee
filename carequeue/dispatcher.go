// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carequeue

import (
	"context"
	"fmt"
	"time"
)

// Replayer performs the remote write for each action variant.
type Replayer interface {
	CreateVital(ctx context.Context, userID string, a CreateVital) error
	LogMedication(ctx context.Context, userID string, a LogMedication) error
	CreateReminder(ctx context.Context, userID string, a CreateReminder) error
	SubmitFeedback(ctx context.Context, userID string, a SubmitFeedback) error
}

// Dispatcher routes a queued action to the matching Replayer method.
type Dispatcher struct {
	replayer Replayer
	timeout  time.Duration // per-action bound, 0 disables
}

// NewDispatcher creates a dispatcher. A positive timeout bounds each dispatch.
func NewDispatcher(replayer Replayer, timeout time.Duration) *Dispatcher {
	return &Dispatcher{replayer: replayer, timeout: timeout}
}

// Dispatch replays qa. Entries whose type is not known to this build return ErrUnknownAction.
func (d *Dispatcher) Dispatch(ctx context.Context, qa QueuedAction) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	switch a := qa.Payload.(type) {
	case CreateVital:
		return d.replayer.CreateVital(ctx, qa.UserID, a)
	case LogMedication:
		return d.replayer.LogMedication(ctx, qa.UserID, a)
	case CreateReminder:
		return d.replayer.CreateReminder(ctx, qa.UserID, a)
	case SubmitFeedback:
		return d.replayer.SubmitFeedback(ctx, qa.UserID, a)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, qa.Type)
	}
}

// RemoteReplayer writes actions to deterministic document paths so that a
// replay after a lost acknowledgement overwrites instead of duplicating.
type RemoteReplayer struct {
	remote Remote
}

// NewRemoteReplayer creates a replayer writing through remote.
func NewRemoteReplayer(remote Remote) *RemoteReplayer {
	return &RemoteReplayer{remote: remote}
}

// Document paths.
func VitalPath(userID, vitalID string) string {
	return "users/" + userID + "/vitals/" + vitalID
}

func MedicationLogPath(userID, medicationID, date string) string {
	return "users/" + userID + "/medications/" + medicationID + "/logs/" + date
}

func ReminderPath(userID, reminderID string) string {
	return "users/" + userID + "/reminders/" + reminderID
}

func FeedbackPath(feedbackID string) string {
	return "feedback/" + feedbackID
}

type vitalDocument struct {
	UserID string `json:"userId"`
	CreateVital
}

type medicationLogDocument struct {
	UserID string `json:"userId"`
	LogMedication
}

type reminderDocument struct {
	UserID string `json:"userId"`
	CreateReminder
}

type feedbackDocument struct {
	UserID string `json:"userId"`
	SubmitFeedback
}

func (r *RemoteReplayer) CreateVital(ctx context.Context, userID string, a CreateVital) error {
	return r.remote.Write(ctx, VitalPath(userID, a.VitalID), vitalDocument{UserID: userID, CreateVital: a})
}

func (r *RemoteReplayer) LogMedication(ctx context.Context, userID string, a LogMedication) error {
	return r.remote.Write(ctx, MedicationLogPath(userID, a.MedicationID, a.Date), medicationLogDocument{UserID: userID, LogMedication: a})
}

func (r *RemoteReplayer) CreateReminder(ctx context.Context, userID string, a CreateReminder) error {
	return r.remote.Write(ctx, ReminderPath(userID, a.ReminderID), reminderDocument{UserID: userID, CreateReminder: a})
}

func (r *RemoteReplayer) SubmitFeedback(ctx context.Context, userID string, a SubmitFeedback) error {
	return r.remote.Write(ctx, FeedbackPath(a.FeedbackID), feedbackDocument{UserID: userID, SubmitFeedback: a})
}
