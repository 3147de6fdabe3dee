// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carequeue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActionType is the closed set of tags for queued user writes.
type ActionType string

const (
	ActionCreateVital    ActionType = "createVital"
	ActionLogMedication  ActionType = "logMedication"
	ActionCreateReminder ActionType = "createReminder"
	ActionSubmitFeedback ActionType = "submitFeedback"
)

// Action is a replayable user write. The set of implementations is closed:
// CreateVital, LogMedication, CreateReminder and SubmitFeedback.
type Action interface {
	Type() ActionType
	// prepare fills generated identifiers and validates required fields.
	prepare(now time.Time) (Action, error)
}

// CreateVital records a vital sign measurement.
type CreateVital struct {
	VitalID    string    `json:"vitalId"`
	Kind       string    `json:"kind"` // e.g. "heart_rate", "blood_pressure"
	Value      float64   `json:"value"`
	Secondary  *float64  `json:"secondary,omitempty"` // diastolic for blood pressure
	Unit       string    `json:"unit"`
	Notes      string    `json:"notes,omitempty"`
	MeasuredAt time.Time `json:"measuredAt"`
}

// LogMedication records that a scheduled dose was taken, skipped or missed on a given day.
type LogMedication struct {
	MedicationID string     `json:"medicationId"`
	Date         string     `json:"date"` // YYYY-MM-DD
	Status       string     `json:"status"`
	TakenAt      *time.Time `json:"takenAt,omitempty"`
}

// CreateReminder creates or replaces a reminder.
type CreateReminder struct {
	ReminderID string   `json:"reminderId"`
	Title      string   `json:"title"`
	Time       string   `json:"time"` // HH:MM local time
	Days       []string `json:"days,omitempty"`
	Enabled    bool     `json:"enabled"`
}

// SubmitFeedback sends in-app feedback.
type SubmitFeedback struct {
	FeedbackID string `json:"feedbackId"`
	Category   string `json:"category"`
	Message    string `json:"message"`
	Rating     int    `json:"rating,omitempty"`
}

func (CreateVital) Type() ActionType    { return ActionCreateVital }
func (LogMedication) Type() ActionType  { return ActionLogMedication }
func (CreateReminder) Type() ActionType { return ActionCreateReminder }
func (SubmitFeedback) Type() ActionType { return ActionSubmitFeedback }

func (a CreateVital) prepare(now time.Time) (Action, error) {
	if a.Kind == "" {
		return nil, fmt.Errorf("createVital: kind is required")
	}
	if a.VitalID == "" {
		a.VitalID = uuid.NewString()
	}
	if a.MeasuredAt.IsZero() {
		a.MeasuredAt = now
	}
	return a, nil
}

const (
	MedicationTaken   = "taken"
	MedicationSkipped = "skipped"
	MedicationMissed  = "missed"
)

func (a LogMedication) prepare(now time.Time) (Action, error) {
	if a.MedicationID == "" {
		return nil, fmt.Errorf("logMedication: medicationId is required")
	}
	switch a.Status {
	case MedicationTaken, MedicationSkipped, MedicationMissed:
	case "":
		a.Status = MedicationTaken
	default:
		return nil, fmt.Errorf("logMedication: invalid status %q", a.Status)
	}
	if a.Date == "" {
		a.Date = now.Format(time.DateOnly)
	} else if _, err := time.Parse(time.DateOnly, a.Date); err != nil {
		return nil, fmt.Errorf("logMedication: invalid date %q", a.Date)
	}
	return a, nil
}

func (a CreateReminder) prepare(time.Time) (Action, error) {
	if a.Title == "" {
		return nil, fmt.Errorf("createReminder: title is required")
	}
	if a.ReminderID == "" {
		a.ReminderID = uuid.NewString()
	}
	return a, nil
}

func (a SubmitFeedback) prepare(time.Time) (Action, error) {
	if a.Message == "" {
		return nil, fmt.Errorf("submitFeedback: message is required")
	}
	if a.FeedbackID == "" {
		a.FeedbackID = uuid.NewString()
	}
	return a, nil
}

// decodeAction turns a stored type tag and payload back into an Action.
func decodeAction(t ActionType, raw json.RawMessage) (Action, error) {
	switch t {
	case ActionCreateVital:
		var a CreateVital
		if err := unmarshalPayload(raw, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionLogMedication:
		var a LogMedication
		if err := unmarshalPayload(raw, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionCreateReminder:
		var a CreateReminder
		if err := unmarshalPayload(raw, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionSubmitFeedback:
		var a SubmitFeedback
		if err := unmarshalPayload(raw, &a); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, t)
	}
}

func unmarshalPayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// QueuedAction is one persisted entry of the offline queue.
type QueuedAction struct {
	ID         string
	UserID     string
	Type       ActionType
	Payload    Action // nil when the stored type tag is not known to this build
	EnqueuedAt time.Time

	raw json.RawMessage // stored payload, kept verbatim for entries that fail to decode
}

type storedAction struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Type       ActionType      `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

func (q QueuedAction) MarshalJSON() ([]byte, error) {
	payload := q.raw
	if q.Payload != nil {
		b, err := json.Marshal(q.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", q.Type, err)
		}
		payload = b
	}
	if payload == nil {
		payload = json.RawMessage("null")
	}
	return json.Marshal(storedAction{
		ID:         q.ID,
		UserID:     q.UserID,
		Type:       q.Type,
		Payload:    payload,
		EnqueuedAt: q.EnqueuedAt,
	})
}

// UnmarshalJSON never fails on an unknown or malformed payload; such entries
// keep their raw bytes and a nil Payload so they are preserved on rewrite.
func (q *QueuedAction) UnmarshalJSON(data []byte) error {
	var s storedAction
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*q = QueuedAction{
		ID:         s.ID,
		UserID:     s.UserID,
		Type:       s.Type,
		EnqueuedAt: s.EnqueuedAt,
		raw:        s.Payload,
	}
	if a, err := decodeAction(s.Type, s.Payload); err == nil {
		q.Payload = a
	}
	return nil
}
