package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

const (
	EventTriageAssessed        = "triage.assessed"
	EventTriageCategoryChanged = "triage.category_changed"
	EventTriageStatusChanged   = "triage.status_changed"
	EventReassessmentDue       = "triage.reassessment_due"
	EventQueueEntryCreated     = "queue.entry_created"
	EventQueueStatusChanged    = "queue.status_changed"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}

// NewOutboxEvent marshals payload into a pending event.
func NewOutboxEvent(eventType string, payload interface{}, now time.Time) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   data,
		Status:    OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type CategoryChangedPayload struct {
	TriageID  uuid.UUID      `json:"triage_id"`
	PatientID uuid.UUID      `json:"patient_id"`
	From      TriageCategory `json:"from"`
	To        TriageCategory `json:"to"`
	Score     int            `json:"score"`
	Manual    bool           `json:"manual"`
	ChangedAt time.Time      `json:"changed_at"`
}

type ReassessmentDuePayload struct {
	TriageID       uuid.UUID      `json:"triage_id"`
	PatientID      uuid.UUID      `json:"patient_id"`
	Category       TriageCategory `json:"category"`
	LastAssessedAt time.Time      `json:"last_assessed_at"`
	OverdueMinutes float64        `json:"overdue_minutes"`
}

type QueueStatusChangedPayload struct {
	EntryID      uuid.UUID   `json:"entry_id"`
	DepartmentID uuid.UUID   `json:"department_id"`
	From         QueueStatus `json:"from"`
	To           QueueStatus `json:"to"`
	ChangedAt    time.Time   `json:"changed_at"`
}
