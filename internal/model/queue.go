package model

import (
	"time"

	"github.com/google/uuid"
)

type QueueStatus string

const (
	QueueStatusWaiting    QueueStatus = "WAITING"
	QueueStatusInProgress QueueStatus = "IN_PROGRESS"
	QueueStatusCompleted  QueueStatus = "COMPLETED"
	QueueStatusCancelled  QueueStatus = "CANCELLED"
)

func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusWaiting, QueueStatusInProgress, QueueStatusCompleted, QueueStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the entry can no longer change status.
func (s QueueStatus) Terminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusCancelled
}

type QueueEntry struct {
	Base
	TriageID              uuid.UUID   `db:"triage_id" json:"triage_id"`
	PatientID             uuid.UUID   `db:"patient_id" json:"patient_id"`
	DepartmentID          uuid.UUID   `db:"department_id" json:"department_id"`
	DoctorID              *uuid.UUID  `db:"doctor_id" json:"doctor_id,omitempty"`
	QueueDate             time.Time   `db:"queue_date" json:"queue_date"`
	QueueNumber           int         `db:"queue_number" json:"queue_number"`
	TokenNumber           string      `db:"token_number" json:"token_number"`
	Priority              int         `db:"priority" json:"priority"`
	PriorityOverride      bool        `db:"priority_override" json:"priority_override"`
	Status                QueueStatus `db:"status" json:"status"`
	CheckInTime           time.Time   `db:"check_in_time" json:"check_in_time"`
	EstimatedStartTime    *time.Time  `db:"estimated_start_time" json:"estimated_start_time,omitempty"`
	ActualStartTime       *time.Time  `db:"actual_start_time" json:"actual_start_time,omitempty"`
	CompletedAt           *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	ActualDurationMinutes *float64    `db:"actual_duration_minutes" json:"actual_duration_minutes,omitempty"`
}

// CreateQueueEntryRequest keeps the camelCase shape existing front desks post.
type CreateQueueEntryRequest struct {
	TriageID     uuid.UUID  `json:"triageId" binding:"required"`
	DepartmentID uuid.UUID  `json:"departmentId" binding:"required"`
	DoctorID     *uuid.UUID `json:"doctorId"`
	// Priority pins the entry; later triage category changes leave it alone.
	Priority *int `json:"priority" binding:"omitempty,min=0,max=3"`
}

type CreateQueueEntryResponse struct {
	Queue              *QueueEntry `json:"queue"`
	EstimatedStartTime time.Time   `json:"estimatedStartTime"`
	QueueNumber        int         `json:"queueNumber"`
	TokenNumber        string      `json:"tokenNumber"`
}

type UpdateQueueStatusRequest struct {
	Status QueueStatus `json:"status" binding:"required,queue_status"`
}

// StartEstimate is a recalculated estimated start time for one waiting entry.
type StartEstimate struct {
	EntryID            uuid.UUID `json:"entry_id"`
	Position           int       `json:"position"`
	EstimatedStartTime time.Time `json:"estimated_start_time"`
}

// DepartmentQueue is the ordered view of a department's active entries.
type DepartmentQueue struct {
	DepartmentID           uuid.UUID     `json:"department_id"`
	AverageConsultationMin float64       `json:"average_consultation_minutes"`
	InProgress             []*QueueEntry `json:"in_progress"`
	Waiting                []*QueueEntry `json:"waiting"`
	GeneratedAt            time.Time     `json:"generated_at"`
}
