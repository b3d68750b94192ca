package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	ActorID    *uuid.UUID      `json:"actor_id,omitempty" db:"actor_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Changes    json.RawMessage `json:"changes" db:"changes"`
	IPAddress  string          `json:"ip_address" db:"ip_address"`
	UserAgent  string          `json:"user_agent" db:"user_agent"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate       = "create"
	AuditActionUpdate       = "update"
	AuditActionStatusChange = "status_change"
	AuditActionOverride     = "override"

	// Entity types
	AuditEntityTriage     = "triage_assessment"
	AuditEntityQueueEntry = "queue_entry"
)

type AuditLogFilters struct {
	EntityType string
	EntityID   uuid.UUID
	Since      time.Time
	Pagination
}
