package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateQueueNumber is returned when another insert claimed the same
	// department, day and queue number first.
	ErrDuplicateQueueNumber = errors.New("queue number already assigned")
	// ErrStatusChanged is returned when a conditional status update matched no row
	// because the entry is no longer in the expected status.
	ErrStatusChanged = errors.New("status changed concurrently")
)

// All repository interfaces in one file
type (
	DepartmentRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Department, error)
		List(ctx context.Context) ([]*model.Department, error)
	}

	TriageRepository interface {
		// Create inserts the assessment and its outbox events in one transaction.
		Create(ctx context.Context, assessment *model.TriageAssessment, events ...*model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.TriageAssessment, error)
		// Update persists the assessment only while it is still ACTIVE and
		// unchanged since prevUpdatedAt; otherwise it returns ErrStatusChanged.
		Update(ctx context.Context, assessment *model.TriageAssessment, prevUpdatedAt time.Time, events ...*model.OutboxEvent) error
		List(ctx context.Context, filters *model.TriageFilters) ([]*model.TriageAssessment, error)
		ListActive(ctx context.Context) ([]*model.TriageAssessment, error)
	}

	// NewEntryFunc fills in the fields that depend on the assigned queue number
	// and returns the outbox events to store with the entry.
	NewEntryFunc func(entry *model.QueueEntry, queueNumber int) ([]*model.OutboxEvent, error)

	// ResequenceFunc orders a department's active entries and returns the
	// estimates to store for its waiting entries.
	ResequenceFunc func(active []*model.QueueEntry) []model.StartEstimate

	QueueRepository interface {
		// CreateNext assigns the next queue number for the entry's department and
		// queue date and inserts the entry, all inside one transaction.
		CreateNext(ctx context.Context, entry *model.QueueEntry, fill NewEntryFunc) error
		Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error)
		// ListActive returns WAITING and IN_PROGRESS entries ordered by priority
		// descending then queue number ascending.
		ListActive(ctx context.Context, departmentID uuid.UUID) ([]*model.QueueEntry, error)
		// CountByStatus counts the department's entries for one queue day.
		CountByStatus(ctx context.Context, departmentID uuid.UUID, day time.Time, status model.QueueStatus) (int, error)
		// TransitionStatus updates the entry only if it is still in status from.
		TransitionStatus(ctx context.Context, entry *model.QueueEntry, from model.QueueStatus, events ...*model.OutboxEvent) error
		// Resequence reads the active entries and stores fn's estimates in one
		// transaction serialised per department.
		Resequence(ctx context.Context, departmentID uuid.UUID, fn ResequenceFunc) ([]model.StartEstimate, error)
		// UpdateWaitingPriority sets the priority of every WAITING entry for the
		// triage assessment that was not given an explicit priority, and returns
		// the affected departments.
		UpdateWaitingPriority(ctx context.Context, triageID uuid.UUID, priority int) ([]uuid.UUID, error)
		RecentDurations(ctx context.Context, departmentID uuid.UUID, limit int) ([]float64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending leases up to limit due events so concurrent relays skip them.
		ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filters *model.AuditLogFilters) ([]*model.AuditLog, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}
)
