package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
)

const selectQueueEntry = `
	SELECT id, triage_id, patient_id, department_id, doctor_id, queue_date,
		queue_number, token_number, priority, priority_override, status,
		check_in_time, estimated_start_time, actual_start_time, completed_at,
		actual_duration_minutes, created_at, updated_at
	FROM queue_entries`

const selectActive = selectQueueEntry + `
	WHERE department_id = $1 AND status IN ($2, $3)
	ORDER BY priority DESC, queue_number ASC`

type queueRepository struct {
	BaseRepository
}

func NewQueueRepository(base BaseRepository) repository.QueueRepository {
	return &queueRepository{base}
}

func (r *queueRepository) CreateNext(ctx context.Context, entry *model.QueueEntry, fill repository.NewEntryFunc) error {
	insert := `
		INSERT INTO queue_entries (
			id, triage_id, patient_id, department_id, doctor_id, queue_date,
			queue_number, token_number, priority, priority_override, status,
			check_in_time, estimated_start_time, created_at, updated_at
		) VALUES (
			:id, :triage_id, :patient_id, :department_id, :doctor_id, :queue_date,
			:queue_number, :token_number, :priority, :priority_override, :status,
			:check_in_time, :estimated_start_time, :created_at, :updated_at
		)
	`
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := maxQueueNumber(ctx, tx, entry.DepartmentID, entry.QueueDate)
		if err != nil {
			return err
		}

		entry.QueueNumber = current + 1
		events, err := fill(entry, entry.QueueNumber)
		if err != nil {
			return err
		}

		if _, err := tx.NamedExecContext(ctx, insert, entry); err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicateQueueNumber
			}
			return fmt.Errorf("failed to create queue entry: %w", err)
		}
		return insertOutbox(ctx, tx, events)
	})
}

func (r *queueRepository) Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	if err := r.db.GetContext(ctx, &entry, selectQueueEntry+` WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to get queue entry %s: %w", id, notFound(err))
	}
	return &entry, nil
}

func maxQueueNumber(ctx context.Context, q sqlx.QueryerContext, departmentID uuid.UUID, day time.Time) (int, error) {
	query := `
		SELECT COALESCE(MAX(queue_number), 0)
		FROM queue_entries
		WHERE department_id = $1 AND queue_date = $2
	`
	var current int
	if err := sqlx.GetContext(ctx, q, &current, query, departmentID, day); err != nil {
		return 0, fmt.Errorf("failed to read max queue number: %w", err)
	}
	return current, nil
}

func listActive(ctx context.Context, q sqlx.QueryerContext, departmentID uuid.UUID) ([]*model.QueueEntry, error) {
	var entries []*model.QueueEntry
	err := sqlx.SelectContext(ctx, q, &entries, selectActive,
		departmentID, model.QueueStatusWaiting, model.QueueStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to list department queue: %w", err)
	}
	return entries, nil
}

func (r *queueRepository) ListActive(ctx context.Context, departmentID uuid.UUID) ([]*model.QueueEntry, error) {
	return listActive(ctx, r.db, departmentID)
}

func (r *queueRepository) CountByStatus(ctx context.Context, departmentID uuid.UUID, day time.Time, status model.QueueStatus) (int, error) {
	query := `
		SELECT COUNT(*) FROM queue_entries
		WHERE department_id = $1 AND queue_date = $2 AND status = $3
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, departmentID, day, status); err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return count, nil
}

func (r *queueRepository) TransitionStatus(ctx context.Context, entry *model.QueueEntry, from model.QueueStatus, events ...*model.OutboxEvent) error {
	query := `
		UPDATE queue_entries SET
			status = $1,
			actual_start_time = $2,
			completed_at = $3,
			actual_duration_minutes = $4,
			estimated_start_time = $5,
			updated_at = $6
		WHERE id = $7 AND status = $8
	`
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			entry.Status,
			entry.ActualStartTime,
			entry.CompletedAt,
			entry.ActualDurationMinutes,
			entry.EstimatedStartTime,
			entry.UpdatedAt,
			entry.ID,
			from,
		)
		if err != nil {
			return fmt.Errorf("failed to update queue entry status: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM queue_entries WHERE id = $1)`, entry.ID); err != nil {
				return fmt.Errorf("failed to check queue entry: %w", err)
			}
			if !exists {
				return repository.ErrNotFound
			}
			return repository.ErrStatusChanged
		}
		return insertOutbox(ctx, tx, events)
	})
}

// Resequence holds a transaction-scoped advisory lock on the department while
// it reads the active entries and stores the estimates computed by fn, so
// overlapping recalculations commit in the order they read.
func (r *queueRepository) Resequence(ctx context.Context, departmentID uuid.UUID, fn repository.ResequenceFunc) ([]model.StartEstimate, error) {
	var estimates []model.StartEstimate
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, departmentID.String()); err != nil {
			return fmt.Errorf("failed to lock department queue: %w", err)
		}
		active, err := listActive(ctx, tx, departmentID)
		if err != nil {
			return err
		}
		estimates = fn(active)
		return updateEstimates(ctx, tx, estimates)
	})
	if err != nil {
		return nil, err
	}
	return estimates, nil
}

func updateEstimates(ctx context.Context, tx *sqlx.Tx, estimates []model.StartEstimate) error {
	if len(estimates) == 0 {
		return nil
	}
	query := `
		UPDATE queue_entries
		SET estimated_start_time = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare estimate update: %w", err)
	}
	defer stmt.Close()

	for _, e := range estimates {
		if _, err := stmt.ExecContext(ctx, e.EstimatedStartTime, e.EntryID, model.QueueStatusWaiting); err != nil {
			return fmt.Errorf("failed to update estimate for %s: %w", e.EntryID, err)
		}
	}
	return nil
}

func (r *queueRepository) UpdateWaitingPriority(ctx context.Context, triageID uuid.UUID, priority int) ([]uuid.UUID, error) {
	query := `
		UPDATE queue_entries
		SET priority = $1, updated_at = NOW()
		WHERE triage_id = $2 AND status = $3 AND priority <> $1 AND NOT priority_override
		RETURNING department_id
	`
	var departments []uuid.UUID
	if err := r.db.SelectContext(ctx, &departments, query, priority, triageID, model.QueueStatusWaiting); err != nil {
		return nil, fmt.Errorf("failed to update queue priority: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(departments))
	unique := departments[:0]
	for _, id := range departments {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	return unique, nil
}

func (r *queueRepository) RecentDurations(ctx context.Context, departmentID uuid.UUID, limit int) ([]float64, error) {
	query := `
		SELECT actual_duration_minutes
		FROM queue_entries
		WHERE department_id = $1 AND status = $2 AND actual_duration_minutes IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT $3
	`
	var durations []float64
	if err := r.db.SelectContext(ctx, &durations, query, departmentID, model.QueueStatusCompleted, limit); err != nil {
		return nil, fmt.Errorf("failed to read consultation durations: %w", err)
	}
	return durations, nil
}
