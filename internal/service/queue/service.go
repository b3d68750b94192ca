package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/queue"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/internal/service/audit"
	"github.com/jwalitptl/hospital-api/internal/triage"
	"github.com/jwalitptl/hospital-api/pkg/clock"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

type Config struct {
	// MaxNumberAttempts bounds queue number assignment when inserts collide.
	MaxNumberAttempts int
	RetryDelay        time.Duration
	// Location decides where the queue day starts.
	Location *time.Location
}

type Service struct {
	queues      repository.QueueRepository
	triages     repository.TriageRepository
	departments repository.DepartmentRepository
	averages    AverageProvider
	auditor     *audit.Service
	metrics     *metrics.Metrics
	clock       clock.Clock
	logger      *logger.Logger
	config      Config
}

func NewService(
	queues repository.QueueRepository,
	triages repository.TriageRepository,
	departments repository.DepartmentRepository,
	averages AverageProvider,
	auditor *audit.Service,
	metrics *metrics.Metrics,
	clk clock.Clock,
	log *logger.Logger,
	config Config,
) *Service {
	if config.MaxNumberAttempts <= 0 {
		config.MaxNumberAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 20 * time.Millisecond
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return &Service{
		queues:      queues,
		triages:     triages,
		departments: departments,
		averages:    averages,
		auditor:     auditor,
		metrics:     metrics,
		clock:       clk,
		logger:      log,
		config:      config,
	}
}

// Enqueue places a triaged patient in a department queue.
func (s *Service) Enqueue(ctx context.Context, req *model.CreateQueueEntryRequest) (*model.CreateQueueEntryResponse, error) {
	dept, err := s.departments.Get(ctx, req.DepartmentID)
	if err != nil {
		return nil, mapRepoError("department", err)
	}
	if dept.Status != model.DepartmentStatusActive {
		return nil, apperrors.NewValidation(fmt.Sprintf("department %s is not accepting patients", dept.Code))
	}

	assessment, err := s.triages.Get(ctx, req.TriageID)
	if err != nil {
		return nil, mapRepoError("triage assessment", err)
	}
	if assessment.Status.Terminal() {
		return nil, apperrors.NewValidation(fmt.Sprintf("triage assessment is %s", assessment.Status))
	}

	priority := triage.Priority(assessment.Category)
	if req.Priority != nil {
		priority = *req.Priority
	}

	now := s.clock.Now()
	avg := s.average(ctx, dept.ID)
	active, err := s.queues.ListActive(ctx, dept.ID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	initial := queue.EstimateStart(now, queue.PositionFor(priority, active), avg)

	entry := &model.QueueEntry{
		TriageID:           assessment.ID,
		PatientID:          assessment.PatientID,
		DepartmentID:       dept.ID,
		DoctorID:           req.DoctorID,
		QueueDate:          queue.QueueDay(now, s.config.Location),
		Priority:           priority,
		PriorityOverride:   req.Priority != nil,
		Status:             model.QueueStatusWaiting,
		CheckInTime:        now,
		EstimatedStartTime: &initial,
	}
	entry.ID = uuid.New()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	fill := func(e *model.QueueEntry, number int) ([]*model.OutboxEvent, error) {
		e.TokenNumber = queue.FormatToken(dept.Code, e.QueueDate, number)
		evt, err := model.NewOutboxEvent(model.EventQueueEntryCreated, e, now)
		if err != nil {
			return nil, err
		}
		return []*model.OutboxEvent{evt}, nil
	}

	if err := s.createWithRetry(ctx, entry, fill); err != nil {
		return nil, err
	}

	s.metrics.QueueEntriesCreated.WithLabelValues(dept.Code).Inc()
	s.audit(ctx, model.AuditActionCreate, entry, nil)
	s.logger.Info("Queue entry created",
		"entry_id", entry.ID.String(),
		"token", entry.TokenNumber,
		"priority", entry.Priority)

	estimate := initial
	if estimates, err := s.Recalculate(ctx, dept.ID); err != nil {
		s.logger.Error(err, "Failed to recalculate queue after enqueue", "department_id", dept.ID.String())
	} else {
		for _, e := range estimates {
			if e.EntryID == entry.ID {
				estimate = e.EstimatedStartTime
				break
			}
		}
	}
	entry.EstimatedStartTime = &estimate

	return &model.CreateQueueEntryResponse{
		Queue:              entry,
		EstimatedStartTime: estimate,
		QueueNumber:        entry.QueueNumber,
		TokenNumber:        entry.TokenNumber,
	}, nil
}

// createWithRetry assigns a queue number and inserts the entry. A collision on
// the number is retried with a fresh read; anything else fails immediately.
func (s *Service) createWithRetry(ctx context.Context, entry *model.QueueEntry, fill repository.NewEntryFunc) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.config.RetryDelay
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.config.MaxNumberAttempts-1)), ctx)

	err := backoff.RetryNotify(func() error {
		err := s.queues.CreateNext(ctx, entry, fill)
		if errors.Is(err, repository.ErrDuplicateQueueNumber) {
			s.metrics.QueueNumberConflicts.Inc()
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, b, func(err error, wait time.Duration) {
		s.logger.Warn("Queue number collision, retrying",
			"department_id", entry.DepartmentID.String(),
			"queue_number", entry.QueueNumber,
			"wait", wait.String())
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicateQueueNumber):
		return apperrors.NewConflict("queue number could not be assigned, please retry", err)
	default:
		return apperrors.NewInternal(fmt.Errorf("failed to create queue entry: %w", err))
	}
}

// Recalculate reorders the department's active entries and stores fresh
// estimated start times for every waiting entry. Concurrent recalculations of
// one department are serialised by the repository.
func (s *Service) Recalculate(ctx context.Context, departmentID uuid.UUID) ([]model.StartEstimate, error) {
	avg := s.average(ctx, departmentID)
	estimates, err := s.queues.Resequence(ctx, departmentID, func(active []*model.QueueEntry) []model.StartEstimate {
		return queue.Recalculate(active, s.clock.Now(), avg)
	})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	s.metrics.QueueRecalculations.Inc()
	return estimates, nil
}

// DepartmentQueue returns the department's current ordering. It is computed on
// every call.
func (s *Service) DepartmentQueue(ctx context.Context, departmentID uuid.UUID) (*model.DepartmentQueue, error) {
	if _, err := s.departments.Get(ctx, departmentID); err != nil {
		return nil, mapRepoError("department", err)
	}

	entries, err := s.queues.ListActive(ctx, departmentID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	now := s.clock.Now()
	avg := s.average(ctx, departmentID)
	queue.Recalculate(entries, now, avg)
	inProgress, waiting := queue.Split(entries)
	if inProgress == nil {
		inProgress = []*model.QueueEntry{}
	}
	if waiting == nil {
		waiting = []*model.QueueEntry{}
	}

	return &model.DepartmentQueue{
		DepartmentID:           departmentID,
		AverageConsultationMin: queue.AverageOrDefault(avg).Minutes(),
		InProgress:             inProgress,
		Waiting:                waiting,
		GeneratedAt:            now,
	}, nil
}

// UpdateStatus moves an entry through its state machine. The write only
// succeeds if nobody changed the status in the meantime.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to model.QueueStatus) (*model.QueueEntry, error) {
	entry, err := s.queues.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError("queue entry", err)
	}

	from := entry.Status
	if err := queue.ValidateTransition(from, to); err != nil {
		s.metrics.QueueTransitions.WithLabelValues(string(from), string(to), "invalid").Inc()
		return nil, apperrors.NewValidation(err.Error())
	}

	now := s.clock.Now()
	entry.Status = to
	entry.UpdatedAt = now
	switch to {
	case model.QueueStatusInProgress:
		entry.ActualStartTime = &now
	case model.QueueStatusCompleted:
		entry.CompletedAt = &now
		if entry.ActualStartTime != nil {
			minutes := now.Sub(*entry.ActualStartTime).Minutes()
			entry.ActualDurationMinutes = &minutes
		}
	}

	evt, err := model.NewOutboxEvent(model.EventQueueStatusChanged, model.QueueStatusChangedPayload{
		EntryID:      entry.ID,
		DepartmentID: entry.DepartmentID,
		From:         from,
		To:           to,
		ChangedAt:    now,
	}, now)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	if err := s.queues.TransitionStatus(ctx, entry, from, evt); err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			s.metrics.QueueTransitions.WithLabelValues(string(from), string(to), "conflict").Inc()
			return nil, apperrors.NewConflict("queue entry status changed concurrently", err)
		}
		return nil, mapRepoError("queue entry", err)
	}
	s.metrics.QueueTransitions.WithLabelValues(string(from), string(to), "ok").Inc()

	if to == model.QueueStatusCompleted && s.averages != nil {
		s.averages.Invalidate(entry.DepartmentID)
	}
	s.audit(ctx, model.AuditActionStatusChange, entry, map[string]interface{}{"from": from, "to": to})

	if _, err := s.Recalculate(ctx, entry.DepartmentID); err != nil {
		s.logger.Error(err, "Failed to recalculate queue after status change", "entry_id", entry.ID.String())
	}
	return entry, nil
}

// SyncTriagePriority applies a new priority to the assessment's waiting
// entries, except those enqueued with an explicit priority, and recalculates
// every affected department.
func (s *Service) SyncTriagePriority(ctx context.Context, triageID uuid.UUID, priority int) error {
	departments, err := s.queues.UpdateWaitingPriority(ctx, triageID, priority)
	if err != nil {
		return fmt.Errorf("failed to update queue priority: %w", err)
	}
	for _, dept := range departments {
		if _, err := s.Recalculate(ctx, dept); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	entry, err := s.queues.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError("queue entry", err)
	}
	return entry, nil
}

func (s *Service) WaitingCount(ctx context.Context, departmentID uuid.UUID) (int, error) {
	day := queue.QueueDay(s.clock.Now(), s.config.Location)
	n, err := s.queues.CountByStatus(ctx, departmentID, day, model.QueueStatusWaiting)
	if err != nil {
		return 0, apperrors.NewInternal(err)
	}
	return n, nil
}

func (s *Service) ListDepartments(ctx context.Context) ([]*model.Department, error) {
	depts, err := s.departments.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return depts, nil
}

// average never fails; a broken history lookup falls back to the default.
func (s *Service) average(ctx context.Context, departmentID uuid.UUID) float64 {
	if s.averages == nil {
		return 0
	}
	avg, err := s.averages.AverageMinutes(ctx, departmentID)
	if err != nil {
		s.logger.Warn("Using default consultation average",
			"department_id", departmentID.String(),
			"error", err.Error())
	}
	return avg
}

func (s *Service) audit(ctx context.Context, action string, entry *model.QueueEntry, changes interface{}) {
	if changes == nil {
		changes = entry
	}
	err := s.auditor.Log(ctx, action, model.AuditEntityQueueEntry, entry.ID, &audit.LogOptions{Changes: changes})
	if err != nil {
		s.logger.Error(err, "Failed to write audit log", "entry_id", entry.ID.String())
	}
}

func mapRepoError(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, err)
	}
	return apperrors.NewInternal(err)
}
