package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/internal/service/audit"
	"github.com/jwalitptl/hospital-api/internal/service/notification"
	"github.com/jwalitptl/hospital-api/internal/triage"
	"github.com/jwalitptl/hospital-api/pkg/clock"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

// QueueSync pushes a new priority onto an assessment's waiting queue entries.
type QueueSync interface {
	SyncTriagePriority(ctx context.Context, triageID uuid.UUID, priority int) error
}

type Service struct {
	repo     repository.TriageRepository
	queue    QueueSync
	notifier notification.Service
	auditor  *audit.Service
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *logger.Logger
}

func NewService(
	repo repository.TriageRepository,
	notifier notification.Service,
	auditor *audit.Service,
	metrics *metrics.Metrics,
	clk clock.Clock,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		auditor:  auditor,
		metrics:  metrics,
		clock:    clk,
		logger:   log,
	}
}

// SetQueueSync wires the queue service after both services exist.
func (s *Service) SetQueueSync(q QueueSync) {
	s.queue = q
}

// Score previews the outcome for a snapshot without storing anything.
func (s *Service) Score(req *model.ScoreRequest) *model.ScoreResult {
	snap := triage.Snapshot{
		Vitals:        req.VitalSigns,
		Consciousness: req.Consciousness,
		Symptoms:      triage.SymptomNames(req.Symptoms),
		RiskFactors:   req.RiskFactors,
	}
	res := triage.Evaluate(&snap)
	return &model.ScoreResult{
		Score:                       res.Score,
		Category:                    res.Category,
		RecommendedAction:           res.RecommendedAction,
		ReassessmentIntervalMinutes: res.Interval,
		VitalSigns:                  snap.Vitals,
	}
}

func (s *Service) Create(ctx context.Context, req *model.CreateTriageRequest) (*model.TriageAssessment, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperrors.NewValidation("patient_id is required")
	}
	if req.AssessorID == uuid.Nil {
		return nil, apperrors.NewValidation("assessor_id is required")
	}

	now := s.clock.Now()
	a := &model.TriageAssessment{
		PatientID:      req.PatientID,
		AssessorID:     req.AssessorID,
		AssessedAt:     now,
		VitalSigns:     req.VitalSigns,
		Consciousness:  req.Consciousness.Normalize(),
		Symptoms:       req.Symptoms,
		RiskFactors:    req.RiskFactors,
		Status:         model.TriageStatusActive,
		ChiefComplaint: req.ChiefComplaint,
		Alerts:         model.CategoryAlerts{},
	}
	if a.Symptoms == nil {
		a.Symptoms = model.Symptoms{}
	}
	a.ID = uuid.New()
	a.CreatedAt = now
	s.rescore(a, now)

	evt, err := model.NewOutboxEvent(model.EventTriageAssessed, a, now)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if err := s.repo.Create(ctx, a, evt); err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("failed to create triage assessment: %w", err))
	}

	s.metrics.TriageAssessments.WithLabelValues(string(a.Category)).Inc()
	s.audit(ctx, model.AuditActionCreate, a, &req.AssessorID)
	if a.Category == model.CategoryRed {
		s.notify(ctx, a, model.CategoryAlert{To: a.Category, Score: a.PriorityScore, ChangedAt: now})
	}

	s.logger.Info("Triage assessment created",
		"triage_id", a.ID.String(),
		"category", string(a.Category),
		"score", a.PriorityScore)
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.TriageAssessment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, filters *model.TriageFilters) ([]*model.TriageAssessment, error) {
	if filters != nil && filters.Category != "" && !filters.Category.Valid() {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown category %q", filters.Category))
	}
	list, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return list, nil
}

// UpdateVitals applies new clinical observations and rescores the assessment.
func (s *Service) UpdateVitals(ctx context.Context, id uuid.UUID, req *model.UpdateVitalsRequest) (*model.TriageAssessment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if a.Status.Terminal() {
		return nil, apperrors.NewValidation(fmt.Sprintf("triage assessment is %s", a.Status))
	}
	prev := a.UpdatedAt

	if req.AssessorID != nil {
		a.AssessorID = *req.AssessorID
	}
	if req.VitalSigns != nil {
		a.VitalSigns = *req.VitalSigns
	}
	if req.Consciousness != nil {
		a.Consciousness = req.Consciousness.Normalize()
	}
	if req.Symptoms != nil {
		a.Symptoms = *req.Symptoms
	}
	if req.RiskFactors != nil {
		a.RiskFactors = *req.RiskFactors
	}

	now := s.clock.Now()
	alert := s.rescore(a, now)
	if err := s.save(ctx, a, prev, alert); err != nil {
		return nil, err
	}

	s.audit(ctx, model.AuditActionUpdate, a, req.AssessorID)
	s.afterCategoryChange(ctx, a, alert)
	return a, nil
}

// Override sets the category by hand. BLACK can only be reached this way.
func (s *Service) Override(ctx context.Context, id uuid.UUID, req *model.OverrideCategoryRequest) (*model.TriageAssessment, error) {
	if !req.Category.Valid() {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown category %q", req.Category))
	}

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if a.Status.Terminal() {
		return nil, apperrors.NewValidation(fmt.Sprintf("triage assessment is %s", a.Status))
	}
	prev := a.UpdatedAt

	now := s.clock.Now()
	var alert *model.CategoryAlert
	if a.Category != req.Category {
		alert = &model.CategoryAlert{
			From:      a.Category,
			To:        req.Category,
			Score:     a.PriorityScore,
			Manual:    true,
			Reason:    req.Reason,
			ChangedAt: now,
		}
		a.Alerts = append(a.Alerts, *alert)
	}
	a.ManualOverride = true
	applyCategory(a, req.Category)
	a.UpdatedAt = now

	if err := s.save(ctx, a, prev, alert); err != nil {
		return nil, err
	}

	s.audit(ctx, model.AuditActionOverride, a, nil)
	s.afterCategoryChange(ctx, a, alert)
	return a, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status model.TriageStatus) (*model.TriageAssessment, error) {
	if status != model.TriageStatusCompleted && status != model.TriageStatusTransferred {
		return nil, apperrors.NewValidation(fmt.Sprintf("cannot set triage status to %q", status))
	}

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if a.Status != model.TriageStatusActive {
		return nil, apperrors.NewValidation(fmt.Sprintf("triage assessment is already %s", a.Status))
	}

	now := s.clock.Now()
	prev := a.UpdatedAt
	from := a.Status
	a.Status = status
	a.ReassessmentRequired = false
	a.UpdatedAt = now

	evt, err := model.NewOutboxEvent(model.EventTriageStatusChanged, map[string]interface{}{
		"triage_id":  a.ID,
		"patient_id": a.PatientID,
		"from":       from,
		"to":         status,
		"changed_at": now,
	}, now)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if err := s.repo.Update(ctx, a, prev, evt); err != nil {
		return nil, mapRepoError(err)
	}

	s.audit(ctx, model.AuditActionStatusChange, a, nil)
	return a, nil
}

// DueForReassessment lists active assessments whose reassessment interval has elapsed.
func (s *Service) DueForReassessment(ctx context.Context) ([]*model.TriageAssessment, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	now := s.clock.Now()
	due := make([]*model.TriageAssessment, 0, len(active))
	for _, a := range active {
		if triage.ReassessmentDue(a.Category, a.LastAssessedAt, now) {
			due = append(due, a)
		}
	}
	return due, nil
}

// rescore recomputes score and category from the assessment's current
// snapshot. A manual BLACK is kept; any other override is replaced. It
// returns the alert appended when the category changed.
func (s *Service) rescore(a *model.TriageAssessment, now time.Time) *model.CategoryAlert {
	snap := triage.SnapshotOf(a)
	res := triage.Evaluate(&snap)
	a.VitalSigns = snap.Vitals
	a.PriorityScore = res.Score
	a.LastAssessedAt = now
	a.UpdatedAt = now

	prev := a.Category
	next := res.Category
	if a.ManualOverride && prev == model.CategoryBlack {
		next = model.CategoryBlack
	} else {
		a.ManualOverride = false
	}
	applyCategory(a, next)

	if prev == "" || prev == next {
		return nil
	}
	alert := model.CategoryAlert{From: prev, To: next, Score: res.Score, ChangedAt: now}
	a.Alerts = append(a.Alerts, alert)
	return &alert
}

// save writes the assessment if it still matches the version read at prev.
func (s *Service) save(ctx context.Context, a *model.TriageAssessment, prev time.Time, alert *model.CategoryAlert) error {
	var events []*model.OutboxEvent
	if alert != nil {
		evt, err := model.NewOutboxEvent(model.EventTriageCategoryChanged, model.CategoryChangedPayload{
			TriageID:  a.ID,
			PatientID: a.PatientID,
			From:      alert.From,
			To:        alert.To,
			Score:     alert.Score,
			Manual:    alert.Manual,
			ChangedAt: alert.ChangedAt,
		}, alert.ChangedAt)
		if err != nil {
			return apperrors.NewInternal(err)
		}
		events = append(events, evt)
	}
	if err := s.repo.Update(ctx, a, prev, events...); err != nil {
		return mapRepoError(err)
	}
	return nil
}

func (s *Service) afterCategoryChange(ctx context.Context, a *model.TriageAssessment, alert *model.CategoryAlert) {
	if alert == nil {
		return
	}
	s.metrics.CategoryChanges.WithLabelValues(string(alert.From), string(alert.To)).Inc()

	if s.queue != nil {
		if err := s.queue.SyncTriagePriority(ctx, a.ID, triage.Priority(a.Category)); err != nil {
			s.logger.Error(err, "Failed to sync queue priority", "triage_id", a.ID.String())
		}
	}
	s.notify(ctx, a, *alert)
}

func (s *Service) notify(ctx context.Context, a *model.TriageAssessment, alert model.CategoryAlert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyEscalation(ctx, a, alert); err != nil {
		s.logger.Error(err, "Failed to notify triage desk", "triage_id", a.ID.String())
	}
}

func (s *Service) audit(ctx context.Context, action string, a *model.TriageAssessment, actor *uuid.UUID) {
	err := s.auditor.Log(ctx, action, model.AuditEntityTriage, a.ID, &audit.LogOptions{
		ActorID: actor,
		Changes: map[string]interface{}{
			"category":       a.Category,
			"priority_score": a.PriorityScore,
			"status":         a.Status,
		},
	})
	if err != nil {
		s.logger.Error(err, "Failed to write audit log", "triage_id", a.ID.String())
	}
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("triage assessment", err)
	case errors.Is(err, repository.ErrStatusChanged):
		return apperrors.NewConflict("triage assessment changed concurrently, reload and retry", err)
	default:
		return apperrors.NewInternal(err)
	}
}

// applyCategory sets the category and everything derived from it.
func applyCategory(a *model.TriageAssessment, c model.TriageCategory) {
	interval, due := triage.ReassessmentInterval(c)
	a.Category = c
	a.RecommendedAction = triage.RecommendedAction(c)
	a.ReassessmentRequired = due
	a.ReassessmentIntervalMinutes = int(interval.Minutes())
}
