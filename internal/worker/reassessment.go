package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/internal/triage"
	"github.com/jwalitptl/hospital-api/pkg/clock"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

// DueSource lists active assessments whose reassessment interval has elapsed.
type DueSource interface {
	DueForReassessment(ctx context.Context) ([]*model.TriageAssessment, error)
}

// ReassessmentMonitor raises one triage.reassessment_due event per
// assessment and last-assessed time. The event goes through the outbox so the
// relay delivers it like any other.
type ReassessmentMonitor struct {
	source   DueSource
	outbox   repository.OutboxRepository
	interval time.Duration
	notified *cache.Cache
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *logger.Logger
}

func NewReassessmentMonitor(
	source DueSource,
	outbox repository.OutboxRepository,
	interval time.Duration,
	dedupTTL time.Duration,
	metrics *metrics.Metrics,
	clk clock.Clock,
	log *logger.Logger,
) *ReassessmentMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if dedupTTL <= 0 {
		dedupTTL = 2 * time.Hour
	}
	return &ReassessmentMonitor{
		source:   source,
		outbox:   outbox,
		interval: interval,
		notified: cache.New(dedupTTL, dedupTTL),
		metrics:  metrics,
		clock:    clk,
		logger:   log,
	}
}

func (m *ReassessmentMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("Starting reassessment monitor", "interval", m.interval.String())

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Shutting down reassessment monitor")
			return
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil {
				m.logger.Error(err, "Reassessment check failed")
			}
		}
	}
}

// Check raises events for newly due assessments and returns how many were raised.
func (m *ReassessmentMonitor) Check(ctx context.Context) (int, error) {
	due, err := m.source.DueForReassessment(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list due assessments: %w", err)
	}

	now := m.clock.Now()
	raised := 0
	for _, a := range due {
		key := fmt.Sprintf("%s:%d", a.ID, a.LastAssessedAt.UnixNano())
		if _, seen := m.notified.Get(key); seen {
			continue
		}

		evt, err := model.NewOutboxEvent(model.EventReassessmentDue, model.ReassessmentDuePayload{
			TriageID:       a.ID,
			PatientID:      a.PatientID,
			Category:       a.Category,
			LastAssessedAt: a.LastAssessedAt,
			OverdueMinutes: triage.Overdue(a.Category, a.LastAssessedAt, now).Minutes(),
		}, now)
		if err != nil {
			return raised, err
		}
		if err := m.outbox.Create(ctx, evt); err != nil {
			return raised, fmt.Errorf("failed to store reassessment event: %w", err)
		}

		m.notified.Set(key, struct{}{}, cache.DefaultExpiration)
		m.metrics.ReassessmentsNotified.Inc()
		raised++

		m.logger.Warn("Triage reassessment due",
			"triage_id", a.ID.String(),
			"category", string(a.Category))
	}
	return raised, nil
}
