package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/clock"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

// RetentionWorker deletes audit logs and relayed outbox events older than
// the retention period.
type RetentionWorker struct {
	audits          repository.AuditRepository
	outbox          repository.OutboxRepository
	retentionDays   int
	outboxDays      int
	cleanupInterval time.Duration
	clock           clock.Clock
	logger          *logger.Logger
}

func NewRetentionWorker(
	audits repository.AuditRepository,
	outbox repository.OutboxRepository,
	retentionDays int,
	cleanupInterval time.Duration,
	clk clock.Clock,
	log *logger.Logger,
) *RetentionWorker {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 24 * time.Hour
	}
	return &RetentionWorker{
		audits:          audits,
		outbox:          outbox,
		retentionDays:   retentionDays,
		outboxDays:      retentionDays,
		cleanupInterval: cleanupInterval,
		clock:           clk,
		logger:          log,
	}
}

// WithOutboxRetention keeps processed outbox events for days instead of the
// audit retention.
func (w *RetentionWorker) WithOutboxRetention(days int) *RetentionWorker {
	if days > 0 {
		w.outboxDays = days
	}
	return w
}

func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	w.logger.Info("Starting retention worker", "retention_days", w.retentionDays)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down retention worker")
			return
		case <-ticker.C:
			if err := w.Cleanup(ctx); err != nil {
				w.logger.Error(err, "Retention cleanup failed")
			}
		}
	}
}

// Cleanup runs one retention pass.
func (w *RetentionWorker) Cleanup(ctx context.Context) error {
	cutoff := w.clock.Now().AddDate(0, 0, -w.retentionDays)

	if w.audits != nil {
		rows, err := w.audits.Cleanup(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup audit logs: %w", err)
		}
		w.logger.Info("Cleaned up audit logs", "rows", rows, "before", cutoff)
	}

	if w.outbox != nil {
		outboxCutoff := w.clock.Now().AddDate(0, 0, -w.outboxDays)
		rows, err := w.outbox.DeleteProcessedBefore(ctx, outboxCutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup outbox events: %w", err)
		}
		w.logger.Info("Cleaned up processed outbox events", "rows", rows, "before", outboxCutoff)
	}
	return nil
}
