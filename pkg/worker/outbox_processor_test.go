package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/clock"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

type fakeOutboxRepo struct {
	mu        sync.Mutex
	pending   []*model.OutboxEvent
	processed []uuid.UUID
	failed    map[uuid.UUID]*time.Time
}

func (r *fakeOutboxRepo) Create(_ context.Context, e *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, e)
	return nil
}

func (r *fakeOutboxRepo) ClaimPending(_ context.Context, limit int, _ time.Duration) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > len(r.pending) {
		limit = len(r.pending)
	}
	out := r.pending[:limit]
	r.pending = r.pending[limit:]
	return out, nil
}

func (r *fakeOutboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, id)
	return nil
}

func (r *fakeOutboxRepo) MarkFailed(_ context.Context, id uuid.UUID, _ string, retryAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed == nil {
		r.failed = map[uuid.UUID]*time.Time{}
	}
	r.failed[id] = retryAt
	return nil
}

func (r *fakeOutboxRepo) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeBroker struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	published map[string][]messaging.Message
}

func (b *fakeBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.calls <= b.failFirst {
		return errors.New("redis unavailable")
	}
	if b.published == nil {
		b.published = map[string][]messaging.Message{}
	}
	b.published[channel] = append(b.published[channel], message.(messaging.Message))
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *fakeBroker) Close() error                                             { return nil }

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		MaxDeliveries: 3,
	}
}

func event(t *testing.T, eventType string) *model.OutboxEvent {
	e, err := model.NewOutboxEvent(eventType, map[string]string{"k": "v"}, time.Now())
	require.NoError(t, err)
	return e
}

func TestProcessBatchRoutesByEventType(t *testing.T) {
	repo := &fakeOutboxRepo{}
	broker := &fakeBroker{}
	p := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), metrics.Test())

	triage := event(t, model.EventTriageCategoryChanged)
	queued := event(t, model.EventQueueEntryCreated)
	repo.pending = []*model.OutboxEvent{triage, queued}

	n, err := p.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []uuid.UUID{triage.ID, queued.ID}, repo.processed)
	require.Len(t, broker.published[messaging.ChannelTriage], 1)
	assert.Equal(t, model.EventTriageCategoryChanged, broker.published[messaging.ChannelTriage][0].Type)
	require.Len(t, broker.published[messaging.ChannelQueue], 1)
}

func TestProcessBatchRetriesTransientFailures(t *testing.T) {
	repo := &fakeOutboxRepo{}
	broker := &fakeBroker{failFirst: 2}
	p := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), metrics.Test())
	evt := event(t, model.EventTriageAssessed)
	repo.pending = []*model.OutboxEvent{evt}

	n, err := p.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, broker.calls)
	assert.Equal(t, []uuid.UUID{evt.ID}, repo.processed)
}

func TestProcessBatchSchedulesRedelivery(t *testing.T) {
	repo := &fakeOutboxRepo{}
	broker := &fakeBroker{failFirst: 100}
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	p := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), metrics.Test()).
		WithClock(clock.NewFixed(now))

	fresh := event(t, model.EventTriageAssessed)
	exhausted := event(t, model.EventTriageAssessed)
	exhausted.RetryCount = 2
	repo.pending = []*model.OutboxEvent{fresh, exhausted}

	n, err := p.ProcessBatch(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	require.NotNil(t, repo.failed[fresh.ID])
	assert.Equal(t, now.Add(2*time.Millisecond), *repo.failed[fresh.ID])
	retryAt, marked := repo.failed[exhausted.ID]
	assert.True(t, marked)
	assert.Nil(t, retryAt)
}

func TestChannelFor(t *testing.T) {
	assert.Equal(t, messaging.ChannelQueue, ChannelFor(model.EventQueueStatusChanged))
	assert.Equal(t, messaging.ChannelTriage, ChannelFor(model.EventReassessmentDue))
}
