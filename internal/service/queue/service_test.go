package queue

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/clock"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

type memoryQueues struct {
	entries    map[uuid.UUID]*model.QueueEntry
	events     []*model.OutboxEvent
	collisions int
	creates    int
	durations  []float64
	// staleOnce makes the next TransitionStatus behave as if another caller won.
	staleOnce bool
	// failResequence makes every Resequence fail before storing estimates.
	failResequence bool
}

func newMemoryQueues() *memoryQueues {
	return &memoryQueues{entries: map[uuid.UUID]*model.QueueEntry{}}
}

func (r *memoryQueues) CreateNext(ctx context.Context, entry *model.QueueEntry, fill repository.NewEntryFunc) error {
	r.creates++
	if err := ctx.Err(); err != nil {
		return err
	}
	current := 0
	for _, e := range r.entries {
		if e.DepartmentID == entry.DepartmentID && e.QueueDate.Equal(entry.QueueDate) && e.QueueNumber > current {
			current = e.QueueNumber
		}
	}
	entry.QueueNumber = current + 1
	events, err := fill(entry, entry.QueueNumber)
	if err != nil {
		return err
	}
	if r.collisions > 0 {
		r.collisions--
		return repository.ErrDuplicateQueueNumber
	}
	cp := *entry
	r.entries[entry.ID] = &cp
	r.events = append(r.events, events...)
	return nil
}

func (r *memoryQueues) Get(_ context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *memoryQueues) ListActive(_ context.Context, departmentID uuid.UUID) ([]*model.QueueEntry, error) {
	var out []*model.QueueEntry
	for _, e := range r.entries {
		if e.DepartmentID == departmentID && !e.Status.Terminal() {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueueNumber < out[j].QueueNumber })
	return out, nil
}

func (r *memoryQueues) CountByStatus(_ context.Context, departmentID uuid.UUID, day time.Time, status model.QueueStatus) (int, error) {
	n := 0
	for _, e := range r.entries {
		if e.DepartmentID == departmentID && e.QueueDate.Equal(day) && e.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *memoryQueues) TransitionStatus(_ context.Context, entry *model.QueueEntry, from model.QueueStatus, events ...*model.OutboxEvent) error {
	stored, ok := r.entries[entry.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if r.staleOnce {
		r.staleOnce = false
		return repository.ErrStatusChanged
	}
	if stored.Status != from {
		return repository.ErrStatusChanged
	}
	cp := *entry
	r.entries[entry.ID] = &cp
	r.events = append(r.events, events...)
	return nil
}

func (r *memoryQueues) Resequence(ctx context.Context, departmentID uuid.UUID, fn repository.ResequenceFunc) ([]model.StartEstimate, error) {
	active, _ := r.ListActive(ctx, departmentID)
	estimates := fn(active)
	if r.failResequence {
		return nil, errors.New("connection reset")
	}
	for _, est := range estimates {
		if e, ok := r.entries[est.EntryID]; ok && e.Status == model.QueueStatusWaiting {
			at := est.EstimatedStartTime
			e.EstimatedStartTime = &at
		}
	}
	return estimates, nil
}

func (r *memoryQueues) UpdateWaitingPriority(_ context.Context, triageID uuid.UUID, priority int) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]bool{}
	var depts []uuid.UUID
	for _, e := range r.entries {
		if e.TriageID == triageID && e.Status == model.QueueStatusWaiting && !e.PriorityOverride && e.Priority != priority {
			e.Priority = priority
			if !seen[e.DepartmentID] {
				seen[e.DepartmentID] = true
				depts = append(depts, e.DepartmentID)
			}
		}
	}
	return depts, nil
}

func (r *memoryQueues) RecentDurations(context.Context, uuid.UUID, int) ([]float64, error) {
	return r.durations, nil
}

type memoryTriages struct {
	items map[uuid.UUID]*model.TriageAssessment
}

func (r *memoryTriages) Create(_ context.Context, a *model.TriageAssessment, _ ...*model.OutboxEvent) error {
	r.items[a.ID] = a
	return nil
}

func (r *memoryTriages) Get(_ context.Context, id uuid.UUID) (*model.TriageAssessment, error) {
	a, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (r *memoryTriages) Update(_ context.Context, a *model.TriageAssessment, _ time.Time, _ ...*model.OutboxEvent) error {
	r.items[a.ID] = a
	return nil
}

func (r *memoryTriages) List(context.Context, *model.TriageFilters) ([]*model.TriageAssessment, error) {
	return nil, nil
}

func (r *memoryTriages) ListActive(context.Context) ([]*model.TriageAssessment, error) {
	return nil, nil
}

type memoryDepartments struct {
	items map[uuid.UUID]*model.Department
}

func (r *memoryDepartments) Get(_ context.Context, id uuid.UUID) (*model.Department, error) {
	d, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return d, nil
}

func (r *memoryDepartments) List(context.Context) ([]*model.Department, error) {
	var out []*model.Department
	for _, d := range r.items {
		out = append(out, d)
	}
	return out, nil
}

type fixture struct {
	svc     *Service
	queues  *memoryQueues
	triages *memoryTriages
	opd     *model.Department
	emg     *model.Department
	clock   *clock.Fixed
	metrics *metrics.Metrics
}

func newFixture() *fixture {
	f := &fixture{
		queues:  newMemoryQueues(),
		triages: &memoryTriages{items: map[uuid.UUID]*model.TriageAssessment{}},
		opd:     &model.Department{Base: model.Base{ID: uuid.New()}, Code: "opd", Status: model.DepartmentStatusActive},
		emg:     &model.Department{Base: model.Base{ID: uuid.New()}, Code: "EMG", Status: model.DepartmentStatusActive},
		clock:   clock.NewFixed(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
		metrics: metrics.Test(),
	}
	depts := &memoryDepartments{items: map[uuid.UUID]*model.Department{f.opd.ID: f.opd, f.emg.ID: f.emg}}
	f.svc = NewService(f.queues, f.triages, depts, FixedAverage(10), nil, f.metrics, f.clock, logger.Nop(), Config{
		MaxNumberAttempts: 3,
		RetryDelay:        time.Millisecond,
		Location:          time.UTC,
	})
	return f
}

func (f *fixture) assessment(category model.TriageCategory) *model.TriageAssessment {
	a := &model.TriageAssessment{
		Base:      model.Base{ID: uuid.New()},
		PatientID: uuid.New(),
		Category:  category,
		Status:    model.TriageStatusActive,
	}
	f.triages.items[a.ID] = a
	return a
}

func (f *fixture) enqueue(t *testing.T, dept *model.Department, category model.TriageCategory) *model.CreateQueueEntryResponse {
	t.Helper()
	resp, err := f.svc.Enqueue(context.Background(), &model.CreateQueueEntryRequest{
		TriageID:     f.assessment(category).ID,
		DepartmentID: dept.ID,
	})
	require.NoError(t, err)
	return resp
}

func TestEnqueueAssignsSequentialNumbersPerDepartment(t *testing.T) {
	f := newFixture()

	first := f.enqueue(t, f.opd, model.CategoryGreen)
	second := f.enqueue(t, f.opd, model.CategoryGreen)
	other := f.enqueue(t, f.emg, model.CategoryGreen)

	assert.Equal(t, 1, first.QueueNumber)
	assert.Equal(t, 2, second.QueueNumber)
	assert.Equal(t, 1, other.QueueNumber)
	assert.Equal(t, "OPD-20240301-001", first.TokenNumber)
	assert.Equal(t, "OPD-20240301-002", second.TokenNumber)
	assert.Equal(t, "EMG-20240301-001", other.TokenNumber)
	assert.Equal(t, model.QueueStatusWaiting, first.Queue.Status)
	assert.Len(t, f.queues.events, 3)
}

func TestEnqueueNumbersRestartEachDay(t *testing.T) {
	f := newFixture()
	f.enqueue(t, f.opd, model.CategoryGreen)

	f.clock.Advance(24 * time.Hour)
	next := f.enqueue(t, f.opd, model.CategoryGreen)

	assert.Equal(t, 1, next.QueueNumber)
	assert.Equal(t, "OPD-20240302-001", next.TokenNumber)
}

func TestEnqueueDerivesPriorityAndEstimate(t *testing.T) {
	f := newFixture()
	green := f.enqueue(t, f.opd, model.CategoryGreen)
	red := f.enqueue(t, f.opd, model.CategoryRed)

	assert.Equal(t, 1, green.Queue.Priority)
	assert.Equal(t, 3, red.Queue.Priority)
	assert.Equal(t, f.clock.Now(), red.EstimatedStartTime)

	stored, err := f.svc.Get(context.Background(), green.Queue.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EstimatedStartTime)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), *stored.EstimatedStartTime)
}

func TestEnqueueUsesRequestedPriority(t *testing.T) {
	f := newFixture()
	priority := 2
	resp, err := f.svc.Enqueue(context.Background(), &model.CreateQueueEntryRequest{
		TriageID:     f.assessment(model.CategoryGreen).ID,
		DepartmentID: f.opd.ID,
		Priority:     &priority,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, resp.Queue.Priority)
}

func TestEnqueueInitialEstimateFollowsPriority(t *testing.T) {
	f := newFixture()
	for i := 0; i < 3; i++ {
		f.enqueue(t, f.opd, model.CategoryGreen)
	}
	f.queues.failResequence = true

	red := f.enqueue(t, f.opd, model.CategoryRed)

	assert.Equal(t, f.clock.Now(), red.EstimatedStartTime)
	stored, err := f.svc.Get(context.Background(), red.Queue.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EstimatedStartTime)
	assert.Equal(t, f.clock.Now(), *stored.EstimatedStartTime)

	yellow := f.enqueue(t, f.opd, model.CategoryYellow)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), yellow.EstimatedStartTime)
}

func TestEnqueueRequestedPriorityIsKeptOnSync(t *testing.T) {
	f := newFixture()
	priority := 2
	a := f.assessment(model.CategoryGreen)
	resp, err := f.svc.Enqueue(context.Background(), &model.CreateQueueEntryRequest{
		TriageID:     a.ID,
		DepartmentID: f.opd.ID,
		Priority:     &priority,
	})
	require.NoError(t, err)
	assert.True(t, resp.Queue.PriorityOverride)

	require.NoError(t, f.svc.SyncTriagePriority(context.Background(), a.ID, 3))

	stored, err := f.svc.Get(context.Background(), resp.Queue.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Priority)
}

func TestEnqueueMissingReferencesAreNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Enqueue(context.Background(), &model.CreateQueueEntryRequest{
		TriageID:     uuid.New(),
		DepartmentID: f.opd.ID,
	})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = f.svc.Enqueue(context.Background(), &model.CreateQueueEntryRequest{
		TriageID:     f.assessment(model.CategoryGreen).ID,
		DepartmentID: uuid.New(),
	})
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, f.queues.entries)
}

func TestEnqueueRetriesCollisions(t *testing.T) {
	f := newFixture()
	f.queues.collisions = 2

	resp := f.enqueue(t, f.opd, model.CategoryGreen)

	assert.Equal(t, 1, resp.QueueNumber)
	assert.Equal(t, 3, f.queues.creates)
}

func TestEnqueueGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture()
	f.queues.collisions = 5

	_, err := f.svc.Enqueue(context.Background(), &model.CreateQueueEntryRequest{
		TriageID:     f.assessment(model.CategoryGreen).ID,
		DepartmentID: f.opd.ID,
	})

	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, 3, f.queues.creates)
	assert.Empty(t, f.queues.entries)
}

func TestEnqueueRejectsCompletedTriage(t *testing.T) {
	f := newFixture()
	a := f.assessment(model.CategoryGreen)
	a.Status = model.TriageStatusCompleted

	_, err := f.svc.Enqueue(context.Background(), &model.CreateQueueEntryRequest{
		TriageID:     a.ID,
		DepartmentID: f.opd.ID,
	})

	assert.True(t, apperrors.IsValidation(err))
}

func TestDepartmentQueueOrdersByPriorityThenNumber(t *testing.T) {
	f := newFixture()
	g1 := f.enqueue(t, f.opd, model.CategoryGreen)
	y := f.enqueue(t, f.opd, model.CategoryYellow)
	g2 := f.enqueue(t, f.opd, model.CategoryGreen)
	r := f.enqueue(t, f.opd, model.CategoryRed)

	view, err := f.svc.DepartmentQueue(context.Background(), f.opd.ID)
	require.NoError(t, err)

	var order []uuid.UUID
	for _, e := range view.Waiting {
		order = append(order, e.ID)
	}
	assert.Equal(t, []uuid.UUID{r.Queue.ID, y.Queue.ID, g1.Queue.ID, g2.Queue.ID}, order)
	assert.Empty(t, view.InProgress)
	assert.Equal(t, 10.0, view.AverageConsultationMin)

	for i := 1; i < len(view.Waiting); i++ {
		assert.False(t, view.Waiting[i].EstimatedStartTime.Before(*view.Waiting[i-1].EstimatedStartTime))
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	f := newFixture()
	first := f.enqueue(t, f.opd, model.CategoryGreen)
	second := f.enqueue(t, f.opd, model.CategoryGreen)
	ctx := context.Background()

	started, err := f.svc.UpdateStatus(ctx, first.Queue.ID, model.QueueStatusInProgress)
	require.NoError(t, err)
	require.NotNil(t, started.ActualStartTime)

	stored, err := f.svc.Get(ctx, second.Queue.ID)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), *stored.EstimatedStartTime)

	f.clock.Advance(12 * time.Minute)
	done, err := f.svc.UpdateStatus(ctx, first.Queue.ID, model.QueueStatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, done.ActualDurationMinutes)
	assert.InDelta(t, 12.0, *done.ActualDurationMinutes, 0.001)
	require.NotNil(t, done.CompletedAt)

	_, err = f.svc.UpdateStatus(ctx, first.Queue.ID, model.QueueStatusCancelled)
	assert.True(t, apperrors.IsValidation(err))
}

func TestUpdateStatusRejectsSkippingInProgress(t *testing.T) {
	f := newFixture()
	entry := f.enqueue(t, f.opd, model.CategoryGreen)

	_, err := f.svc.UpdateStatus(context.Background(), entry.Queue.ID, model.QueueStatusCompleted)

	assert.True(t, apperrors.IsValidation(err))
}

func TestUpdateStatusConcurrentChangeIsConflict(t *testing.T) {
	f := newFixture()
	entry := f.enqueue(t, f.opd, model.CategoryGreen)
	f.queues.staleOnce = true

	_, err := f.svc.UpdateStatus(context.Background(), entry.Queue.ID, model.QueueStatusInProgress)

	assert.True(t, apperrors.IsConflict(err))
	stored, err := f.svc.Get(context.Background(), entry.Queue.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusWaiting, stored.Status)
}

func TestUpdateStatusMissingEntry(t *testing.T) {
	f := newFixture()

	_, err := f.svc.UpdateStatus(context.Background(), uuid.New(), model.QueueStatusInProgress)

	assert.True(t, apperrors.IsNotFound(err))
}

func TestSyncTriagePriorityReordersQueue(t *testing.T) {
	f := newFixture()
	y := f.enqueue(t, f.opd, model.CategoryYellow)
	g := f.enqueue(t, f.opd, model.CategoryGreen)

	require.NoError(t, f.svc.SyncTriagePriority(context.Background(), g.Queue.TriageID, 3))

	view, err := f.svc.DepartmentQueue(context.Background(), f.opd.ID)
	require.NoError(t, err)
	require.Len(t, view.Waiting, 2)
	assert.Equal(t, g.Queue.ID, view.Waiting[0].ID)
	assert.Equal(t, y.Queue.ID, view.Waiting[1].ID)
}

func TestWaitingCount(t *testing.T) {
	f := newFixture()
	f.enqueue(t, f.opd, model.CategoryGreen)
	f.enqueue(t, f.opd, model.CategoryGreen)

	n, err := f.svc.WaitingCount(context.Background(), f.opd.ID)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWaitingCountIgnoresEarlierDays(t *testing.T) {
	f := newFixture()
	f.enqueue(t, f.opd, model.CategoryGreen)
	f.enqueue(t, f.opd, model.CategoryGreen)

	f.clock.Advance(24 * time.Hour)
	f.enqueue(t, f.opd, model.CategoryGreen)

	n, err := f.svc.WaitingCount(context.Background(), f.opd.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
