package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
)

func entry(priority, number int, status model.QueueStatus) *model.QueueEntry {
	e := &model.QueueEntry{
		Priority:    priority,
		QueueNumber: number,
		Status:      status,
	}
	e.ID = uuid.New()
	return e
}

func TestSortOrdersByPriorityThenNumber(t *testing.T) {
	entries := []*model.QueueEntry{
		entry(1, 1, model.QueueStatusWaiting),
		entry(3, 4, model.QueueStatusWaiting),
		entry(2, 2, model.QueueStatusWaiting),
		entry(3, 3, model.QueueStatusWaiting),
		entry(1, 5, model.QueueStatusInProgress),
	}

	Sort(entries)

	got := make([][2]int, 0, len(entries))
	for _, e := range entries {
		got = append(got, [2]int{e.Priority, e.QueueNumber})
	}
	assert.Equal(t, [][2]int{{1, 5}, {3, 3}, {3, 4}, {2, 2}, {1, 1}}, got)
}

func TestRecalculate(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []*model.QueueEntry{
		entry(1, 1, model.QueueStatusWaiting),
		entry(1, 2, model.QueueStatusWaiting),
		entry(2, 3, model.QueueStatusWaiting),
		entry(1, 4, model.QueueStatusInProgress),
	}

	estimates := Recalculate(entries, base, 0)

	require.Len(t, estimates, 3)
	assert.Equal(t, entries[2].ID, estimates[0].EntryID)
	assert.Equal(t, base, estimates[0].EstimatedStartTime)
	assert.Equal(t, base.Add(15*time.Minute), estimates[1].EstimatedStartTime)
	assert.Equal(t, base.Add(30*time.Minute), estimates[2].EstimatedStartTime)
	assert.Nil(t, entries[3].EstimatedStartTime)
	require.NotNil(t, entries[0].EstimatedStartTime)
	assert.Equal(t, base.Add(15*time.Minute), *entries[0].EstimatedStartTime)
}

func TestRecalculateUsesHistoricalAverage(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []*model.QueueEntry{
		entry(1, 1, model.QueueStatusWaiting),
		entry(1, 2, model.QueueStatusWaiting),
	}

	estimates := Recalculate(entries, base, 7.5)

	assert.Equal(t, base.Add(7*time.Minute+30*time.Second), estimates[1].EstimatedStartTime)
}

func TestRecalculateEstimatesFollowQueueOrder(t *testing.T) {
	base := time.Now()
	var entries []*model.QueueEntry
	for i := 1; i <= 20; i++ {
		entries = append(entries, entry(i%4, i, model.QueueStatusWaiting))
	}

	estimates := Recalculate(entries, base, 12)

	_, waiting := Split(entries)
	for i := 1; i < len(estimates); i++ {
		assert.False(t, estimates[i].EstimatedStartTime.Before(estimates[i-1].EstimatedStartTime))
		assert.False(t, Less(waiting[i], waiting[i-1]), "inverted order at %d", i)
	}
}

func TestRedPatientJumpsGreenQueue(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []*model.QueueEntry{
		entry(1, 1, model.QueueStatusWaiting),
		entry(1, 2, model.QueueStatusWaiting),
		entry(1, 3, model.QueueStatusWaiting),
	}
	assert.Equal(t, 0, PositionFor(3, entries))

	red := entry(3, 4, model.QueueStatusWaiting)
	entries = append(entries, red)
	estimates := Recalculate(entries, now, 0)

	assert.Equal(t, red.ID, estimates[0].EntryID)
	assert.Equal(t, now, *red.EstimatedStartTime)
}

func TestPositionFor(t *testing.T) {
	waiting := []*model.QueueEntry{
		entry(3, 1, model.QueueStatusWaiting),
		entry(2, 2, model.QueueStatusWaiting),
		entry(1, 3, model.QueueStatusWaiting),
		entry(2, 4, model.QueueStatusInProgress),
	}
	assert.Equal(t, 2, PositionFor(2, waiting))
	assert.Equal(t, 3, PositionFor(1, waiting))
	assert.Equal(t, 3, PositionFor(0, waiting))
}

func TestEstimateStart(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(45*time.Minute), EstimateStart(base, 3, 0))
	assert.Equal(t, base.Add(30*time.Minute), EstimateStart(base, 3, 10))
}
