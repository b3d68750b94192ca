package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoricalAverage(t *testing.T) {
	repo := newMemoryQueues()
	repo.durations = []float64{10, 20, 30}
	avg := NewHistoricalAverage(repo, 20, 15, time.Minute)
	dept := uuid.New()

	got, err := avg.AverageMinutes(context.Background(), dept)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got)

	repo.durations = []float64{40}
	got, err = avg.AverageMinutes(context.Background(), dept)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got, "cached value is served until invalidated")

	avg.Invalidate(dept)
	got, err = avg.AverageMinutes(context.Background(), dept)
	require.NoError(t, err)
	assert.Equal(t, 40.0, got)
}

func TestHistoricalAverageFallsBackWithoutHistory(t *testing.T) {
	avg := NewHistoricalAverage(newMemoryQueues(), 0, 15, 0)

	got, err := avg.AverageMinutes(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, 15.0, got)
}
