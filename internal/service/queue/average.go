package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/hospital-api/internal/repository"
)

// AverageProvider supplies the average consultation duration used for wait
// estimates. A non-positive average makes the sequencer use its default.
type AverageProvider interface {
	AverageMinutes(ctx context.Context, departmentID uuid.UUID) (float64, error)
	Invalidate(departmentID uuid.UUID)
}

// HistoricalAverage averages the durations of a department's most recent
// completed entries and caches the result per department.
type HistoricalAverage struct {
	repo     repository.QueueRepository
	window   int
	fallback float64
	cache    *cache.Cache
}

func NewHistoricalAverage(repo repository.QueueRepository, window int, fallback float64, ttl time.Duration) *HistoricalAverage {
	if window <= 0 {
		window = 20
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &HistoricalAverage{
		repo:     repo,
		window:   window,
		fallback: fallback,
		cache:    cache.New(ttl, 2*ttl),
	}
}

func (h *HistoricalAverage) AverageMinutes(ctx context.Context, departmentID uuid.UUID) (float64, error) {
	key := departmentID.String()
	if v, ok := h.cache.Get(key); ok {
		return v.(float64), nil
	}

	durations, err := h.repo.RecentDurations(ctx, departmentID, h.window)
	if err != nil {
		return h.fallback, fmt.Errorf("failed to load consultation durations: %w", err)
	}

	avg := h.fallback
	if len(durations) > 0 {
		var sum float64
		for _, d := range durations {
			sum += d
		}
		avg = sum / float64(len(durations))
	}

	h.cache.Set(key, avg, cache.DefaultExpiration)
	return avg, nil
}

func (h *HistoricalAverage) Invalidate(departmentID uuid.UUID) {
	h.cache.Delete(departmentID.String())
}

// FixedAverage always reports the same average. Used by the CLI and tests.
type FixedAverage float64

func (f FixedAverage) AverageMinutes(context.Context, uuid.UUID) (float64, error) {
	return float64(f), nil
}

func (FixedAverage) Invalidate(uuid.UUID) {}
