package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/hospital-api/internal/model"
)

func TestReassessmentDue(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		category model.TriageCategory
		elapsed  time.Duration
		want     bool
	}{
		{"red 11 minutes", model.CategoryRed, 11 * time.Minute, true},
		{"red 9 minutes", model.CategoryRed, 9 * time.Minute, false},
		{"red exactly 10 minutes", model.CategoryRed, 10 * time.Minute, true},
		{"yellow 29 minutes", model.CategoryYellow, 29 * time.Minute, false},
		{"yellow 31 minutes", model.CategoryYellow, 31 * time.Minute, true},
		{"green 59 minutes", model.CategoryGreen, 59 * time.Minute, false},
		{"green 61 minutes", model.CategoryGreen, 61 * time.Minute, true},
		{"black never due", model.CategoryBlack, 24 * time.Hour, false},
		{"unknown never due", "", 24 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReassessmentDue(tt.category, now.Add(-tt.elapsed), now))
		})
	}
}

func TestOverdue(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 5*time.Minute, Overdue(model.CategoryRed, now.Add(-15*time.Minute), now))
	assert.Zero(t, Overdue(model.CategoryRed, now.Add(-5*time.Minute), now))
	assert.Zero(t, Overdue(model.CategoryBlack, now.Add(-5*time.Hour), now))
}
