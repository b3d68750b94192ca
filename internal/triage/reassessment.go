package triage

import (
	"time"

	"github.com/jwalitptl/hospital-api/internal/model"
)

// ReassessmentInterval returns how long a category may go without
// reassessment. ok is false for categories that are never due.
func ReassessmentInterval(c model.TriageCategory) (time.Duration, bool) {
	switch c {
	case model.CategoryRed:
		return 10 * time.Minute, true
	case model.CategoryYellow:
		return 30 * time.Minute, true
	case model.CategoryGreen:
		return 60 * time.Minute, true
	default:
		return 0, false
	}
}

// ReassessmentDue reports whether at least the category interval has elapsed
// since lastAssessed.
func ReassessmentDue(c model.TriageCategory, lastAssessed, now time.Time) bool {
	interval, ok := ReassessmentInterval(c)
	if !ok {
		return false
	}
	return now.Sub(lastAssessed) >= interval
}

// Overdue returns how far past the due time the assessment is, or zero.
func Overdue(c model.TriageCategory, lastAssessed, now time.Time) time.Duration {
	interval, ok := ReassessmentInterval(c)
	if !ok {
		return 0
	}
	if d := now.Sub(lastAssessed) - interval; d > 0 {
		return d
	}
	return 0
}
