// Package queue orders a department's consultation queue and estimates start times.
package queue

import (
	"sort"
	"time"

	"github.com/jwalitptl/hospital-api/internal/model"
)

// DefaultAverageConsultation is used when no historical average is available.
const DefaultAverageConsultation = 15 * time.Minute

// Less orders two waiting entries: higher priority first, then lower queue number.
func Less(a, b *model.QueueEntry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.QueueNumber != b.QueueNumber {
		return a.QueueNumber < b.QueueNumber
	}
	return a.CheckInTime.Before(b.CheckInTime)
}

// Sort orders entries in place. IN_PROGRESS entries come first, in the order
// they started, followed by WAITING entries by priority and queue number.
// Entries in any other status are moved to the end.
func Sort(entries []*model.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		ra, rb := statusRank(a.Status), statusRank(b.Status)
		if ra != rb {
			return ra < rb
		}
		if a.Status == model.QueueStatusInProgress {
			return startedBefore(a, b)
		}
		return Less(a, b)
	})
}

func statusRank(s model.QueueStatus) int {
	switch s {
	case model.QueueStatusInProgress:
		return 0
	case model.QueueStatusWaiting:
		return 1
	default:
		return 2
	}
}

func startedBefore(a, b *model.QueueEntry) bool {
	switch {
	case a.ActualStartTime == nil:
		return false
	case b.ActualStartTime == nil:
		return true
	default:
		return a.ActualStartTime.Before(*b.ActualStartTime)
	}
}

// Split sorts entries and separates in-progress from waiting ones.
func Split(entries []*model.QueueEntry) (inProgress, waiting []*model.QueueEntry) {
	sorted := make([]*model.QueueEntry, len(entries))
	copy(sorted, entries)
	Sort(sorted)

	for _, e := range sorted {
		switch e.Status {
		case model.QueueStatusInProgress:
			inProgress = append(inProgress, e)
		case model.QueueStatusWaiting:
			waiting = append(waiting, e)
		}
	}
	return inProgress, waiting
}

// AverageOrDefault converts a caller supplied average in minutes into a
// duration, falling back to DefaultAverageConsultation when unusable.
func AverageOrDefault(avgMinutes float64) time.Duration {
	if avgMinutes <= 0 {
		return DefaultAverageConsultation
	}
	return time.Duration(avgMinutes * float64(time.Minute))
}

// Recalculate sorts the entries and assigns every WAITING entry an estimated
// start of base + position*average. Estimates are written onto the entries
// and also returned in queue order.
func Recalculate(entries []*model.QueueEntry, base time.Time, avgMinutes float64) []model.StartEstimate {
	avg := AverageOrDefault(avgMinutes)
	_, waiting := Split(entries)

	estimates := make([]model.StartEstimate, 0, len(waiting))
	for i, e := range waiting {
		at := base.Add(time.Duration(i) * avg)
		e.EstimatedStartTime = &at
		estimates = append(estimates, model.StartEstimate{
			EntryID:            e.ID,
			Position:           i,
			EstimatedStartTime: at,
		})
	}
	return estimates
}

// PositionFor returns the position a new entry with the given priority would
// take among the waiting entries. New entries always carry the highest queue
// number of the day, so they go behind every entry of equal or higher priority.
func PositionFor(priority int, waiting []*model.QueueEntry) int {
	pos := 0
	for _, e := range waiting {
		if e.Status != model.QueueStatusWaiting {
			continue
		}
		if e.Priority >= priority {
			pos++
		}
	}
	return pos
}

// EstimateStart returns base + position*average.
func EstimateStart(base time.Time, position int, avgMinutes float64) time.Time {
	return base.Add(time.Duration(position) * AverageOrDefault(avgMinutes))
}
