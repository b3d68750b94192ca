package queue

import (
	"fmt"

	"github.com/jwalitptl/hospital-api/internal/model"
)

var transitions = map[model.QueueStatus][]model.QueueStatus{
	model.QueueStatusWaiting:    {model.QueueStatusInProgress, model.QueueStatusCancelled},
	model.QueueStatusInProgress: {model.QueueStatusCompleted},
}

// CanTransition reports whether an entry may move from one status to another.
func CanTransition(from, to model.QueueStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a descriptive error for a disallowed transition.
func ValidateTransition(from, to model.QueueStatus) error {
	if !to.Valid() {
		return fmt.Errorf("unknown queue status %q", to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("cannot move queue entry from %s to %s", from, to)
	}
	return nil
}
