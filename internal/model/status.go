package model

import "fmt"

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusPending:    true,
		StatusInProgress: true,
		StatusSucceeded:  true, // asset already on disk from an earlier run
		StatusFailed:     true,
	},
	StatusInProgress: {
		StatusInProgress: true,
		StatusSucceeded:  true,
		StatusFailed:     true,
	},
	StatusSucceeded: {
		StatusSucceeded: true,
		StatusPending:   true, // asset missing locally, needs regeneration
	},
	StatusFailed: {
		StatusFailed:  true,
		StatusPending: true,
	},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func IsTerminal(status string) bool {
	return status == StatusSucceeded || status == StatusFailed
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionSegmentStatus(seg *Segment, toStatus string, reason string) error {
	from := seg.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid segment status transition: %q -> %q (kind=%s index=%d)", from, toStatus, seg.Kind, seg.TypeIndex)
	}
	seg.Status = toStatus
	seg.Reason = reason
	return nil
}
