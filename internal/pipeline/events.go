package pipeline

import (
	"time"

	"shorteezy/internal/model"
)

type EventType string

const (
	EventStarted   EventType = "started"
	EventRetry     EventType = "retry"
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
	EventSkipped   EventType = "skipped"
)

// Event reports one step of one segment's generation. Summary is a snapshot
// of the run's counts taken right after the step was written back.
type Event struct {
	Type    EventType
	Kind    model.Kind
	Index   int
	Attempt int
	Delay   time.Duration
	Path    string
	Reason  string
	Err     error
	Summary model.Summary
}

func (e Event) Label() string {
	return model.Segment{Kind: e.Kind, TypeIndex: e.Index}.Label()
}

// Observer receives events from concurrently running segment tasks, so
// implementations must be safe for concurrent use.
type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
