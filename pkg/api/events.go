package api

import "time"

// EventType identifies a job lifecycle or progress notification.
type EventType string

const (
	EventJobCreated   EventType = "job.created"
	EventJobStarted   EventType = "job.started"
	EventJobPaused    EventType = "job.paused"
	EventJobResumed   EventType = "job.resumed"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
	EventJobCancelled EventType = "job.cancelled"

	EventLevelStarted   EventType = "level.started"
	EventLevelCompleted EventType = "level.completed"

	EventStepStarted   EventType = "step.started"
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"
	EventStepSkipped   EventType = "step.skipped"

	EventCheckpointSaved   EventType = "checkpoint.saved"
	EventCheckpointWarning EventType = "checkpoint.warning"
)

// Event is a transient notification published on the event bus. Events are
// delivered to current subscribers in emission order per job; there is no
// cross-job ordering guarantee.
type Event struct {
	Type  EventType
	JobID string

	// StepID is set for step-scoped events, empty otherwise.
	StepID string

	// Level is the execution level the event refers to, or -1 when not
	// applicable.
	Level int

	At time.Time

	// Detail is a small, human-oriented note (e.g. an error string).
	// Keep this low-volume: do NOT dump large payloads here.
	Detail string
}

// EventFilter selects which events a subscriber receives.
// Zero values mean "no filter" for that field.
type EventFilter struct {
	// JobID, if non-empty, limits delivery to events of the given job.
	JobID string

	// Types, if non-empty, limits delivery to the listed event types.
	Types []EventType
}

// Matches reports whether the filter admits the given event.
func (f EventFilter) Matches(ev Event) bool {
	if f.JobID != "" && ev.JobID != f.JobID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// Subscription is a live event feed. Close releases the subscription;
// afterwards the channel is closed and no further events are delivered.
type Subscription interface {
	// Events returns the channel on which matching events arrive. Delivery
	// is best-effort, at-most-once: events published while the channel is
	// full are dropped for this subscriber.
	Events() <-chan Event

	Close()
}
