// Package events carries the facts aggregates raise while changing state. The outbox
// turns them into broker messages after the unit of work commits.
package events

import "time"

type DomainEvent interface {
	// EventName is the dotted type, e.g. "booking.cancelled"; its first segment names
	// the topic family.
	EventName() string
	// AggregateID is the booking id for every event in this service. It keys the
	// broker partition.
	AggregateID() string
	OccurredAt() time.Time
}

// EventRecorder is embedded by aggregates.
type EventRecorder struct {
	raised []DomainEvent
}

func (r *EventRecorder) Record(event DomainEvent) {
	if event != nil {
		r.raised = append(r.raised, event)
	}
}

// PendingEvents returns a copy of the events raised since the last Drain.
func (r *EventRecorder) PendingEvents() []DomainEvent {
	return append([]DomainEvent(nil), r.raised...)
}

func (r *EventRecorder) Drain() []DomainEvent {
	out := r.raised
	r.raised = nil
	return out
}
