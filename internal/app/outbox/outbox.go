// Package outbox records domain events inside the unit of work that raised them, so an
// event is published if and only if its state change committed.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rentcar/internal/domain/shared/events"
)

// EventRecord is one queued event. Aggregate is the booking id and doubles as the
// broker partition key.
type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

type Outbox interface {
	// Add queues record; it joins the caller's transaction when ctx carries one.
	Add(ctx context.Context, record EventRecord) error
	// Flush hands queued records to the publisher. Stores polled by a worker no-op.
	Flush(ctx context.Context) error
}

// Source is an aggregate embedding events.EventRecorder.
type Source interface {
	Drain() []events.DomainEvent
}

// Recorder drains aggregates into Box. The zero value discards events.
type Recorder struct {
	Box Outbox
	// Headers adds transport metadata (request id, trace context) from ctx.
	Headers func(ctx context.Context) map[string]string
	NewID   func() string
}

func (r Recorder) Record(ctx context.Context, sources ...Source) error {
	if r.Box == nil {
		for _, src := range sources {
			if src != nil {
				src.Drain()
			}
		}
		return nil
	}
	for _, src := range sources {
		if src == nil {
			continue
		}
		for _, ev := range src.Drain() {
			rec, err := r.encode(ctx, ev)
			if err != nil {
				return err
			}
			if err := r.Box.Add(ctx, rec); err != nil {
				return fmt.Errorf("outbox: add %s: %w", rec.Name, err)
			}
		}
	}
	return nil
}

func (r Recorder) encode(ctx context.Context, ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, fmt.Errorf("outbox: encode %s: %w", ev.EventName(), err)
	}
	headers := map[string]string{}
	if r.Headers != nil {
		for k, v := range r.Headers(ctx) {
			if v != "" {
				headers[k] = v
			}
		}
	}
	newID := r.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return EventRecord{
		ID:         newID(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt(),
		Aggregate:  ev.AggregateID(),
		Headers:    headers,
	}, nil
}
