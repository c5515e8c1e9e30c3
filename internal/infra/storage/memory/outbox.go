package memory

import (
	"context"
	"sync"

	appoutbox "rentcar/internal/app/outbox"
	"rentcar/internal/app/uow"
)

// Outbox keeps events in memory. Events added inside a memory unit are held back until
// that unit commits. Flush hands pending records to Publish, when set, and drops them.
type Outbox struct {
	Publish func(ctx context.Context, rec appoutbox.EventRecord)

	mu      sync.Mutex
	records []appoutbox.EventRecord
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if unit, ok := uow.Current(ctx); ok {
		if mu, ok := unit.(*Unit); ok && !mu.readOnly {
			mu.stageEvent(record)
			return nil
		}
	}
	o.append(record)
	return nil
}

func (o *Outbox) append(record appoutbox.EventRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
}

func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	pending := o.records
	o.records = nil
	o.mu.Unlock()
	if o.Publish != nil {
		for _, rec := range pending {
			o.Publish(ctx, rec)
		}
	}
	return nil
}

// Pending returns a copy of the records not yet flushed.
func (o *Outbox) Pending() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]appoutbox.EventRecord, len(o.records))
	copy(out, o.records)
	return out
}

var _ appoutbox.Outbox = (*Outbox)(nil)
