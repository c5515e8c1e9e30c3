package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "rentcar/internal/app/outbox"
	"rentcar/internal/infra/outbox"
)

type fakeQueue struct {
	mu      sync.Mutex
	pending []*outbox.Claimed
	sent    []string
	failed  map[string]time.Time
}

func (q *fakeQueue) Claim(context.Context, string) (*outbox.Claimed, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	c := q.pending[0]
	q.pending = q.pending[1:]
	return c, nil
}

func (q *fakeQueue) MarkSent(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, id)
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id string, next time.Time, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failed == nil {
		q.failed = map[string]time.Time{}
	}
	q.failed[id] = next
	return nil
}

type message struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type fakeProducer struct {
	fail map[string]bool
	got  []message
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.fail[key] {
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, message{topic: topic, key: key, payload: payload, headers: headers})
	return nil
}

func record(id, name, aggregate string) *outbox.Claimed {
	return &outbox.Claimed{Record: appoutbox.EventRecord{
		ID:         id,
		Name:       name,
		Payload:    []byte(`{"booking_id":"` + aggregate + `"}`),
		OccurredAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		Aggregate:  aggregate,
		Headers:    map[string]string{"traceparent": "00-abc-def-01"},
	}}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWorkerDrainPublishesCloudEvents(t *testing.T) {
	q := &fakeQueue{pending: []*outbox.Claimed{
		record("evt-1", "booking.cancelled", "bk-1"),
		record("evt-2", "payment.succeeded", "pay-1"),
	}}
	p := &fakeProducer{}
	w := &outbox.Worker{Store: q, Producer: p, TopicPrefix: "test.", ID: "w1", Logger: quietLogger()}

	sent, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"evt-1", "evt-2"}, q.sent)

	require.Len(t, p.got, 2)
	assert.Equal(t, "test.booking.events.v1", p.got[0].topic)
	assert.Equal(t, "test.payment.events.v1", p.got[1].topic)
	assert.Equal(t, "bk-1", p.got[0].key)
	assert.Equal(t, "application/cloudevents+json", p.got[0].headers["content-type"])

	var env map[string]any
	require.NoError(t, json.Unmarshal(p.got[0].payload, &env))
	assert.Equal(t, "evt-1", env["id"])
	assert.Equal(t, "booking.cancelled.v1", env["type"])
	assert.Equal(t, "app://rentcar", env["source"])
	assert.Equal(t, "00-abc-def-01", env["traceparent"])
	assert.Equal(t, map[string]any{"booking_id": "bk-1"}, env["data"])
}

func TestWorkerReschedulesFailedPublish(t *testing.T) {
	failing := record("evt-1", "booking.cancelled", "bk-down")
	failing.Attempts = 1
	q := &fakeQueue{pending: []*outbox.Claimed{failing, record("evt-2", "booking.cancelled", "bk-up")}}
	p := &fakeProducer{fail: map[string]bool{"bk-down": true}}
	w := &outbox.Worker{
		Store:    q,
		Producer: p,
		Backoff:  []time.Duration{time.Second, time.Minute},
		Logger:   quietLogger(),
	}

	before := time.Now()
	sent, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"evt-2"}, q.sent)
	require.Contains(t, q.failed, "evt-1")
	assert.WithinDuration(t, before.Add(time.Minute), q.failed["evt-1"], 5*time.Second)
}

func TestWorkerDrainRespectsBatch(t *testing.T) {
	q := &fakeQueue{}
	for _, id := range []string{"a", "b", "c"} {
		q.pending = append(q.pending, record(id, "booking.opened", "bk-"+id))
	}
	w := &outbox.Worker{Store: q, Producer: &fakeProducer{}, Batch: 2, Logger: quietLogger()}

	sent, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, q.pending, 1)
}

func TestWorkerRunRequiresDependencies(t *testing.T) {
	err := (&outbox.Worker{}).Run(context.Background())
	require.ErrorIs(t, err, outbox.ErrWorkerNotConfigured)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "extension.events.v1", outbox.TopicFor("", "extension.resolved"))
	assert.Equal(t, "p.standalone.events.v1", outbox.TopicFor("p.", "standalone"))
}
