package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	appoutbox "rentcar/internal/app/outbox"
)

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Claimed is a record leased to one worker.
type Claimed struct {
	Record   appoutbox.EventRecord
	Attempts int
}

// Queue is the durable side of the outbox the worker drains.
type Queue interface {
	Claim(ctx context.Context, workerID string) (*Claimed, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
}

// Worker publishes committed outbox records as CloudEvents. Each tick drains up to Batch
// records; failed publishes are retried after Backoff[attempts].
type Worker struct {
	Store       Queue
	Producer    Producer
	Interval    time.Duration
	Batch       int
	TopicPrefix string
	Source      string
	ID          string
	Backoff     []time.Duration
	Logger      *slog.Logger
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Store == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Drain(ctx); err != nil {
				return err
			}
		}
	}
}

// Drain publishes due records until the queue is empty or the batch is spent and returns
// how many were sent. Only storage errors are returned; publish failures are rescheduled.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	sent := 0
	for i := 0; i < w.batch(); i++ {
		claimed, err := w.Store.Claim(ctx, w.ID)
		if err != nil {
			return sent, err
		}
		if claimed == nil {
			return sent, nil
		}
		if err := w.publish(ctx, claimed.Record); err != nil {
			next := w.nextRetry(claimed.Attempts)
			w.logger().WarnContext(ctx, "outbox publish failed",
				"event", claimed.Record.Name, "id", claimed.Record.ID, "attempts", claimed.Attempts+1, "retry_at", next, "error", err)
			if err := w.Store.MarkFailed(ctx, claimed.Record.ID, next, err.Error()); err != nil {
				return sent, err
			}
			continue
		}
		if err := w.Store.MarkSent(ctx, claimed.Record.ID); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// Publish sends rec straight to the producer. It backs the in-memory outbox, which has no
// durable queue to drain.
func (w *Worker) Publish(ctx context.Context, rec appoutbox.EventRecord) {
	if err := w.publish(ctx, rec); err != nil {
		w.logger().WarnContext(ctx, "event dropped", "event", rec.Name, "id", rec.ID, "error", err)
	}
}

func (w *Worker) publish(ctx context.Context, rec appoutbox.EventRecord) error {
	payload, headers, err := Envelope(rec, w.source())
	if err != nil {
		return err
	}
	return w.Producer.Publish(ctx, TopicFor(w.TopicPrefix, rec.Name), rec.Aggregate, payload, headers)
}

// Envelope wraps rec in a CloudEvents 1.0 JSON envelope.
func Envelope(rec appoutbox.EventRecord, source string) ([]byte, map[string]string, error) {
	data := map[string]any{}
	if err := json.Unmarshal(rec.Payload, &data); err != nil {
		return nil, nil, err
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              rec.ID,
		"type":            rec.Name + ".v1",
		"source":          source,
		"subject":         rec.Aggregate,
		"time":            rec.OccurredAt,
		"datacontenttype": "application/json",
		"data":            data,
	}
	if trace, ok := rec.Headers["traceparent"]; ok {
		evt["traceparent"] = trace
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{
		"content-type": "application/cloudevents+json",
	}
	for k, v := range rec.Headers {
		headers[k] = v
	}
	return payload, headers, nil
}

// TopicFor routes an event by its aggregate prefix: booking.cancelled goes to
// booking.events.v1.
func TopicFor(prefix, name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	return prefix + base + ".events.v1"
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) batch() int {
	if w.Batch <= 0 {
		return 100
	}
	return w.Batch
}

func (w *Worker) nextRetry(attempts int) time.Time {
	if attempts < len(w.Backoff) {
		return time.Now().Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return time.Now().Add(w.Backoff[len(w.Backoff)-1])
	}
	return time.Now().Add(5 * time.Second)
}

func (w *Worker) source() string {
	if w.Source != "" {
		return w.Source
	}
	return "app://rentcar"
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
