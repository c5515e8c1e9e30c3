package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcar/internal/app/commands"
	"rentcar/internal/app/middleware"
	"rentcar/internal/app/outbox"
	"rentcar/internal/infra/storage/memory"
)

type chargeCommand struct {
	BookingID string
	Amount    int64
	IdemKey   string
}

func (chargeCommand) Key() string              { return "test.charge" }
func (c chargeCommand) IdempotencyKey() string { return c.IdemKey }
func (chargeCommand) ResultPrototype() any     { return &chargeResult{} }

func (c chargeCommand) Validate() error {
	if c.BookingID == "" {
		return errors.New("booking id required")
	}
	return nil
}

type chargeResult struct {
	Attempt int32 `json:"attempt"`
}

func countingBus(calls *atomic.Int32) commands.Bus {
	return commands.BusFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
		return &chargeResult{Attempt: calls.Add(1)}, nil
	})
}

func TestGuardStopsAtFirstFailingCheck(t *testing.T) {
	var calls atomic.Int32
	denied := errors.New("denied")
	var ran []string
	bus := middleware.ChainCommands(countingBus(&calls), middleware.GuardCommands(
		func(ctx context.Context, _ any) error { ran = append(ran, "first"); return denied },
		func(ctx context.Context, _ any) error { ran = append(ran, "second"); return nil },
	))

	_, err := bus.Dispatch(context.Background(), chargeCommand{BookingID: "b-1"})
	require.ErrorIs(t, err, denied)
	assert.Equal(t, []string{"first"}, ran)
	assert.Zero(t, calls.Load())
}

func TestValidateUsesMessageValidation(t *testing.T) {
	require.Error(t, middleware.Validate(context.Background(), chargeCommand{}))
	require.NoError(t, middleware.Validate(context.Background(), chargeCommand{BookingID: "b-1"}))
	require.NoError(t, middleware.Validate(context.Background(), struct{}{}))
}

func TestIdempotencyReplaysAndDetectsReuse(t *testing.T) {
	var calls atomic.Int32
	bus := middleware.ChainCommands(countingBus(&calls), middleware.Idempotency(memory.NewIdempotencyStore(), nil))
	ctx := context.Background()
	cmd := chargeCommand{BookingID: "b-1", Amount: 100, IdemKey: "k"}

	first, err := commands.Dispatch[chargeCommand, *chargeResult](ctx, bus, cmd)
	require.NoError(t, err)
	again, err := commands.Dispatch[chargeCommand, *chargeResult](ctx, bus, cmd)
	require.NoError(t, err)
	assert.Equal(t, first.Attempt, again.Attempt)
	assert.EqualValues(t, 1, calls.Load())

	cmd.Amount = 200
	_, err = bus.Dispatch(ctx, cmd)
	require.ErrorIs(t, err, middleware.ErrIdempotencyKeyReused)

	_, err = bus.Dispatch(ctx, chargeCommand{BookingID: "b-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestIdempotencySerializesConcurrentRetries(t *testing.T) {
	var calls atomic.Int32
	bus := middleware.ChainCommands(countingBus(&calls), middleware.Idempotency(memory.NewIdempotencyStore(), nil))
	cmd := chargeCommand{BookingID: "b-1", IdemKey: "k"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := bus.Dispatch(context.Background(), cmd)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

type failingOutbox struct{ flushed int }

func (b *failingOutbox) Add(context.Context, outbox.EventRecord) error { return nil }
func (b *failingOutbox) Flush(context.Context) error {
	b.flushed++
	return errors.New("broker down")
}

func TestOutboxFlushFailureKeepsResult(t *testing.T) {
	var calls atomic.Int32
	var logs bytes.Buffer
	box := &failingOutbox{}
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	bus := middleware.ChainCommands(countingBus(&calls), middleware.OutboxFlush(box, logger))

	res, err := bus.Dispatch(context.Background(), chargeCommand{BookingID: "b-1"})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Equal(t, 1, box.flushed)
	assert.Contains(t, logs.String(), "outbox flush failed")
}
