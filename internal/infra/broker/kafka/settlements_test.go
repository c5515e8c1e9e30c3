package kafka_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcar/internal/app/apptest"
	"rentcar/internal/app/handlers/bookings"
	"rentcar/internal/app/lifecycle"
	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/payment"
	"rentcar/internal/infra/broker/kafka"
	"rentcar/internal/infra/inbox"
	"rentcar/internal/infra/storage/memory"
)

func newHandler(h *apptest.Harness) *kafka.SettlementHandler {
	cmds, _ := bookings.NewBuses(bookings.Services{
		UoW:        h.UoW,
		Fees:       h.Fees,
		Machine:    h.Machine,
		Payments:   h.Payments,
		Extensions: h.Extensions,
		Records:    h.Records,
		View:       h.View,
	}, memory.NewIdempotencyStore(), nil)
	return &kafka.SettlementHandler{
		Bus:    cmds,
		Inbox:  inbox.NewMemory(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func settlement(t *testing.T, offset int64, m kafka.SettlementMessage) *sarama.ConsumerMessage {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: "payments.settlements.v1", Offset: offset, Value: raw}
}

func TestSettlementHandlerAppliesOutcome(t *testing.T) {
	h := apptest.New()
	handler := newHandler(h)
	b := h.Open(t)
	out := h.Transition(t, b.ID, booking.EventRequestRentalPayment, lifecycle.Payload{Charge: true})
	require.NotNil(t, out.Payment)

	msg := settlement(t, 1, kafka.SettlementMessage{EventID: "evt-1", OrderCode: out.Payment.OrderCode, Outcome: "SUCCESS"})
	require.NoError(t, handler.Handle(context.Background(), msg))

	view, err := h.View.View(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, string(booking.StatusPickupPending), view.Booking.Status)
	require.NotNil(t, view.RentalPayment)
	assert.Equal(t, string(payment.StatusSuccess), view.RentalPayment.Status)

	// Redelivery is swallowed by the inbox.
	require.NoError(t, handler.Handle(context.Background(), msg))
	late := 0
	for _, rec := range h.Outbox.Pending() {
		if rec.Name == "payment.late_settlement" {
			late++
		}
	}
	assert.Zero(t, late)
}

func TestSettlementHandlerAcknowledgesPoisonMessages(t *testing.T) {
	h := apptest.New()
	handler := newHandler(h)

	bad := &sarama.ConsumerMessage{Topic: "payments.settlements.v1", Offset: 7, Value: []byte("{not json")}
	assert.NoError(t, handler.Handle(context.Background(), bad))

	unknown := settlement(t, 8, kafka.SettlementMessage{EventID: "evt-x", OrderCode: "no-such-order", Outcome: "success"})
	assert.NoError(t, handler.Handle(context.Background(), unknown))

	odd := settlement(t, 9, kafka.SettlementMessage{EventID: "evt-y", OrderCode: "no-such-order", Outcome: "refunded"})
	assert.NoError(t, handler.Handle(context.Background(), odd))
}
