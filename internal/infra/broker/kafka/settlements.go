package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"

	"rentcar/internal/app/commands"
	"rentcar/internal/app/dto"
	"rentcar/internal/app/handlers/bookings"
	"rentcar/internal/app/payments"
	"rentcar/internal/domain/payment"
	"rentcar/internal/infra/inbox"
)

// SettlementMessage is the processor notification published on the settlements topic.
type SettlementMessage struct {
	EventID   string `json:"event_id"`
	OrderCode string `json:"order_code"`
	Reference string `json:"reference"`
	Outcome   string `json:"outcome"`
}

// SettlementHandler turns settlement messages into SettlePaymentCommand dispatches.
// Deliveries are de-duplicated by event id; malformed or unmatched notifications are
// logged and acknowledged so they do not block the partition.
type SettlementHandler struct {
	Bus    commands.Bus
	Inbox  inbox.Inbox
	Logger *slog.Logger
}

func (h *SettlementHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var in SettlementMessage
	if err := json.Unmarshal(msg.Value, &in); err != nil {
		h.logger().WarnContext(ctx, "settlement message malformed", "offset", msg.Offset, "error", err)
		return nil
	}
	eventID := strings.TrimSpace(in.EventID)
	if eventID == "" {
		eventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, eventID)
		if err != nil {
			return err
		}
		if seen {
			h.logger().DebugContext(ctx, "settlement redelivered", "event_id", eventID)
			return nil
		}
	}

	p, err := commands.Dispatch[bookings.SettlePaymentCommand, *dto.PaymentDTO](ctx, h.Bus, bookings.SettlePaymentCommand{
		OrderCode: in.OrderCode,
		Reference: in.Reference,
		Outcome:   payment.Status(strings.ToLower(strings.TrimSpace(in.Outcome))),
		EventID:   eventID,
	})
	switch {
	case err == nil:
		h.logger().InfoContext(ctx, "settlement applied", "event_id", eventID, "order_code", p.OrderCode, "status", p.Status)
		return nil
	case permanent(err):
		h.logger().WarnContext(ctx, "settlement rejected", "event_id", eventID, "order_code", in.OrderCode, "error", err)
		return nil
	}
	if h.Inbox != nil {
		if ferr := h.Inbox.Forget(ctx, eventID); ferr != nil {
			return errors.Join(err, ferr)
		}
	}
	return err
}

func permanent(err error) bool {
	return errors.Is(err, payment.ErrPaymentNotFound) ||
		errors.Is(err, payments.ErrUnknownOutcome) ||
		errors.Is(err, bookings.ErrOrderCodeRequired)
}

func (h *SettlementHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ MessageHandler = (*SettlementHandler)(nil)
