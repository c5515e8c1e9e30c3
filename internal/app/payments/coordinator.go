// Package payments coordinates outbound charges so that a booking never has two attempts
// in flight for the same purpose, and applies processor settlements exactly once.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rentcar/internal/app/locks"
	"rentcar/internal/app/outbox"
	"rentcar/internal/app/policies"
	"rentcar/internal/app/uow"
	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/extension"
	"rentcar/internal/domain/payment"
	"rentcar/internal/domain/shared/money"
)

const DefaultProcessorTimeout = 10 * time.Second

// SettlementHook runs inside the settling unit of work, under the booking lock, right
// after a payment of its purpose succeeds.
type SettlementHook func(ctx context.Context, unit uow.UnitOfWork, p *payment.Payment) error

type Coordinator struct {
	UoW       uow.UoWFactory
	Locks     *locks.Keyed
	Processor policies.ProcessorPort
	Events    outbox.Recorder
	Logger    *slog.Logger
	Timeout   time.Duration
	Clock     func() time.Time
	NewID     func() string

	hooks map[payment.Purpose]SettlementHook
}

// OnSettled registers the hook for purpose. Call during wiring only.
func (c *Coordinator) OnSettled(purpose payment.Purpose, hook SettlementHook) {
	if c.hooks == nil {
		c.hooks = make(map[payment.Purpose]SettlementHook)
	}
	c.hooks[purpose] = hook
}

// RequestPayment records a pending attempt and asks the processor for a charge. A zero
// amount means "whatever is currently due for purpose". The attempt is committed before
// the processor is called, so the booking lock is not held across the call unless the
// caller already holds it. A timeout or transport failure returns a ProcessorError and
// leaves the attempt pending until Settle or Reconcile learns its outcome.
func (c *Coordinator) RequestPayment(ctx context.Context, bookingID booking.BookingID, purpose payment.Purpose, amount money.Money) (*payment.Payment, error) {
	if _, err := payment.ParsePurpose(string(purpose)); err != nil {
		c.logger().Error("payment request with unknown purpose", "booking_id", bookingID, "purpose", purpose)
		return nil, err
	}
	attempt, err := c.openAttempt(ctx, bookingID, purpose, amount)
	if err != nil {
		return nil, err
	}
	charge, chargeErr := c.charge(ctx, attempt)

	// The caller's deadline may be what ended the charge; the outcome is recorded anyway.
	p, err := c.update(context.WithoutCancel(ctx), attempt, func(p *payment.Payment) bool {
		switch {
		case chargeErr == nil:
			if !p.Accepted(charge.OrderCode) {
				return false
			}
			c.logger().Info("charge requested", "booking_id", p.BookingID, "purpose", p.Purpose, "payment_id", p.ID, "order_code", charge.OrderCode)
			return true
		case errors.Is(chargeErr, policies.ErrChargeDeclined):
			c.logger().Warn("charge declined", "booking_id", p.BookingID, "purpose", p.Purpose, "payment_id", p.ID, "err", chargeErr)
			return p.Fail(payment.ReasonDeclined, c.now())
		}
		c.logger().Warn("charge outcome unknown, attempt left pending", "booking_id", p.BookingID, "purpose", p.Purpose, "payment_id", p.ID, "reason", classify(chargeErr), "err", chargeErr)
		return false
	})
	if err != nil {
		return nil, err
	}
	if chargeErr != nil {
		return p, &ProcessorError{PaymentID: p.ID, Reason: classify(chargeErr), Err: chargeErr}
	}
	return p, nil
}

func (c *Coordinator) openAttempt(ctx context.Context, bookingID booking.BookingID, purpose payment.Purpose, amount money.Money) (*payment.Payment, error) {
	ctx, unlock, err := c.Locks.Lock(ctx, string(bookingID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var attempt *payment.Payment
	err = uow.Run(ctx, c.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByID(ctx, bookingID)
		if err != nil {
			return err
		}
		pending, err := unit.Payments().PendingFor(ctx, bookingID, purpose)
		switch {
		case err == nil:
			c.logger().Debug("payment already in flight", "booking_id", bookingID, "purpose", purpose, "order_code", pending.OrderCode)
			return &InFlightError{BookingID: bookingID, Purpose: purpose, PaymentID: pending.ID, OrderCode: pending.OrderCode}
		case !errors.Is(err, payment.ErrPaymentNotFound):
			return err
		}
		due, err := c.amountDue(ctx, unit, b, purpose)
		if err != nil {
			return err
		}
		if !amount.IsZero() && amount != due {
			return fmt.Errorf("%w: requested %s, due %s", payment.ErrAmountMismatch, amount, due)
		}
		attempt, err = payment.NewPending(c.newID(), bookingID, purpose, due, c.now())
		if err != nil {
			return err
		}
		return unit.Payments().Create(ctx, attempt)
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

// update reloads p under its booking lock and saves it when apply reports a change.
func (c *Coordinator) update(ctx context.Context, p *payment.Payment, apply func(p *payment.Payment) bool) (*payment.Payment, error) {
	ctx, unlock, err := c.Locks.Lock(ctx, string(p.BookingID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var current *payment.Payment
	err = uow.Run(ctx, c.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		current, err = unit.Payments().ByID(ctx, p.ID)
		if err != nil {
			return err
		}
		if !apply(current) {
			return nil
		}
		if err := unit.Payments().Save(ctx, current); err != nil {
			return err
		}
		return c.Events.Record(ctx, current)
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

// MarkSucceeded settles the pending attempt identified by orderCode.
func (c *Coordinator) MarkSucceeded(ctx context.Context, orderCode string) (*payment.Payment, error) {
	return c.Settle(ctx, Notification{OrderCode: orderCode, Outcome: payment.StatusSuccess})
}

// MarkFailed closes the pending attempt identified by orderCode as declined.
func (c *Coordinator) MarkFailed(ctx context.Context, orderCode string) (*payment.Payment, error) {
	return c.Settle(ctx, Notification{OrderCode: orderCode, Outcome: payment.StatusFailed})
}

// Notification is a settlement report from the processor. Reference (our attempt id) is
// used when the order code is unknown, which happens for attempts whose charge call
// timed out.
type Notification struct {
	OrderCode string
	Reference string
	Outcome   payment.Status
}

// Settle applies n once. Reports for attempts that are no longer pending change nothing;
// they are logged and recorded as payment.late_settlement.
func (c *Coordinator) Settle(ctx context.Context, n Notification) (*payment.Payment, error) {
	if n.Outcome != payment.StatusSuccess && n.Outcome != payment.StatusFailed {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutcome, n.Outcome)
	}
	var bookingID booking.BookingID
	err := uow.Run(ctx, c.UoW, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := c.find(ctx, unit, n)
		if err != nil {
			return err
		}
		bookingID = p.BookingID
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx, unlock, err := c.Locks.Lock(ctx, string(bookingID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *payment.Payment
	err = uow.Run(ctx, c.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := c.find(ctx, unit, n)
		if err != nil {
			return err
		}
		result = p
		now := c.now()
		if p.Status == payment.StatusPending {
			p.Accepted(n.OrderCode)
		}
		var applied bool
		if n.Outcome == payment.StatusSuccess {
			applied = p.Succeed(now)
		} else {
			applied = p.Fail(payment.ReasonDeclined, now)
		}
		if !applied {
			p.LateOutcome(n.Outcome, now)
			c.logger().Warn("late settlement ignored", "booking_id", p.BookingID, "payment_id", p.ID, "order_code", p.OrderCode, "status", p.Status, "reported", n.Outcome)
			return c.Events.Record(ctx, p)
		}
		if err := unit.Payments().Save(ctx, p); err != nil {
			return err
		}
		c.logger().Info("payment settled", "booking_id", p.BookingID, "payment_id", p.ID, "purpose", p.Purpose, "status", p.Status)
		if err := c.Events.Record(ctx, p); err != nil {
			return err
		}
		if p.Status != payment.StatusSuccess {
			return nil
		}
		hook := c.hooks[p.Purpose]
		if hook == nil {
			return nil
		}
		if err := hook(ctx, unit, p); err != nil {
			if errors.Is(err, booking.ErrInvalidTransition) {
				// The charge is real even when the booking moved on; keep it for refunds.
				c.logger().Error("settled payment could not be applied to booking", "booking_id", p.BookingID, "payment_id", p.ID, "purpose", p.Purpose, "err", err)
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reconcile asks the processor about attempts that stayed pending longer than olderThan
// and settles those it has an answer for. Attempts whose charge call never returned are
// looked up by reference; one the processor never received is closed as abandoned so a
// new charge may be requested. It returns the number resolved.
func (c *Coordinator) Reconcile(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	var stale []*payment.Payment
	err := uow.Run(ctx, c.UoW, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		stale, err = unit.Payments().ListPendingBefore(ctx, c.now().Add(-olderThan), limit)
		return err
	})
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, p := range stale {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		orderCode := p.OrderCode
		if orderCode == "" {
			found, err := c.lookup(ctx, p.ID)
			switch {
			case errors.Is(err, policies.ErrChargeNotFound):
				if _, err := c.update(ctx, p, func(p *payment.Payment) bool {
					return p.OrderCode == "" && p.Fail(payment.ReasonAbandoned, c.now())
				}); err != nil {
					return settled, err
				}
				c.logger().Info("unacknowledged attempt abandoned", "booking_id", p.BookingID, "payment_id", p.ID)
				settled++
				continue
			case err != nil:
				c.logger().Warn("reconcile lookup failed", "payment_id", p.ID, "err", err)
				continue
			}
			orderCode = found.OrderCode
			if _, err := c.update(ctx, p, func(p *payment.Payment) bool { return p.Accepted(orderCode) }); err != nil {
				return settled, err
			}
		}
		status, err := c.status(ctx, orderCode)
		if err != nil {
			c.logger().Warn("reconcile status lookup failed", "payment_id", p.ID, "order_code", orderCode, "err", err)
			continue
		}
		var outcome payment.Status
		switch status {
		case policies.ChargePaid:
			outcome = payment.StatusSuccess
		case policies.ChargeCancelled, policies.ChargeExpired:
			outcome = payment.StatusFailed
		default:
			continue
		}
		if _, err := c.Settle(ctx, Notification{OrderCode: orderCode, Reference: p.ID, Outcome: outcome}); err != nil {
			return settled, err
		}
		settled++
	}
	return settled, nil
}

func (c *Coordinator) amountDue(ctx context.Context, unit uow.UnitOfWork, b *booking.Booking, purpose payment.Purpose) (money.Money, error) {
	notPayable := func(reason string) error {
		return &NotPayableError{Status: b.Status, Purpose: purpose, Reason: reason}
	}
	switch purpose {
	case payment.PurposeRentalFee:
		if b.Status != booking.StatusAwaitingRentalPayment {
			return money.Money{}, notPayable("rental payment not requested")
		}
		return b.Total, nil
	case payment.PurposeExtension:
		if b.Status != booking.StatusInProgress {
			return money.Money{}, notPayable("rental not in progress")
		}
		ext, err := unit.Extensions().Active(ctx, b.ID)
		if errors.Is(err, extension.ErrExtensionNotFound) {
			return money.Money{}, notPayable("no active extension")
		}
		if err != nil {
			return money.Money{}, err
		}
		return ext.Amount, nil
	case payment.PurposeAdditionalFee:
		if b.Status != booking.StatusReturnPending {
			return money.Money{}, notPayable("return not confirmed")
		}
		if !b.AssessedFees.Total.IsPositive() {
			return money.Money{}, notPayable("no additional fees assessed")
		}
		settled, err := hasSuccess(ctx, unit, b.ID, purpose)
		if err != nil {
			return money.Money{}, err
		}
		if settled {
			return money.Money{}, notPayable("additional fees already settled")
		}
		return b.AssessedFees.Total, nil
	}
	return money.Money{}, fmt.Errorf("%w: %q", payment.ErrUnknownPurpose, purpose)
}

func hasSuccess(ctx context.Context, unit uow.UnitOfWork, bookingID booking.BookingID, purpose payment.Purpose) (bool, error) {
	list, err := unit.Payments().ListByBooking(ctx, bookingID)
	if err != nil {
		return false, err
	}
	for _, p := range list {
		if p.Purpose == purpose && p.Status == payment.StatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (c *Coordinator) find(ctx context.Context, unit uow.UnitOfWork, n Notification) (*payment.Payment, error) {
	if n.OrderCode != "" {
		p, err := unit.Payments().ByOrderCode(ctx, n.OrderCode)
		if err == nil || !errors.Is(err, payment.ErrPaymentNotFound) || n.Reference == "" {
			return p, err
		}
	}
	if n.Reference != "" {
		return unit.Payments().ByID(ctx, n.Reference)
	}
	return nil, payment.ErrPaymentNotFound
}

func (c *Coordinator) charge(ctx context.Context, p *payment.Payment) (policies.ChargeResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	return c.Processor.CreateCharge(callCtx, policies.ChargeRequest{
		Reference:   p.ID,
		BookingID:   string(p.BookingID),
		Purpose:     string(p.Purpose),
		Amount:      p.Amount,
		Description: fmt.Sprintf("%s %s", p.Purpose, p.BookingID),
	})
}

func (c *Coordinator) status(ctx context.Context, orderCode string) (policies.ChargeStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	return c.Processor.Status(callCtx, orderCode)
}

func (c *Coordinator) lookup(ctx context.Context, reference string) (policies.ChargeResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	return c.Processor.FindByReference(callCtx, reference)
}

func classify(err error) payment.FailureReason {
	switch {
	case errors.Is(err, policies.ErrChargeDeclined):
		return payment.ReasonDeclined
	case errors.Is(err, context.DeadlineExceeded):
		return payment.ReasonTimeout
	default:
		return payment.ReasonTransport
	}
}

func (c *Coordinator) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultProcessorTimeout
	}
	return c.Timeout
}

func (c *Coordinator) now() time.Time {
	if c.Clock != nil {
		return c.Clock().UTC()
	}
	return time.Now().UTC()
}

func (c *Coordinator) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
