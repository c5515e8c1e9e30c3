package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/shared/events"
	"rentcar/internal/domain/shared/money"
)

var (
	ErrUnknownPurpose   = errors.New("payment: unknown purpose")
	ErrPaymentNotFound  = errors.New("payment: not found")
	ErrInvalidAmount    = errors.New("payment: amount must be positive")
	ErrAmountMismatch   = errors.New("payment: amount does not match what is due")
	ErrDuplicatePending = errors.New("payment: pending payment already exists")
)

// Purpose names the obligation a charge settles.
type Purpose string

const (
	PurposeRentalFee     Purpose = "rentalFee"
	PurposeExtension     Purpose = "extension"
	PurposeAdditionalFee Purpose = "additionalFee"
)

func ParsePurpose(raw string) (Purpose, error) {
	switch p := Purpose(raw); p {
	case PurposeRentalFee, PurposeExtension, PurposeAdditionalFee:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPurpose, raw)
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// FailureReason explains why a charge attempt did not go through. A failed attempt is
// closed with ReasonDeclined or ReasonAbandoned. Timeout and transport trouble leave the
// attempt pending because the true outcome may still arrive.
type FailureReason string

const (
	ReasonDeclined  FailureReason = "declined"
	ReasonTimeout   FailureReason = "timeout"
	ReasonTransport FailureReason = "transport"
	// ReasonAbandoned closes an attempt the processor never received.
	ReasonAbandoned FailureReason = "abandoned"
)

type Payment struct {
	ID            string
	OrderCode     string
	BookingID     booking.BookingID
	Purpose       Purpose
	Amount        money.Money
	Status        Status
	FailureReason FailureReason
	CreatedAt     time.Time
	SettledAt     time.Time
	events.EventRecorder
}

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	Save(ctx context.Context, p *Payment) error
	ByID(ctx context.Context, id string) (*Payment, error)
	ByOrderCode(ctx context.Context, orderCode string) (*Payment, error)
	PendingFor(ctx context.Context, bookingID booking.BookingID, purpose Purpose) (*Payment, error)
	ListByBooking(ctx context.Context, bookingID booking.BookingID) ([]*Payment, error)
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]*Payment, error)
}

func NewPending(id string, bookingID booking.BookingID, purpose Purpose, amount money.Money, now time.Time) (*Payment, error) {
	if _, err := ParsePurpose(string(purpose)); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return &Payment{
		ID:        id,
		BookingID: bookingID,
		Purpose:   purpose,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now.UTC(),
	}, nil
}

func (p *Payment) Clone() *Payment {
	c := *p
	c.EventRecorder = events.EventRecorder{}
	return &c
}

// Accepted records the processor's order code for a charge it acknowledged. The first
// code wins; it reports false when one is already known.
func (p *Payment) Accepted(orderCode string) bool {
	if orderCode == "" || p.OrderCode != "" {
		return false
	}
	p.OrderCode = orderCode
	p.Record(PaymentRequested{PaymentID: p.ID, BookingID: p.BookingID, OrderCode: orderCode, Purpose: p.Purpose, Amount: p.Amount, At: p.CreatedAt})
	return true
}

// Succeed settles a pending payment. It reports false and changes nothing otherwise.
func (p *Payment) Succeed(now time.Time) bool {
	if p.Status != StatusPending {
		return false
	}
	p.Status = StatusSuccess
	p.SettledAt = now.UTC()
	p.Record(PaymentSucceeded{PaymentID: p.ID, BookingID: p.BookingID, OrderCode: p.OrderCode, Purpose: p.Purpose, Amount: p.Amount, At: p.SettledAt})
	return true
}

// Fail closes a pending payment. It reports false and changes nothing otherwise.
func (p *Payment) Fail(reason FailureReason, now time.Time) bool {
	if p.Status != StatusPending {
		return false
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	p.SettledAt = now.UTC()
	p.Record(PaymentFailed{PaymentID: p.ID, BookingID: p.BookingID, OrderCode: p.OrderCode, Purpose: p.Purpose, Reason: reason, At: p.SettledAt})
	return true
}

// LateOutcome records a settlement that arrived after the attempt was already closed.
func (p *Payment) LateOutcome(outcome Status, now time.Time) {
	p.Record(LateSettlementIgnored{PaymentID: p.ID, BookingID: p.BookingID, OrderCode: p.OrderCode, Current: p.Status, Reported: outcome, At: now.UTC()})
}
