package extension

import (
	"context"
	"errors"
	"time"

	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/shared/events"
	"rentcar/internal/domain/shared/money"
)

var (
	ErrExtensionNotFound = errors.New("extension: not found")
	ErrInvalidDays       = errors.New("extension: requested days must be positive")
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// Request lengthens a rental once its payment succeeds. A booking has at most one
// unresolved request at a time; resolved requests are kept as history.
type Request struct {
	ID            string
	BookingID     booking.BookingID
	RequestedDays int
	Description   string
	Amount        money.Money
	PaymentStatus PaymentStatus
	OrderCode     string
	CreatedAt     time.Time
	ResolvedAt    time.Time
	events.EventRecorder
}

type Repository interface {
	// Active returns the unresolved request for the booking, or ErrExtensionNotFound.
	Active(ctx context.Context, bookingID booking.BookingID) (*Request, error)
	// Latest returns the most recent request regardless of state, or ErrExtensionNotFound.
	Latest(ctx context.Context, bookingID booking.BookingID) (*Request, error)
	Create(ctx context.Context, req *Request) error
	Save(ctx context.Context, req *Request) error
}

func New(id string, bookingID booking.BookingID, days int, description string, amount money.Money, now time.Time) (*Request, error) {
	if days <= 0 {
		return nil, ErrInvalidDays
	}
	r := &Request{
		ID:            id,
		BookingID:     bookingID,
		RequestedDays: days,
		Description:   description,
		Amount:        amount,
		PaymentStatus: PaymentPending,
		CreatedAt:     now.UTC(),
	}
	r.Record(Requested{RequestID: id, BookingID: bookingID, Days: days, Amount: amount, At: r.CreatedAt})
	return r, nil
}

func (r *Request) Resolved() bool {
	return r.PaymentStatus == PaymentCompleted
}

// Complete marks the request paid. Calling it twice is a no-op.
func (r *Request) Complete(orderCode string, now time.Time) bool {
	if r.Resolved() {
		return false
	}
	r.PaymentStatus = PaymentCompleted
	r.OrderCode = orderCode
	r.ResolvedAt = now.UTC()
	r.Record(Resolved{RequestID: r.ID, BookingID: r.BookingID, OrderCode: orderCode, At: r.ResolvedAt})
	return true
}

func (r *Request) Clone() *Request {
	c := *r
	c.EventRecorder = events.EventRecorder{}
	return &c
}

type Requested struct {
	RequestID string
	BookingID booking.BookingID
	Days      int
	Amount    money.Money
	At        time.Time
}

func (e Requested) EventName() string     { return "extension.requested" }
func (e Requested) AggregateID() string   { return string(e.BookingID) }
func (e Requested) OccurredAt() time.Time { return e.At }

type Resolved struct {
	RequestID string
	BookingID booking.BookingID
	OrderCode string
	At        time.Time
}

func (e Resolved) EventName() string     { return "extension.resolved" }
func (e Resolved) AggregateID() string   { return string(e.BookingID) }
func (e Resolved) OccurredAt() time.Time { return e.At }
