package payment

import (
	"time"

	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/shared/money"
)

type PaymentRequested struct {
	PaymentID string
	BookingID booking.BookingID
	OrderCode string
	Purpose   Purpose
	Amount    money.Money
	At        time.Time
}

func (e PaymentRequested) EventName() string     { return "payment.requested" }
func (e PaymentRequested) AggregateID() string   { return string(e.BookingID) }
func (e PaymentRequested) OccurredAt() time.Time { return e.At }

type PaymentSucceeded struct {
	PaymentID string
	BookingID booking.BookingID
	OrderCode string
	Purpose   Purpose
	Amount    money.Money
	At        time.Time
}

func (e PaymentSucceeded) EventName() string     { return "payment.succeeded" }
func (e PaymentSucceeded) AggregateID() string   { return string(e.BookingID) }
func (e PaymentSucceeded) OccurredAt() time.Time { return e.At }

type PaymentFailed struct {
	PaymentID string
	BookingID booking.BookingID
	OrderCode string
	Purpose   Purpose
	Reason    FailureReason
	At        time.Time
}

func (e PaymentFailed) EventName() string     { return "payment.failed" }
func (e PaymentFailed) AggregateID() string   { return string(e.BookingID) }
func (e PaymentFailed) OccurredAt() time.Time { return e.At }

// LateSettlementIgnored flags money that may have moved after the attempt was closed,
// so finance can reconcile or refund it.
type LateSettlementIgnored struct {
	PaymentID string
	BookingID booking.BookingID
	OrderCode string
	Current   Status
	Reported  Status
	At        time.Time
}

func (e LateSettlementIgnored) EventName() string     { return "payment.late_settlement" }
func (e LateSettlementIgnored) AggregateID() string   { return string(e.BookingID) }
func (e LateSettlementIgnored) OccurredAt() time.Time { return e.At }
