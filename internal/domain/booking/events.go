package booking

import (
	"time"

	"rentcar/internal/domain/fees"
	"rentcar/internal/domain/shared/daterange"
	"rentcar/internal/domain/shared/money"
)

type BookingOpened struct {
	BookingID BookingID
	RenterID  string
	CarID     string
	Window    daterange.DateRange
	Total     money.Money
	At        time.Time
}

func (e BookingOpened) EventName() string     { return "booking.opened" }
func (e BookingOpened) AggregateID() string   { return string(e.BookingID) }
func (e BookingOpened) OccurredAt() time.Time { return e.At }

type RentalPaymentRequested struct {
	BookingID BookingID
	Amount    money.Money
	At        time.Time
}

func (e RentalPaymentRequested) EventName() string     { return "booking.rental_payment_requested" }
func (e RentalPaymentRequested) AggregateID() string   { return string(e.BookingID) }
func (e RentalPaymentRequested) OccurredAt() time.Time { return e.At }

type RentalPaid struct {
	BookingID BookingID
	OrderCode string
	At        time.Time
}

func (e RentalPaid) EventName() string     { return "booking.rental_paid" }
func (e RentalPaid) AggregateID() string   { return string(e.BookingID) }
func (e RentalPaid) OccurredAt() time.Time { return e.At }

type PickupConfirmed struct {
	BookingID BookingID
	StaffID   string
	At        time.Time
}

func (e PickupConfirmed) EventName() string     { return "booking.pickup_confirmed" }
func (e PickupConfirmed) AggregateID() string   { return string(e.BookingID) }
func (e PickupConfirmed) OccurredAt() time.Time { return e.At }

type ReturnConfirmed struct {
	BookingID BookingID
	StaffID   string
	Fees      fees.Breakdown
	At        time.Time
}

func (e ReturnConfirmed) EventName() string     { return "booking.return_confirmed" }
func (e ReturnConfirmed) AggregateID() string   { return string(e.BookingID) }
func (e ReturnConfirmed) OccurredAt() time.Time { return e.At }

type AdditionalFeesAssessed struct {
	BookingID BookingID
	Fees      fees.Breakdown
	At        time.Time
}

func (e AdditionalFeesAssessed) EventName() string     { return "booking.fees_assessed" }
func (e AdditionalFeesAssessed) AggregateID() string   { return string(e.BookingID) }
func (e AdditionalFeesAssessed) OccurredAt() time.Time { return e.At }

type BookingCompleted struct {
	BookingID BookingID
	At        time.Time
}

func (e BookingCompleted) EventName() string     { return "booking.completed" }
func (e BookingCompleted) AggregateID() string   { return string(e.BookingID) }
func (e BookingCompleted) OccurredAt() time.Time { return e.At }

type BookingCancelled struct {
	BookingID  BookingID
	Settlement fees.Settlement
	Reason     string
	At         time.Time
}

func (e BookingCancelled) EventName() string     { return "booking.cancelled" }
func (e BookingCancelled) AggregateID() string   { return string(e.BookingID) }
func (e BookingCancelled) OccurredAt() time.Time { return e.At }

type BookingExtended struct {
	BookingID BookingID
	Days      int
	Dropoff   time.Time
	At        time.Time
}

func (e BookingExtended) EventName() string     { return "booking.extended" }
func (e BookingExtended) AggregateID() string   { return string(e.BookingID) }
func (e BookingExtended) OccurredAt() time.Time { return e.At }
