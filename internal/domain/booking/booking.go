package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"rentcar/internal/domain/fees"
	"rentcar/internal/domain/shared/daterange"
	"rentcar/internal/domain/shared/events"
	"rentcar/internal/domain/shared/money"
)

var (
	ErrBookingNotFound  = errors.New("booking: not found")
	ErrBookingExists    = errors.New("booking: already exists")
	ErrRenterRequired   = errors.New("booking: renter id required")
	ErrCarRequired      = errors.New("booking: car id required")
	ErrInvalidTotal     = errors.New("booking: total must be positive")
	ErrInvalidDailyRate = errors.New("booking: daily rate must be positive")
)

type BookingID string

type Booking struct {
	ID           BookingID
	RenterID     string
	CarID        string
	PickupPlace  string
	DropoffPlace string
	Window       daterange.DateRange
	Total        money.Money
	DailyRate    money.Money
	Status       Status
	AssessedFees fees.Breakdown
	Cancellation *fees.Settlement
	ExtendedDays int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	Create(ctx context.Context, booking *Booking) error
	Save(ctx context.Context, booking *Booking) error
}

type CreateParams struct {
	ID           BookingID
	RenterID     string
	CarID        string
	PickupPlace  string
	DropoffPlace string
	Window       daterange.DateRange
	Total        money.Money
	DailyRate    money.Money
	CreatedAt    time.Time
}

// NewBooking accepts a reservation handed over by the upstream flow in status Created.
func NewBooking(params CreateParams) (*Booking, error) {
	if strings.TrimSpace(params.RenterID) == "" {
		return nil, ErrRenterRequired
	}
	if strings.TrimSpace(params.CarID) == "" {
		return nil, ErrCarRequired
	}
	if err := params.Window.Validate(); err != nil {
		return nil, err
	}
	if !params.Total.IsPositive() {
		return nil, ErrInvalidTotal
	}
	if !params.DailyRate.IsPositive() {
		return nil, ErrInvalidDailyRate
	}
	if params.Total.Currency != params.DailyRate.Currency {
		return nil, money.ErrCurrencyMismatch
	}
	now := params.CreatedAt.UTC()
	b := &Booking{
		ID:           params.ID,
		RenterID:     strings.TrimSpace(params.RenterID),
		CarID:        strings.TrimSpace(params.CarID),
		PickupPlace:  params.PickupPlace,
		DropoffPlace: params.DropoffPlace,
		Window:       params.Window,
		Total:        params.Total,
		DailyRate:    params.DailyRate,
		Status:       StatusCreated,
		AssessedFees: fees.NewBreakdown(params.Total.Currency),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	b.Record(BookingOpened{BookingID: b.ID, RenterID: b.RenterID, CarID: b.CarID, Window: b.Window, Total: b.Total, At: now})
	return b, nil
}

// Clone returns a deep copy without pending events.
func (b *Booking) Clone() *Booking {
	c := *b
	c.EventRecorder = events.EventRecorder{}
	c.AssessedFees = b.AssessedFees.Clone()
	if b.Cancellation != nil {
		s := *b.Cancellation
		c.Cancellation = &s
	}
	return &c
}

func (b *Booking) advance(event Event, now time.Time) error {
	to, err := b.Status.Next(event)
	if err != nil {
		return err
	}
	b.Status = to
	b.UpdatedAt = now.UTC()
	return nil
}

func (b *Booking) RequestRentalPayment(now time.Time) error {
	if err := b.advance(EventRequestRentalPayment, now); err != nil {
		return err
	}
	b.Record(RentalPaymentRequested{BookingID: b.ID, Amount: b.Total, At: b.UpdatedAt})
	return nil
}

func (b *Booking) MarkRentalPaid(orderCode string, now time.Time) error {
	if err := b.advance(EventPaymentSucceeded, now); err != nil {
		return err
	}
	b.Record(RentalPaid{BookingID: b.ID, OrderCode: orderCode, At: b.UpdatedAt})
	return nil
}

func (b *Booking) ConfirmPickup(staffID string, now time.Time) error {
	if err := b.advance(EventConfirmPickup, now); err != nil {
		return err
	}
	b.Record(PickupConfirmed{BookingID: b.ID, StaffID: staffID, At: b.UpdatedAt})
	return nil
}

func (b *Booking) ConfirmReturn(staffID string, surcharges fees.Breakdown, now time.Time) error {
	if err := b.advance(EventConfirmReturn, now); err != nil {
		return err
	}
	b.AssessedFees = surcharges.Clone()
	b.Record(ReturnConfirmed{BookingID: b.ID, StaffID: staffID, Fees: b.AssessedFees, At: b.UpdatedAt})
	return nil
}

// AssessFees replaces the surcharge set while the booking waits for settlement.
func (b *Booking) AssessFees(surcharges fees.Breakdown, now time.Time) error {
	if err := b.advance(EventAssessAdditionalFees, now); err != nil {
		return err
	}
	b.AssessedFees = surcharges.Clone()
	b.Record(AdditionalFeesAssessed{BookingID: b.ID, Fees: b.AssessedFees, At: b.UpdatedAt})
	return nil
}

func (b *Booking) Complete(now time.Time) error {
	if err := b.advance(EventSettleAdditionalFees, now); err != nil {
		return err
	}
	b.Record(BookingCompleted{BookingID: b.ID, At: b.UpdatedAt})
	return nil
}

func (b *Booking) Cancel(settlement fees.Settlement, reason string, now time.Time) error {
	if err := b.advance(EventCancel, now); err != nil {
		return err
	}
	b.Cancellation = &settlement
	b.Record(BookingCancelled{BookingID: b.ID, Settlement: settlement, Reason: reason, At: b.UpdatedAt})
	return nil
}

// Extend pushes the planned dropoff once an extension has been paid. It is the only
// way the window changes after confirmation.
func (b *Booking) Extend(days int, now time.Time) error {
	if b.Status != StatusInProgress {
		return &TransitionError{From: b.Status, Event: "Extend", Reason: "rental not in progress"}
	}
	window, err := b.Window.ExtendDays(days)
	if err != nil {
		return err
	}
	b.Window = window
	b.ExtendedDays += days
	b.UpdatedAt = now.UTC()
	b.Record(BookingExtended{BookingID: b.ID, Days: days, Dropoff: window.Dropoff, At: b.UpdatedAt})
	return nil
}
