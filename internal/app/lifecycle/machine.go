// Package lifecycle owns the authoritative booking status. Every staff, renter or processor
// action that moves a booking forward goes through Machine.Transition.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rentcar/internal/app/checkrecords"
	"rentcar/internal/app/locks"
	"rentcar/internal/app/outbox"
	"rentcar/internal/app/payments"
	"rentcar/internal/app/uow"
	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/checkrecord"
	"rentcar/internal/domain/fees"
	"rentcar/internal/domain/payment"
	"rentcar/internal/domain/shared/daterange"
	"rentcar/internal/domain/shared/money"
)

var ErrPaymentMismatch = errors.New("lifecycle: payment does not settle this booking's rental fee")

type Machine struct {
	UoW      uow.UoWFactory
	Locks    *locks.Keyed
	Fees     *fees.Engine
	Evidence *checkrecords.Service
	Payments *payments.Coordinator
	Events   outbox.Recorder
	Logger   *slog.Logger
	Clock    func() time.Time
	NewID    func() string
}

// Payload carries the event-specific inputs. Fields irrelevant to an event are ignored.
type Payload struct {
	// RequestRentalPayment: charge the rental fee right away.
	Charge bool
	// PaymentSucceeded: the processor order that settled the rental fee.
	OrderCode string
	// ConfirmPickup, ConfirmReturn.
	Images      []string
	Description string
	StaffID     string
	// ConfirmReturn, AssessAdditionalFees. ReturnedAt defaults to now for ConfirmReturn
	// and to the stored return record for AssessAdditionalFees.
	ReturnedAt time.Time
	Flags      []fees.Kind
	// Cancel.
	CancelKind fees.CancelKind
	Reason     string
}

// Outcome is the state after a transition. Booking is set even when the transition is
// rejected, so callers always see the authoritative status.
type Outcome struct {
	Booking     *booking.Booking
	Payment     *payment.Payment
	CheckRecord *checkrecord.CheckRecord
}

type OpenParams struct {
	ID           booking.BookingID
	RenterID     string
	CarID        string
	PickupPlace  string
	DropoffPlace string
	Pickup       time.Time
	Dropoff      time.Time
	Total        money.Money
	DailyRate    money.Money
	// CreatedAt is when the renter booked upstream. The free-cancellation window counts
	// from it; zero means now.
	CreatedAt time.Time
}

// Open registers a booking handed over by the reservation flow. Amounts must be in the
// fee policy's currency.
func (m *Machine) Open(ctx context.Context, params OpenParams) (*booking.Booking, error) {
	window, err := daterange.New(params.Pickup, params.Dropoff)
	if err != nil {
		return nil, err
	}
	if params.Total.Currency != m.Fees.Currency() {
		return nil, fmt.Errorf("%w: booking in %s, fees in %s", money.ErrCurrencyMismatch, params.Total.Currency, m.Fees.Currency())
	}
	now := m.now()
	createdAt := params.CreatedAt.UTC()
	if params.CreatedAt.IsZero() || createdAt.After(now) {
		createdAt = now
	}
	if params.ID == "" {
		params.ID = booking.BookingID(m.newID())
	}
	b, err := booking.NewBooking(booking.CreateParams{
		ID:           params.ID,
		RenterID:     params.RenterID,
		CarID:        params.CarID,
		PickupPlace:  params.PickupPlace,
		DropoffPlace: params.DropoffPlace,
		Window:       window,
		Total:        params.Total,
		DailyRate:    params.DailyRate,
		CreatedAt:    createdAt,
	})
	if err != nil {
		return nil, err
	}
	ctx, unlock, err := m.Locks.Lock(ctx, string(b.ID))
	if err != nil {
		return nil, err
	}
	defer unlock()
	err = uow.Run(ctx, m.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		if err := unit.Bookings().Create(ctx, b); err != nil {
			return err
		}
		return m.Events.Record(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	m.logger().Info("booking opened", "booking_id", b.ID, "renter_id", b.RenterID, "car_id", b.CarID)
	return b, nil
}

// Transition applies event to the booking atomically. Rejected events leave no trace.
// A ProcessorError from an immediate rental charge is returned alongside a committed
// outcome: the booking stays AwaitingRentalPayment and the charge may be retried.
func (m *Machine) Transition(ctx context.Context, bookingID booking.BookingID, event booking.Event, payload Payload) (Outcome, error) {
	if _, err := booking.ParseEvent(string(event)); err != nil {
		m.logger().Error("transition with unknown event", "booking_id", bookingID, "event", event)
		return Outcome{}, err
	}
	ctx, unlock, err := m.Locks.Lock(ctx, string(bookingID))
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	var (
		out     Outcome
		softErr error
	)
	err = uow.Run(ctx, m.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByID(ctx, bookingID)
		if err != nil {
			return err
		}
		out.Booking = b.Clone()
		switch event {
		case booking.EventRequestRentalPayment:
			err = m.requestRentalPayment(ctx, unit, b, payload, &out)
			if errors.Is(err, payments.ErrProcessor) {
				softErr, err = err, nil
			}
		case booking.EventPaymentSucceeded:
			err = m.paymentSucceeded(ctx, unit, b, payload, &out)
		case booking.EventConfirmPickup:
			err = m.confirmPickup(ctx, unit, b, payload, &out)
		case booking.EventConfirmReturn:
			err = m.confirmReturn(ctx, unit, b, payload, &out)
		case booking.EventAssessAdditionalFees:
			err = m.assessFees(ctx, unit, b, payload)
		case booking.EventSettleAdditionalFees:
			err = m.settleAdditionalFees(ctx, unit, b)
		case booking.EventCancel:
			err = m.cancel(ctx, unit, b, payload)
		}
		if err != nil {
			return err
		}
		current, err := unit.Bookings().ByID(ctx, bookingID)
		if err != nil {
			return err
		}
		out.Booking = current
		return nil
	})
	if err != nil {
		var terr *booking.TransitionError
		if errors.As(err, &terr) {
			m.logger().Debug("transition rejected", "booking_id", bookingID, "event", event, "status", terr.From, "reason", terr.Reason)
		}
		if out.Booking != nil {
			return Outcome{Booking: out.Booking}, err
		}
		return Outcome{}, err
	}
	m.logger().Info("booking transitioned", "booking_id", bookingID, "event", event, "status", out.Booking.Status)
	return out, softErr
}

// ApplyRentalPayment moves the booking to PickupPending once its rental fee is paid.
// Registered as the coordinator's settlement hook for rental-fee payments.
func (m *Machine) ApplyRentalPayment(ctx context.Context, unit uow.UnitOfWork, p *payment.Payment) error {
	b, err := unit.Bookings().ByID(ctx, p.BookingID)
	if err != nil {
		return err
	}
	if err := b.MarkRentalPaid(p.OrderCode, m.now()); err != nil {
		return err
	}
	return m.save(ctx, unit, b)
}

func (m *Machine) requestRentalPayment(ctx context.Context, unit uow.UnitOfWork, b *booking.Booking, payload Payload, out *Outcome) error {
	if err := b.RequestRentalPayment(m.now()); err != nil {
		return err
	}
	if err := m.save(ctx, unit, b); err != nil {
		return err
	}
	if !payload.Charge {
		return nil
	}
	p, err := m.Payments.RequestPayment(ctx, b.ID, payment.PurposeRentalFee, money.Money{})
	out.Payment = p
	return err
}

func (m *Machine) paymentSucceeded(ctx context.Context, unit uow.UnitOfWork, b *booking.Booking, payload Payload, out *Outcome) error {
	if _, err := b.Status.Next(booking.EventPaymentSucceeded); err != nil {
		return err
	}
	p, err := unit.Payments().ByOrderCode(ctx, payload.OrderCode)
	if err != nil {
		return err
	}
	if p.BookingID != b.ID || p.Purpose != payment.PurposeRentalFee {
		return ErrPaymentMismatch
	}
	settled, err := m.Payments.MarkSucceeded(ctx, payload.OrderCode)
	if err != nil {
		return err
	}
	out.Payment = settled
	if settled.Status != payment.StatusSuccess {
		return &booking.TransitionError{From: b.Status, Event: booking.EventPaymentSucceeded, Reason: "payment " + string(settled.Status)}
	}
	return nil
}

func (m *Machine) confirmPickup(ctx context.Context, unit uow.UnitOfWork, b *booking.Booking, payload Payload, out *Outcome) error {
	if err := m.ensureNoRecord(ctx, unit, b.ID, checkrecord.DirectionPickup); err != nil {
		return err
	}
	if _, err := b.Status.Next(booking.EventConfirmPickup); err != nil {
		return err
	}
	rec, err := m.Evidence.Record(ctx, checkrecords.RecordInput{
		BookingID:   b.ID,
		Direction:   checkrecord.DirectionPickup,
		Images:      payload.Images,
		Description: payload.Description,
		StaffID:     payload.StaffID,
	})
	if err != nil {
		return err
	}
	out.CheckRecord = rec
	if err := b.ConfirmPickup(payload.StaffID, m.now()); err != nil {
		return err
	}
	return m.save(ctx, unit, b)
}

func (m *Machine) confirmReturn(ctx context.Context, unit uow.UnitOfWork, b *booking.Booking, payload Payload, out *Outcome) error {
	if err := m.ensureNoRecord(ctx, unit, b.ID, checkrecord.DirectionReturn); err != nil {
		return err
	}
	if _, err := b.Status.Next(booking.EventConfirmReturn); err != nil {
		return err
	}
	_, err := unit.Payments().PendingFor(ctx, b.ID, payment.PurposeExtension)
	switch {
	case err == nil:
		return &booking.TransitionError{From: b.Status, Event: booking.EventConfirmReturn, Reason: "extension payment pending"}
	case !errors.Is(err, payment.ErrPaymentNotFound):
		return err
	}
	returnedAt := payload.ReturnedAt
	if returnedAt.IsZero() {
		returnedAt = m.now()
	}
	surcharges, err := m.Fees.ReturnSurcharges(fees.ReturnConditions{
		HoursLate: b.Window.HoursLate(returnedAt),
		DayRate:   b.DailyRate,
		Flags:     payload.Flags,
	})
	if err != nil {
		return err
	}
	rec, err := m.Evidence.Record(ctx, checkrecords.RecordInput{
		BookingID:   b.ID,
		Direction:   checkrecord.DirectionReturn,
		Images:      payload.Images,
		Description: payload.Description,
		StaffID:     payload.StaffID,
	})
	if err != nil {
		return err
	}
	out.CheckRecord = rec
	if err := b.ConfirmReturn(payload.StaffID, surcharges, m.now()); err != nil {
		return err
	}
	return m.save(ctx, unit, b)
}

func (m *Machine) assessFees(ctx context.Context, unit uow.UnitOfWork, b *booking.Booking, payload Payload) error {
	if _, err := b.Status.Next(booking.EventAssessAdditionalFees); err != nil {
		return err
	}
	list, err := unit.Payments().ListByBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	for _, p := range list {
		if p.Purpose == payment.PurposeAdditionalFee && p.Status != payment.StatusFailed {
			return &booking.TransitionError{From: b.Status, Event: booking.EventAssessAdditionalFees, Reason: "additional fee payment " + string(p.Status)}
		}
	}
	returnedAt := payload.ReturnedAt
	if returnedAt.IsZero() {
		rec, err := unit.CheckRecords().Get(ctx, b.ID, checkrecord.DirectionReturn)
		if err != nil {
			return err
		}
		returnedAt = rec.RecordedAt
	}
	surcharges, err := m.Fees.ReturnSurcharges(fees.ReturnConditions{
		HoursLate: b.Window.HoursLate(returnedAt),
		DayRate:   b.DailyRate,
		Flags:     payload.Flags,
	})
	if err != nil {
		return err
	}
	if err := b.AssessFees(surcharges, m.now()); err != nil {
		return err
	}
	return m.save(ctx, unit, b)
}

func (m *Machine) settleAdditionalFees(ctx context.Context, unit uow.UnitOfWork, b *booking.Booking) error {
	if _, err := b.Status.Next(booking.EventSettleAdditionalFees); err != nil {
		return err
	}
	list, err := unit.Payments().ListByBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	paid := false
	for _, p := range list {
		if p.Purpose != payment.PurposeAdditionalFee {
			continue
		}
		switch p.Status {
		case payment.StatusPending:
			return &booking.TransitionError{From: b.Status, Event: booking.EventSettleAdditionalFees, Reason: "additional fee payment pending"}
		case payment.StatusSuccess:
			paid = true
		}
	}
	if b.AssessedFees.Total.IsPositive() && !paid {
		return &booking.TransitionError{From: b.Status, Event: booking.EventSettleAdditionalFees, Reason: "additional fees unpaid"}
	}
	if err := b.Complete(m.now()); err != nil {
		return err
	}
	return m.save(ctx, unit, b)
}

func (m *Machine) cancel(ctx context.Context, unit uow.UnitOfWork, b *booking.Booking, payload Payload) error {
	if _, err := b.Status.Next(booking.EventCancel); err != nil {
		return err
	}
	pickedUp, err := checkrecords.Exists(ctx, unit, b.ID, checkrecord.DirectionPickup)
	if err != nil {
		return err
	}
	if pickedUp {
		return &booking.TransitionError{From: b.Status, Event: booking.EventCancel, Reason: "vehicle already picked up"}
	}
	now := m.now()
	settlement, err := m.Fees.Cancellation(payload.CancelKind, b.Total, now.Sub(b.CreatedAt), b.Window.Pickup.Sub(now))
	if err != nil {
		return err
	}
	if err := b.Cancel(settlement, payload.Reason, now); err != nil {
		return err
	}
	return m.save(ctx, unit, b)
}

func (m *Machine) ensureNoRecord(ctx context.Context, unit uow.UnitOfWork, bookingID booking.BookingID, direction checkrecord.Direction) error {
	existing, err := unit.CheckRecords().Get(ctx, bookingID, direction)
	if errors.Is(err, checkrecord.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return &checkrecords.DuplicateError{Existing: existing}
}

func (m *Machine) save(ctx context.Context, unit uow.UnitOfWork, b *booking.Booking) error {
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return err
	}
	return m.Events.Record(ctx, b)
}

func (m *Machine) now() time.Time {
	if m.Clock != nil {
		return m.Clock().UTC()
	}
	return time.Now().UTC()
}

func (m *Machine) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}

func (m *Machine) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
