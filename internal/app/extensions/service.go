package extensions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rentcar/internal/app/locks"
	"rentcar/internal/app/outbox"
	"rentcar/internal/app/payments"
	"rentcar/internal/app/uow"
	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/extension"
	"rentcar/internal/domain/fees"
	"rentcar/internal/domain/payment"
	"rentcar/internal/domain/shared/money"
)

var ErrExtensionAlreadyActive = errors.New("extensions: an extension is already awaiting payment")

type Service struct {
	UoW      uow.UoWFactory
	Locks    *locks.Keyed
	Fees     *fees.Engine
	Payments *payments.Coordinator
	Events   outbox.Recorder
	Logger   *slog.Logger
	Clock    func() time.Time
	NewID    func() string
}

type RequestInput struct {
	BookingID     booking.BookingID
	RequestedDays int
	Description   string
	// DailyRate overrides the booking's daily rate when set. Callers decide who may set
	// it; the currency must match the booking's.
	DailyRate money.Money
}

// RequestExtension opens an extension for a rental in progress. The amount is fixed at
// request time.
func (s *Service) RequestExtension(ctx context.Context, in RequestInput) (*extension.Request, error) {
	if in.RequestedDays <= 0 {
		return nil, extension.ErrInvalidDays
	}
	ctx, unlock, err := s.Locks.Lock(ctx, string(in.BookingID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var req *extension.Request
	err = uow.Run(ctx, s.UoW, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByID(ctx, in.BookingID)
		if err != nil {
			return err
		}
		if b.Status != booking.StatusInProgress {
			return &booking.TransitionError{From: b.Status, Event: "RequestExtension", Reason: "rental not in progress"}
		}
		active, err := unit.Extensions().Active(ctx, b.ID)
		switch {
		case err == nil:
			s.logger().Debug("extension already active", "booking_id", b.ID, "extension_id", active.ID)
			return fmt.Errorf("%w: %s", ErrExtensionAlreadyActive, active.ID)
		case !errors.Is(err, extension.ErrExtensionNotFound):
			return err
		}
		rate := b.DailyRate
		if !in.DailyRate.IsZero() {
			if in.DailyRate.Currency != rate.Currency {
				return fmt.Errorf("%w: rate in %s, booking in %s", money.ErrCurrencyMismatch, in.DailyRate.Currency, rate.Currency)
			}
			rate = in.DailyRate
		}
		amount, err := s.Fees.ExtensionCost(rate, in.RequestedDays)
		if err != nil {
			return err
		}
		req, err = extension.New(s.newID(), b.ID, in.RequestedDays, in.Description, amount, s.now())
		if err != nil {
			return err
		}
		if err := unit.Extensions().Create(ctx, req); err != nil {
			return err
		}
		return s.Events.Record(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("extension requested", "booking_id", req.BookingID, "extension_id", req.ID, "days", req.RequestedDays, "amount", req.Amount.Amount)
	return req, nil
}

// PayExtension charges the active extension through the payment coordinator.
func (s *Service) PayExtension(ctx context.Context, bookingID booking.BookingID) (*payment.Payment, error) {
	return s.Payments.RequestPayment(ctx, bookingID, payment.PurposeExtension, money.Money{})
}

// Active returns the unresolved extension, or extension.ErrExtensionNotFound.
func (s *Service) Active(ctx context.Context, bookingID booking.BookingID) (*extension.Request, error) {
	var req *extension.Request
	err := uow.Run(ctx, s.UoW, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		req, err = unit.Extensions().Active(ctx, bookingID)
		return err
	})
	return req, err
}

// ApplyPayment resolves the active extension and moves the dropoff. Registered as the
// coordinator's settlement hook for extension payments.
func (s *Service) ApplyPayment(ctx context.Context, unit uow.UnitOfWork, p *payment.Payment) error {
	req, err := unit.Extensions().Active(ctx, p.BookingID)
	if err != nil {
		return err
	}
	b, err := unit.Bookings().ByID(ctx, p.BookingID)
	if err != nil {
		return err
	}
	now := s.now()
	if !req.Complete(p.OrderCode, now) {
		return nil
	}
	if err := b.Extend(req.RequestedDays, now); err != nil {
		return err
	}
	if err := unit.Extensions().Save(ctx, req); err != nil {
		return err
	}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return err
	}
	s.logger().Info("extension resolved", "booking_id", b.ID, "extension_id", req.ID, "dropoff", b.Window.Dropoff)
	return s.Events.Record(ctx, req, b)
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
