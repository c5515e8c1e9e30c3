package bookings

import (
	"context"
	"strings"
	"time"

	"rentcar/internal/app/bookingview"
	"rentcar/internal/app/checkrecords"
	"rentcar/internal/app/dto"
	"rentcar/internal/app/queries"
	"rentcar/internal/app/services/auth"
	"rentcar/internal/app/uow"
	domainbooking "rentcar/internal/domain/booking"
	domaincheckrecord "rentcar/internal/domain/checkrecord"
	"rentcar/internal/domain/fees"
)

const (
	getBookingKey        = "booking.get"
	getCheckRecordKey    = "booking.check_record.get"
	quoteCancellationKey = "fees.quote.cancellation"
)

type GetBookingQuery struct {
	BookingID string
}

func (q GetBookingQuery) Key() string                { return getBookingKey }
func (q GetBookingQuery) RequiredRoles() []auth.Role { return renterRoles }

func (q GetBookingQuery) Validate() error { return requireBookingID(q.BookingID) }

type GetBookingHandler struct {
	View *bookingview.Service
	UoW  uow.UoWFactory
}

func (h *GetBookingHandler) Handle(ctx context.Context, q GetBookingQuery) (dto.BookingView, error) {
	id := domainbooking.BookingID(strings.TrimSpace(q.BookingID))
	if err := ensureParticipant(ctx, h.UoW, id); err != nil {
		return dto.BookingView{}, err
	}
	return h.View.View(ctx, id)
}

type GetCheckRecordQuery struct {
	BookingID string
	Direction string
}

func (q GetCheckRecordQuery) Key() string                { return getCheckRecordKey }
func (q GetCheckRecordQuery) RequiredRoles() []auth.Role { return renterRoles }

func (q GetCheckRecordQuery) Validate() error {
	if err := requireBookingID(q.BookingID); err != nil {
		return err
	}
	_, err := domaincheckrecord.ParseDirection(q.Direction)
	return err
}

type GetCheckRecordHandler struct {
	Records *checkrecords.Service
	UoW     uow.UoWFactory
}

func (h *GetCheckRecordHandler) Handle(ctx context.Context, q GetCheckRecordQuery) (dto.CheckRecordDTO, error) {
	direction, _ := domaincheckrecord.ParseDirection(q.Direction)
	id := domainbooking.BookingID(strings.TrimSpace(q.BookingID))
	if err := ensureParticipant(ctx, h.UoW, id); err != nil {
		return dto.CheckRecordDTO{}, err
	}
	rec, err := h.Records.Get(ctx, id, direction)
	if err != nil {
		return dto.CheckRecordDTO{}, err
	}
	return dto.MapCheckRecord(rec), nil
}

// QuoteCancellationQuery previews what cancelling at At would cost the renter.
type QuoteCancellationQuery struct {
	BookingID string
	Kind      fees.CancelKind
	At        time.Time
}

func (q QuoteCancellationQuery) Key() string                { return quoteCancellationKey }
func (q QuoteCancellationQuery) RequiredRoles() []auth.Role { return renterRoles }

func (q QuoteCancellationQuery) Validate() error {
	if err := requireBookingID(q.BookingID); err != nil {
		return err
	}
	_, err := fees.ParseCancelKind(string(q.Kind))
	return err
}

type QuoteCancellationHandler struct {
	Fees *fees.Engine
	UoW  uow.UoWFactory
}

func (h *QuoteCancellationHandler) Handle(ctx context.Context, q QuoteCancellationQuery) (dto.CancellationQuote, error) {
	id := domainbooking.BookingID(strings.TrimSpace(q.BookingID))
	if err := ensureParticipant(ctx, h.UoW, id); err != nil {
		return dto.CancellationQuote{}, err
	}
	at := q.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var quote dto.CancellationQuote
	err := uow.Run(ctx, h.UoW, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByID(ctx, id)
		if err != nil {
			return err
		}
		s, err := h.Fees.Cancellation(q.Kind, b.Total, at.Sub(b.CreatedAt), b.Window.Pickup.Sub(at))
		if err != nil {
			return err
		}
		quote = dto.CancellationQuote{Tier: string(s.Tier), Fee: dto.MapMoney(s.Fee), Refund: dto.MapMoney(s.Refund)}
		return nil
	})
	return quote, err
}

var (
	_ queries.Handler[GetBookingQuery, dto.BookingView]              = (*GetBookingHandler)(nil)
	_ queries.Handler[GetCheckRecordQuery, dto.CheckRecordDTO]       = (*GetCheckRecordHandler)(nil)
	_ queries.Handler[QuoteCancellationQuery, dto.CancellationQuote] = (*QuoteCancellationHandler)(nil)
)
