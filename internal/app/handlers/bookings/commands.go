package bookings

import (
	"context"
	"strings"
	"time"

	"rentcar/internal/app/commands"
	"rentcar/internal/app/dto"
	"rentcar/internal/app/extensions"
	"rentcar/internal/app/lifecycle"
	"rentcar/internal/app/middleware"
	"rentcar/internal/app/payments"
	"rentcar/internal/app/services/auth"
	"rentcar/internal/app/uow"
	domainbooking "rentcar/internal/domain/booking"
	domainpayment "rentcar/internal/domain/payment"
	"rentcar/internal/domain/shared/money"
)

const (
	openBookingKey      = "booking.open"
	transitionKey       = "booking.transition"
	requestPaymentKey   = "booking.payment.request"
	settlePaymentKey    = "payment.settle"
	requestExtensionKey = "booking.extension.request"
	payExtensionKey     = "booking.extension.pay"
)

var (
	staffRoles  = []auth.Role{auth.RoleStaff}
	renterRoles = []auth.Role{auth.RoleStaff, auth.RoleRenter}
)

type OpenBookingCommand struct {
	BookingID       string
	RenterID        string
	CarID           string
	PickupPlace     string
	DropoffPlace    string
	Pickup          time.Time
	Dropoff         time.Time
	Total           money.Money
	DailyRate       money.Money
	BookedAt        time.Time
	IdempotencyKeyV string
}

func (c OpenBookingCommand) Key() string                { return openBookingKey }
func (c OpenBookingCommand) IdempotencyKey() string     { return c.IdempotencyKeyV }
func (c OpenBookingCommand) ResultPrototype() any       { return &dto.BookingDTO{} }
func (c OpenBookingCommand) RequiredRoles() []auth.Role { return staffRoles }

func (c OpenBookingCommand) Validate() error {
	if strings.TrimSpace(c.RenterID) == "" {
		return domainbooking.ErrRenterRequired
	}
	if strings.TrimSpace(c.CarID) == "" {
		return domainbooking.ErrCarRequired
	}
	return nil
}

type OpenBookingHandler struct {
	Machine *lifecycle.Machine
}

func (h *OpenBookingHandler) Handle(ctx context.Context, cmd OpenBookingCommand) (*dto.BookingDTO, error) {
	b, err := h.Machine.Open(ctx, lifecycle.OpenParams{
		ID:           domainbooking.BookingID(cmd.BookingID),
		RenterID:     cmd.RenterID,
		CarID:        cmd.CarID,
		PickupPlace:  cmd.PickupPlace,
		DropoffPlace: cmd.DropoffPlace,
		Pickup:       cmd.Pickup,
		Dropoff:      cmd.Dropoff,
		Total:        cmd.Total,
		DailyRate:    cmd.DailyRate,
		CreatedAt:    cmd.BookedAt,
	})
	if err != nil {
		return nil, err
	}
	out := dto.MapBooking(b)
	return &out, nil
}

type TransitionCommand struct {
	BookingID       string
	Event           domainbooking.Event
	Payload         lifecycle.Payload
	IdempotencyKeyV string
}

func (c TransitionCommand) Key() string            { return transitionKey }
func (c TransitionCommand) IdempotencyKey() string { return c.IdempotencyKeyV }
func (c TransitionCommand) ResultPrototype() any   { return &TransitionResult{} }

// RequiredRoles lets renters start payment and cancel; everything else is staff work.
func (c TransitionCommand) RequiredRoles() []auth.Role {
	switch c.Event {
	case domainbooking.EventRequestRentalPayment, domainbooking.EventCancel:
		return renterRoles
	}
	return staffRoles
}

func (c TransitionCommand) Validate() error {
	if err := requireBookingID(c.BookingID); err != nil {
		return err
	}
	_, err := domainbooking.ParseEvent(string(c.Event))
	return err
}

type TransitionResult struct {
	Booking     dto.BookingDTO      `json:"booking"`
	Payment     *dto.PaymentDTO     `json:"payment,omitempty"`
	CheckRecord *dto.CheckRecordDTO `json:"check_record,omitempty"`
}

type TransitionHandler struct {
	Machine *lifecycle.Machine
	UoW     uow.UoWFactory
}

func (h *TransitionHandler) Handle(ctx context.Context, cmd TransitionCommand) (*TransitionResult, error) {
	bookingID := domainbooking.BookingID(cmd.BookingID)
	if err := ensureParticipant(ctx, h.UoW, bookingID); err != nil {
		return nil, err
	}
	out, err := h.Machine.Transition(ctx, bookingID, cmd.Event, cmd.Payload)
	if err != nil {
		if out.Booking != nil {
			return nil, &OutcomeError{Result: mapOutcome(out), Err: err}
		}
		return nil, err
	}
	return mapOutcome(out), nil
}

// OutcomeError carries the authoritative booking state next to a rejected transition,
// or next to a committed one whose immediate charge failed.
type OutcomeError struct {
	Result *TransitionResult
	Err    error
}

func (e *OutcomeError) Error() string { return e.Err.Error() }

func (e *OutcomeError) Unwrap() error { return e.Err }

func mapOutcome(out lifecycle.Outcome) *TransitionResult {
	res := &TransitionResult{Booking: dto.MapBooking(out.Booking)}
	if out.Payment != nil {
		p := dto.MapPayment(out.Payment)
		res.Payment = &p
	}
	if out.CheckRecord != nil {
		r := dto.MapCheckRecord(out.CheckRecord)
		res.CheckRecord = &r
	}
	return res
}

type RequestPaymentCommand struct {
	BookingID       string
	Purpose         domainpayment.Purpose
	Amount          money.Money
	IdempotencyKeyV string
}

func (c RequestPaymentCommand) Key() string                { return requestPaymentKey }
func (c RequestPaymentCommand) IdempotencyKey() string     { return c.IdempotencyKeyV }
func (c RequestPaymentCommand) ResultPrototype() any       { return &dto.PaymentDTO{} }
func (c RequestPaymentCommand) RequiredRoles() []auth.Role { return renterRoles }

func (c RequestPaymentCommand) Validate() error {
	if err := requireBookingID(c.BookingID); err != nil {
		return err
	}
	_, err := domainpayment.ParsePurpose(string(c.Purpose))
	return err
}

type RequestPaymentHandler struct {
	Payments *payments.Coordinator
	UoW      uow.UoWFactory
}

func (h *RequestPaymentHandler) Handle(ctx context.Context, cmd RequestPaymentCommand) (*dto.PaymentDTO, error) {
	bookingID := domainbooking.BookingID(cmd.BookingID)
	if err := ensureParticipant(ctx, h.UoW, bookingID); err != nil {
		return nil, err
	}
	p, err := h.Payments.RequestPayment(ctx, bookingID, cmd.Purpose, cmd.Amount)
	if err != nil {
		return nil, err
	}
	out := dto.MapPayment(p)
	return &out, nil
}

// SettlePaymentCommand carries a processor notification. The transport authenticates
// the processor; no principal is required.
type SettlePaymentCommand struct {
	OrderCode string
	Reference string
	Outcome   domainpayment.Status
	// EventID deduplicates redelivered notifications.
	EventID string
}

func (c SettlePaymentCommand) Key() string            { return settlePaymentKey }
func (c SettlePaymentCommand) IdempotencyKey() string { return c.EventID }
func (c SettlePaymentCommand) ResultPrototype() any   { return &dto.PaymentDTO{} }

func (c SettlePaymentCommand) Validate() error {
	if strings.TrimSpace(c.OrderCode) == "" && strings.TrimSpace(c.Reference) == "" {
		return ErrOrderCodeRequired
	}
	return nil
}

type SettlePaymentHandler struct {
	Payments *payments.Coordinator
}

func (h *SettlePaymentHandler) Handle(ctx context.Context, cmd SettlePaymentCommand) (*dto.PaymentDTO, error) {
	p, err := h.Payments.Settle(ctx, payments.Notification{
		OrderCode: strings.TrimSpace(cmd.OrderCode),
		Reference: strings.TrimSpace(cmd.Reference),
		Outcome:   cmd.Outcome,
	})
	if err != nil {
		return nil, err
	}
	out := dto.MapPayment(p)
	return &out, nil
}

type RequestExtensionCommand struct {
	BookingID     string
	RequestedDays int
	Description   string
	// DailyRate overrides the booking's rate. Staff only.
	DailyRate       money.Money
	IdempotencyKeyV string
}

func (c RequestExtensionCommand) Key() string                { return requestExtensionKey }
func (c RequestExtensionCommand) IdempotencyKey() string     { return c.IdempotencyKeyV }
func (c RequestExtensionCommand) ResultPrototype() any       { return &dto.ExtensionDTO{} }
func (c RequestExtensionCommand) RequiredRoles() []auth.Role { return renterRoles }

func (c RequestExtensionCommand) Validate() error {
	return requireBookingID(c.BookingID)
}

type RequestExtensionHandler struct {
	Extensions *extensions.Service
	UoW        uow.UoWFactory
}

func (h *RequestExtensionHandler) Handle(ctx context.Context, cmd RequestExtensionCommand) (*dto.ExtensionDTO, error) {
	bookingID := domainbooking.BookingID(cmd.BookingID)
	if err := ensureParticipant(ctx, h.UoW, bookingID); err != nil {
		return nil, err
	}
	if !cmd.DailyRate.IsZero() {
		if err := requireStaff(ctx); err != nil {
			return nil, err
		}
	}
	req, err := h.Extensions.RequestExtension(ctx, extensions.RequestInput{
		BookingID:     bookingID,
		RequestedDays: cmd.RequestedDays,
		Description:   cmd.Description,
		DailyRate:     cmd.DailyRate,
	})
	if err != nil {
		return nil, err
	}
	out := dto.MapExtension(req)
	return &out, nil
}

type PayExtensionCommand struct {
	BookingID       string
	IdempotencyKeyV string
}

func (c PayExtensionCommand) Key() string                { return payExtensionKey }
func (c PayExtensionCommand) IdempotencyKey() string     { return c.IdempotencyKeyV }
func (c PayExtensionCommand) ResultPrototype() any       { return &dto.PaymentDTO{} }
func (c PayExtensionCommand) RequiredRoles() []auth.Role { return renterRoles }

func (c PayExtensionCommand) Validate() error {
	return requireBookingID(c.BookingID)
}

type PayExtensionHandler struct {
	Extensions *extensions.Service
	UoW        uow.UoWFactory
}

func (h *PayExtensionHandler) Handle(ctx context.Context, cmd PayExtensionCommand) (*dto.PaymentDTO, error) {
	bookingID := domainbooking.BookingID(cmd.BookingID)
	if err := ensureParticipant(ctx, h.UoW, bookingID); err != nil {
		return nil, err
	}
	p, err := h.Extensions.PayExtension(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	out := dto.MapPayment(p)
	return &out, nil
}

var (
	_ commands.Handler[OpenBookingCommand, *dto.BookingDTO]        = (*OpenBookingHandler)(nil)
	_ commands.Handler[TransitionCommand, *TransitionResult]       = (*TransitionHandler)(nil)
	_ commands.Handler[RequestPaymentCommand, *dto.PaymentDTO]     = (*RequestPaymentHandler)(nil)
	_ commands.Handler[SettlePaymentCommand, *dto.PaymentDTO]      = (*SettlePaymentHandler)(nil)
	_ commands.Handler[RequestExtensionCommand, *dto.ExtensionDTO] = (*RequestExtensionHandler)(nil)
	_ commands.Handler[PayExtensionCommand, *dto.PaymentDTO]       = (*PayExtensionHandler)(nil)
	_ middleware.IdempotentCommand                                 = OpenBookingCommand{}
	_ middleware.IdempotentCommand                                 = TransitionCommand{}
	_ middleware.IdempotentCommand                                 = RequestPaymentCommand{}
	_ middleware.IdempotentCommand                                 = SettlePaymentCommand{}
)
