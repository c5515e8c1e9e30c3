package bookings_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcar/internal/app/apptest"
	"rentcar/internal/app/commands"
	"rentcar/internal/app/dto"
	"rentcar/internal/app/handlers/bookings"
	"rentcar/internal/app/lifecycle"
	"rentcar/internal/app/middleware"
	"rentcar/internal/app/payments"
	"rentcar/internal/app/queries"
	"rentcar/internal/app/services/auth"
	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/payment"
	"rentcar/internal/domain/shared/money"
	"rentcar/internal/infra/storage/memory"
)

type fixture struct {
	h        *apptest.Harness
	cmds     commands.Bus
	queries  queries.Bus
	staff    context.Context
	renter   context.Context
	stranger context.Context
}

func newFixture() fixture {
	h := apptest.New()
	cmdBus, queryBus := bookings.NewBuses(bookings.Services{
		UoW:        h.UoW,
		Fees:       h.Fees,
		Machine:    h.Machine,
		Payments:   h.Payments,
		Extensions: h.Extensions,
		Records:    h.Records,
		View:       h.View,
	}, memory.NewIdempotencyStore(), nil)
	bg := context.Background()
	return fixture{
		h:        h,
		cmds:     cmdBus,
		queries:  queryBus,
		staff:    auth.ContextWithPrincipal(bg, auth.Principal{Subject: "staff-1", Roles: []auth.Role{auth.RoleStaff}}),
		renter:   auth.ContextWithPrincipal(bg, auth.Principal{Subject: "renter-1", Roles: []auth.Role{auth.RoleRenter}}),
		stranger: auth.ContextWithPrincipal(bg, auth.Principal{Subject: "renter-2", Roles: []auth.Role{auth.RoleRenter}}),
	}
}

func (f fixture) open(t *testing.T) *dto.BookingDTO {
	t.Helper()
	now := f.h.Clock.Now()
	out, err := commands.Dispatch[bookings.OpenBookingCommand, *dto.BookingDTO](f.staff, f.cmds, bookings.OpenBookingCommand{
		RenterID:  "renter-1",
		CarID:     "car-1",
		Pickup:    now.Add(72 * time.Hour),
		Dropoff:   now.Add(120 * time.Hour),
		Total:     apptest.VND(1_000_000),
		DailyRate: apptest.VND(500_000),
	})
	require.NoError(t, err)
	return out
}

func TestOpenBookingRequiresStaff(t *testing.T) {
	f := newFixture()
	cmd := bookings.OpenBookingCommand{RenterID: "renter-1", CarID: "car-1"}

	_, err := commands.Dispatch[bookings.OpenBookingCommand, *dto.BookingDTO](context.Background(), f.cmds, cmd)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = commands.Dispatch[bookings.OpenBookingCommand, *dto.BookingDTO](f.renter, f.cmds, cmd)
	require.ErrorIs(t, err, auth.ErrForbidden)

	_, err = commands.Dispatch[bookings.OpenBookingCommand, *dto.BookingDTO](f.staff, f.cmds, bookings.OpenBookingCommand{CarID: "car-1"})
	require.ErrorIs(t, err, booking.ErrRenterRequired)
}

func TestRenterActsOnlyOnOwnBooking(t *testing.T) {
	f := newFixture()
	b := f.open(t)

	_, err := queries.Ask[bookings.GetBookingQuery, dto.BookingView](f.stranger, f.queries, bookings.GetBookingQuery{BookingID: b.ID})
	require.ErrorIs(t, err, auth.ErrForbidden)

	view, err := queries.Ask[bookings.GetBookingQuery, dto.BookingView](f.renter, f.queries, bookings.GetBookingQuery{BookingID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, b.ID, view.Booking.ID)

	_, err = commands.Dispatch[bookings.TransitionCommand, *bookings.TransitionResult](f.renter, f.cmds, bookings.TransitionCommand{
		BookingID: b.ID,
		Event:     booking.EventConfirmPickup,
	})
	require.ErrorIs(t, err, auth.ErrForbidden, "pickup is staff work")
}

func TestTransitionRejectionCarriesCurrentState(t *testing.T) {
	f := newFixture()
	b := f.open(t)

	_, err := commands.Dispatch[bookings.TransitionCommand, *bookings.TransitionResult](f.staff, f.cmds, bookings.TransitionCommand{
		BookingID: b.ID,
		Event:     booking.EventConfirmReturn,
		Payload:   lifecycle.Payload{Images: []string{"a.jpg"}, StaffID: "staff-1"},
	})
	require.ErrorIs(t, err, booking.ErrInvalidTransition)
	var oe *bookings.OutcomeError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, string(booking.StatusCreated), oe.Result.Booking.Status)
}

func TestRequestPaymentIdempotencyKeyReplaysResult(t *testing.T) {
	f := newFixture()
	b := f.open(t)
	_, err := commands.Dispatch[bookings.TransitionCommand, *bookings.TransitionResult](f.renter, f.cmds, bookings.TransitionCommand{
		BookingID: b.ID,
		Event:     booking.EventRequestRentalPayment,
	})
	require.NoError(t, err)

	cmd := bookings.RequestPaymentCommand{BookingID: b.ID, Purpose: payment.PurposeRentalFee, IdempotencyKeyV: "key-1"}
	first, err := commands.Dispatch[bookings.RequestPaymentCommand, *dto.PaymentDTO](f.renter, f.cmds, cmd)
	require.NoError(t, err)
	again, err := commands.Dispatch[bookings.RequestPaymentCommand, *dto.PaymentDTO](f.renter, f.cmds, cmd)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, f.h.Processor.Calls())

	cmd.IdempotencyKeyV = "key-2"
	_, err = commands.Dispatch[bookings.RequestPaymentCommand, *dto.PaymentDTO](f.renter, f.cmds, cmd)
	require.ErrorIs(t, err, payments.ErrAlreadyInFlight)
}

func TestIdempotencyKeyReusedForOtherRequest(t *testing.T) {
	f := newFixture()
	b := f.open(t)
	_, err := commands.Dispatch[bookings.TransitionCommand, *bookings.TransitionResult](f.renter, f.cmds, bookings.TransitionCommand{
		BookingID: b.ID,
		Event:     booking.EventRequestRentalPayment,
	})
	require.NoError(t, err)

	cmd := bookings.RequestPaymentCommand{BookingID: b.ID, Purpose: payment.PurposeRentalFee, IdempotencyKeyV: "key-1"}
	_, err = commands.Dispatch[bookings.RequestPaymentCommand, *dto.PaymentDTO](f.renter, f.cmds, cmd)
	require.NoError(t, err)

	cmd.Purpose = payment.PurposeExtension
	_, err = commands.Dispatch[bookings.RequestPaymentCommand, *dto.PaymentDTO](f.renter, f.cmds, cmd)
	require.ErrorIs(t, err, middleware.ErrIdempotencyKeyReused)
	assert.Equal(t, 1, f.h.Processor.Calls())
}

func TestQueriesValidateBeforeHandling(t *testing.T) {
	f := newFixture()
	_, err := queries.Ask[bookings.GetCheckRecordQuery, dto.CheckRecordDTO](f.staff, f.queries, bookings.GetCheckRecordQuery{BookingID: "b-1", Direction: "sideways"})
	require.Error(t, err)
	_, err = queries.Ask[bookings.GetBookingQuery, dto.BookingView](f.staff, f.queries, bookings.GetBookingQuery{BookingID: " "})
	require.ErrorIs(t, err, bookings.ErrBookingIDRequired)
}

func TestSettlePaymentNeedsNoPrincipal(t *testing.T) {
	f := newFixture()
	b := f.open(t)
	res, err := commands.Dispatch[bookings.TransitionCommand, *bookings.TransitionResult](f.renter, f.cmds, bookings.TransitionCommand{
		BookingID: b.ID,
		Event:     booking.EventRequestRentalPayment,
		Payload:   lifecycle.Payload{Charge: true},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Payment)

	settled, err := commands.Dispatch[bookings.SettlePaymentCommand, *dto.PaymentDTO](context.Background(), f.cmds, bookings.SettlePaymentCommand{
		OrderCode: res.Payment.OrderCode,
		Outcome:   payment.StatusSuccess,
		EventID:   "evt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, string(payment.StatusSuccess), settled.Status)

	_, err = commands.Dispatch[bookings.SettlePaymentCommand, *dto.PaymentDTO](context.Background(), f.cmds, bookings.SettlePaymentCommand{Outcome: payment.StatusSuccess})
	require.ErrorIs(t, err, bookings.ErrOrderCodeRequired)
}

func TestQuoteCancellation(t *testing.T) {
	f := newFixture()
	b := f.open(t)

	quote, err := queries.Ask[bookings.QuoteCancellationQuery, dto.CancellationQuote](f.renter, f.queries, bookings.QuoteCancellationQuery{
		BookingID: b.ID,
		At:        f.h.Clock.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "short_lead", quote.Tier)
	assert.Equal(t, int64(400_000), quote.Fee.Amount)
	assert.Equal(t, int64(600_000), quote.Refund.Amount)
}

func TestExtensionRateOverrideIsStaffOnly(t *testing.T) {
	f := newFixture()
	b := f.open(t)
	f.h.PickUp(t, booking.BookingID(b.ID))

	cmd := bookings.RequestExtensionCommand{BookingID: b.ID, RequestedDays: 2, DailyRate: apptest.VND(1)}
	_, err := commands.Dispatch[bookings.RequestExtensionCommand, *dto.ExtensionDTO](f.renter, f.cmds, cmd)
	require.ErrorIs(t, err, auth.ErrForbidden)

	cmd.DailyRate = money.Must(10, "USD")
	_, err = commands.Dispatch[bookings.RequestExtensionCommand, *dto.ExtensionDTO](f.staff, f.cmds, cmd)
	require.ErrorIs(t, err, money.ErrCurrencyMismatch)

	cmd.DailyRate = money.Money{}
	ext, err := commands.Dispatch[bookings.RequestExtensionCommand, *dto.ExtensionDTO](f.renter, f.cmds, cmd)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), ext.Amount.Amount, "renters pay the booking's daily rate")
}
