package booking_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/fees"
	"rentcar/internal/domain/shared/daterange"
	"rentcar/internal/domain/shared/money"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newBooking(t *testing.T) *booking.Booking {
	t.Helper()
	window, err := daterange.New(t0.Add(72*time.Hour), t0.Add(120*time.Hour))
	require.NoError(t, err)
	b, err := booking.NewBooking(booking.CreateParams{
		ID:        "bk-1",
		RenterID:  "renter-1",
		CarID:     "car-1",
		Window:    window,
		Total:     money.Must(1_000_000, "VND"),
		DailyRate: money.Must(500_000, "VND"),
		CreatedAt: t0,
	})
	require.NoError(t, err)
	return b
}

func TestNewBooking_StartsCreated(t *testing.T) {
	b := newBooking(t)

	assert.Equal(t, booking.StatusCreated, b.Status)
	require.Len(t, b.PendingEvents(), 1)
	assert.Equal(t, "booking.opened", b.PendingEvents()[0].EventName())
}

func TestNewBooking_Validation(t *testing.T) {
	window, _ := daterange.New(t0, t0.Add(24*time.Hour))
	base := booking.CreateParams{ID: "x", RenterID: "r", CarID: "c", Window: window, Total: money.Must(1, "VND"), DailyRate: money.Must(1, "VND")}

	p := base
	p.RenterID = " "
	_, err := booking.NewBooking(p)
	assert.ErrorIs(t, err, booking.ErrRenterRequired)

	p = base
	p.Total = money.Must(0, "VND")
	_, err = booking.NewBooking(p)
	assert.ErrorIs(t, err, booking.ErrInvalidTotal)

	p = base
	p.DailyRate = money.Must(1, "USD")
	_, err = booking.NewBooking(p)
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)
}

func TestBooking_HappyPath(t *testing.T) {
	b := newBooking(t)

	require.NoError(t, b.RequestRentalPayment(t0))
	require.NoError(t, b.MarkRentalPaid("ord-1", t0))
	require.NoError(t, b.ConfirmPickup("staff-1", t0))
	require.NoError(t, b.ConfirmReturn("staff-1", fees.NewBreakdown("VND"), t0))
	require.NoError(t, b.Complete(t0))

	assert.Equal(t, booking.StatusCompleted, b.Status)
	assert.True(t, b.Status.IsTerminal())
}

func TestBooking_RejectsSkippedPredecessor(t *testing.T) {
	b := newBooking(t)

	err := b.ConfirmPickup("staff-1", t0)

	var terr *booking.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, booking.StatusCreated, terr.From)
	assert.Equal(t, booking.EventConfirmPickup, terr.Event)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
	assert.Equal(t, booking.StatusCreated, b.Status)
}

func TestBooking_CancelOnlyBeforePickup(t *testing.T) {
	settlement := fees.Settlement{Kind: fees.CancelByRenter}

	b := newBooking(t)
	require.NoError(t, b.RequestRentalPayment(t0))
	require.NoError(t, b.Cancel(settlement, "changed plans", t0))
	assert.Equal(t, booking.StatusCancelled, b.Status)
	require.NotNil(t, b.Cancellation)

	b = newBooking(t)
	require.NoError(t, b.RequestRentalPayment(t0))
	require.NoError(t, b.MarkRentalPaid("ord", t0))
	require.NoError(t, b.ConfirmPickup("s", t0))
	assert.ErrorIs(t, b.Cancel(settlement, "", t0), booking.ErrInvalidTransition)
}

func TestStatus_TerminalStatesAcceptNothing(t *testing.T) {
	all := []booking.Event{
		booking.EventRequestRentalPayment, booking.EventPaymentSucceeded, booking.EventConfirmPickup,
		booking.EventConfirmReturn, booking.EventAssessAdditionalFees, booking.EventSettleAdditionalFees, booking.EventCancel,
	}
	for _, s := range []booking.Status{booking.StatusCompleted, booking.StatusCancelled} {
		for _, ev := range all {
			_, err := s.Next(ev)
			assert.ErrorIs(t, err, booking.ErrInvalidTransition, "%s/%s", s, ev)
		}
	}
}

func TestParseEvent(t *testing.T) {
	ev, err := booking.ParseEvent("confirm-pickup")
	require.NoError(t, err)
	assert.Equal(t, booking.EventConfirmPickup, ev)

	ev, err = booking.ParseEvent("Cancel")
	require.NoError(t, err)
	assert.Equal(t, booking.EventCancel, ev)

	_, err = booking.ParseEvent("teleport")
	assert.ErrorIs(t, err, booking.ErrUnknownEvent)

	_, err = booking.StatusCreated.Next("teleport")
	assert.ErrorIs(t, err, booking.ErrUnknownEvent)
}

func TestBooking_Extend(t *testing.T) {
	b := newBooking(t)
	dropoff := b.Window.Dropoff
	assert.ErrorIs(t, b.Extend(1, t0), booking.ErrInvalidTransition)

	require.NoError(t, b.RequestRentalPayment(t0))
	require.NoError(t, b.MarkRentalPaid("ord-1", t0))
	require.NoError(t, b.ConfirmPickup("staff-1", t0))
	require.NoError(t, b.Extend(2, t0))

	assert.Equal(t, dropoff.AddDate(0, 0, 2), b.Window.Dropoff)
	assert.Equal(t, 2, b.ExtendedDays)
	assert.ErrorIs(t, b.Extend(0, t0), daterange.ErrInvalidDays)

	require.NoError(t, b.ConfirmReturn("staff-1", fees.NewBreakdown("VND"), t0))
	assert.ErrorIs(t, b.Extend(1, t0), booking.ErrInvalidTransition)
	assert.Equal(t, 2, b.ExtendedDays)
}

func TestBooking_CloneIsIndependent(t *testing.T) {
	b := newBooking(t)
	require.NoError(t, b.AssessedFees.Set(fees.KindCleaning, money.Must(1, "VND")))

	c := b.Clone()
	require.NoError(t, c.AssessedFees.Set(fees.KindDeodorization, money.Must(2, "VND")))

	assert.False(t, b.AssessedFees.Has(fees.KindDeodorization))
	assert.Empty(t, c.PendingEvents())
}
