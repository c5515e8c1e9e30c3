package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcar/internal/app/apptest"
	"rentcar/internal/app/checkrecords"
	"rentcar/internal/app/extensions"
	"rentcar/internal/app/lifecycle"
	"rentcar/internal/app/payments"
	"rentcar/internal/app/policies"
	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/checkrecord"
	"rentcar/internal/domain/fees"
	"rentcar/internal/domain/payment"
	"rentcar/internal/domain/shared/money"
)

var evidence = []string{"evidence/front.jpg", "evidence/back.jpg"}

func TestTransitionHappyPathWithoutSurcharges(t *testing.T) {
	h := apptest.New()
	ctx := context.Background()
	b := h.Open(t)
	assert.Equal(t, booking.StatusCreated, b.Status)

	out := h.Transition(t, b.ID, booking.EventRequestRentalPayment, lifecycle.Payload{Charge: true})
	assert.Equal(t, booking.StatusAwaitingRentalPayment, out.Booking.Status)
	require.NotNil(t, out.Payment)
	assert.Equal(t, payment.StatusPending, out.Payment.Status)

	out = h.Transition(t, b.ID, booking.EventPaymentSucceeded, lifecycle.Payload{OrderCode: out.Payment.OrderCode})
	assert.Equal(t, booking.StatusPickupPending, out.Booking.Status)
	assert.Equal(t, payment.StatusSuccess, out.Payment.Status)

	out = h.Transition(t, b.ID, booking.EventConfirmPickup, lifecycle.Payload{Images: evidence, StaffID: "staff-1"})
	assert.Equal(t, booking.StatusInProgress, out.Booking.Status)
	require.NotNil(t, out.CheckRecord)
	assert.Equal(t, checkrecord.DirectionPickup, out.CheckRecord.Direction)

	out = h.Transition(t, b.ID, booking.EventConfirmReturn, lifecycle.Payload{
		Images:     evidence,
		StaffID:    "staff-1",
		ReturnedAt: b.Window.Dropoff.Add(-time.Hour),
	})
	assert.Equal(t, booking.StatusReturnPending, out.Booking.Status)
	assert.True(t, out.Booking.AssessedFees.Total.IsZero())

	out = h.Transition(t, b.ID, booking.EventSettleAdditionalFees, lifecycle.Payload{})
	assert.Equal(t, booking.StatusCompleted, out.Booking.Status)

	view, err := h.View.View(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, string(booking.StatusCompleted), view.Booking.Status)
	require.NotNil(t, view.Pickup)
	require.NotNil(t, view.Return)
	require.NotNil(t, view.RentalPayment)
	assert.Equal(t, string(payment.StatusSuccess), view.RentalPayment.Status)
}

func TestTransitionReturnWithSurchargesRequiresPayment(t *testing.T) {
	h := apptest.New()
	ctx := context.Background()
	b := h.Open(t)
	h.PickUp(t, b.ID)

	out := h.Transition(t, b.ID, booking.EventConfirmReturn, lifecycle.Payload{
		Images:     evidence,
		StaffID:    "staff-2",
		ReturnedAt: b.Window.Dropoff.Add(2*time.Hour + time.Minute),
		Flags:      []fees.Kind{fees.KindCleaning},
	})
	require.Equal(t, booking.StatusReturnPending, out.Booking.Status)
	// 3 started hours at 70,000 plus cleaning 150,000.
	assert.Equal(t, int64(360_000), out.Booking.AssessedFees.Total.Amount)

	_, err := h.Machine.Transition(ctx, b.ID, booking.EventSettleAdditionalFees, lifecycle.Payload{})
	require.ErrorIs(t, err, booking.ErrInvalidTransition)

	fee, err := h.Payments.RequestPayment(ctx, b.ID, payment.PurposeAdditionalFee, money.Money{})
	require.NoError(t, err)
	assert.Equal(t, int64(360_000), fee.Amount.Amount)

	_, err = h.Machine.Transition(ctx, b.ID, booking.EventSettleAdditionalFees, lifecycle.Payload{})
	require.ErrorIs(t, err, booking.ErrInvalidTransition, "pending fee payment blocks settlement")

	_, err = h.Machine.Transition(ctx, b.ID, booking.EventAssessAdditionalFees, lifecycle.Payload{})
	require.ErrorIs(t, err, booking.ErrInvalidTransition, "fees are frozen once a payment is in flight")

	_, err = h.Payments.MarkSucceeded(ctx, fee.OrderCode)
	require.NoError(t, err)

	out = h.Transition(t, b.ID, booking.EventSettleAdditionalFees, lifecycle.Payload{})
	assert.Equal(t, booking.StatusCompleted, out.Booking.Status)
}

func TestTransitionAssessReplacesFees(t *testing.T) {
	h := apptest.New()
	b := h.Open(t)
	h.PickUp(t, b.ID)
	h.Transition(t, b.ID, booking.EventConfirmReturn, lifecycle.Payload{
		Images:     evidence,
		StaffID:    "staff-2",
		ReturnedAt: b.Window.Dropoff,
		Flags:      []fees.Kind{fees.KindCleaning},
	})

	out := h.Transition(t, b.ID, booking.EventAssessAdditionalFees, lifecycle.Payload{
		Flags: []fees.Kind{fees.KindDeodorization},
	})
	assert.Equal(t, booking.StatusReturnPending, out.Booking.Status)
	assert.False(t, out.Booking.AssessedFees.Has(fees.KindCleaning))
	assert.True(t, out.Booking.AssessedFees.Has(fees.KindDeodorization))
	assert.Equal(t, int64(300_000), out.Booking.AssessedFees.Total.Amount)
}

func TestTransitionDuplicatePickupReturnsExistingRecord(t *testing.T) {
	h := apptest.New()
	ctx := context.Background()
	b := h.Open(t)
	h.PayRental(t, b.ID)

	first := h.Transition(t, b.ID, booking.EventConfirmPickup, lifecycle.Payload{Images: evidence, StaffID: "staff-1"})

	out, err := h.Machine.Transition(ctx, b.ID, booking.EventConfirmPickup, lifecycle.Payload{Images: []string{"evidence/other.jpg"}, StaffID: "staff-9"})
	require.ErrorIs(t, err, checkrecords.ErrDuplicateRecord)
	var dup *checkrecords.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.CheckRecord.Images, dup.Existing.Images)
	assert.Equal(t, "staff-1", dup.Existing.StaffID)
	require.NotNil(t, out.Booking)
	assert.Equal(t, booking.StatusInProgress, out.Booking.Status)
}

func TestTransitionRejectsInvalidEvent(t *testing.T) {
	h := apptest.New()
	ctx := context.Background()
	b := h.Open(t)

	out, err := h.Machine.Transition(ctx, b.ID, booking.EventConfirmReturn, lifecycle.Payload{Images: evidence, StaffID: "s"})
	require.ErrorIs(t, err, booking.ErrInvalidTransition)
	var terr *booking.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, booking.StatusCreated, terr.From)
	assert.Equal(t, booking.StatusCreated, out.Booking.Status)

	_, err = h.Machine.Transition(ctx, b.ID, booking.Event("Teleport"), lifecycle.Payload{})
	require.ErrorIs(t, err, booking.ErrUnknownEvent)

	_, err = h.Machine.Transition(ctx, "missing", booking.EventCancel, lifecycle.Payload{})
	require.ErrorIs(t, err, booking.ErrBookingNotFound)
}

func TestTransitionPickupRequiresEvidence(t *testing.T) {
	h := apptest.New()
	ctx := context.Background()
	b := h.Open(t)
	h.PayRental(t, b.ID)

	out, err := h.Machine.Transition(ctx, b.ID, booking.EventConfirmPickup, lifecycle.Payload{Images: []string{"  "}, StaffID: "staff-1"})
	require.ErrorIs(t, err, checkrecord.ErrEmptyEvidence)
	assert.Equal(t, booking.StatusPickupPending, out.Booking.Status)

	view, err := h.View.View(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, view.Pickup)
}

func TestTransitionChargeFailureKeepsAwaitingPayment(t *testing.T) {
	h := apptest.New()
	ctx := context.Background()
	b := h.Open(t)
	h.Processor.Decline = func(policies.ChargeRequest) bool { return true }

	out, err := h.Machine.Transition(ctx, b.ID, booking.EventRequestRentalPayment, lifecycle.Payload{Charge: true})
	require.ErrorIs(t, err, payments.ErrProcessor)
	require.NotNil(t, out.Booking)
	assert.Equal(t, booking.StatusAwaitingRentalPayment, out.Booking.Status)
	require.NotNil(t, out.Payment)
	assert.Equal(t, payment.StatusFailed, out.Payment.Status)

	h.Processor.Decline = nil
	p, err := h.Payments.RequestPayment(ctx, b.ID, payment.PurposeRentalFee, money.Money{})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, p.Status)
}

func TestTransitionPaymentSucceededRejectsForeignOrder(t *testing.T) {
	h := apptest.New()
	ctx := context.Background()
	a := h.Open(t)
	b := h.Open(t)
	h.Transition(t, b.ID, booking.EventRequestRentalPayment, lifecycle.Payload{})
	outA := h.Transition(t, a.ID, booking.EventRequestRentalPayment, lifecycle.Payload{Charge: true})

	_, err := h.Machine.Transition(ctx, b.ID, booking.EventPaymentSucceeded, lifecycle.Payload{OrderCode: outA.Payment.OrderCode})
	require.ErrorIs(t, err, lifecycle.ErrPaymentMismatch)

	view, err := h.View.View(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, string(payment.StatusPending), view.RentalPayment.Status)
}

func TestTransitionCancelTiers(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		lead    time.Duration
		kind    fees.CancelKind
		tier    fees.Tier
		fee     int64
	}{
		{name: "free window", elapsed: 30 * time.Minute, lead: 72 * time.Hour, tier: fees.TierFree, fee: 0},
		{name: "long lead", elapsed: 2 * time.Hour, lead: 8 * 24 * time.Hour, tier: fees.TierLongLead, fee: 100_000},
		{name: "short lead", elapsed: 2 * time.Hour, lead: 3 * 24 * time.Hour, tier: fees.TierShortLead, fee: 400_000},
		{name: "no show", elapsed: 10 * time.Minute, lead: 10 * 24 * time.Hour, kind: fees.CancelNoShow, tier: fees.TierShortLead, fee: 400_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := apptest.New()
			created := h.Clock.Now()
			b, err := h.Machine.Open(context.Background(), lifecycle.OpenParams{
				RenterID:  "renter-1",
				CarID:     "car-1",
				Pickup:    created.Add(tc.elapsed + tc.lead),
				Dropoff:   created.Add(tc.elapsed + tc.lead + 48*time.Hour),
				Total:     apptest.VND(1_000_000),
				DailyRate: apptest.VND(500_000),
			})
			require.NoError(t, err)
			h.Clock.Advance(tc.elapsed)

			out := h.Transition(t, b.ID, booking.EventCancel, lifecycle.Payload{CancelKind: tc.kind, Reason: tc.name})
			assert.Equal(t, booking.StatusCancelled, out.Booking.Status)
			require.NotNil(t, out.Booking.Cancellation)
			assert.Equal(t, tc.tier, out.Booking.Cancellation.Tier)
			assert.Equal(t, tc.fee, out.Booking.Cancellation.Fee.Amount)
			assert.Equal(t, 1_000_000-tc.fee, out.Booking.Cancellation.Refund.Amount)
		})
	}
}

func TestTransitionCancelOwnerFailureCompensatesRenter(t *testing.T) {
	h := apptest.New()
	b := h.Open(t)
	h.Clock.Advance(2 * time.Hour)

	out := h.Transition(t, b.ID, booking.EventCancel, lifecycle.Payload{CancelKind: fees.CancelOwnerFailure})
	require.NotNil(t, out.Booking.Cancellation)
	assert.Equal(t, int64(0), out.Booking.Cancellation.Fee.Amount)
	assert.Equal(t, int64(1_000_000), out.Booking.Cancellation.Refund.Amount)
	assert.Equal(t, int64(400_000), out.Booking.Cancellation.Compensation.Amount)
}

func TestTransitionCancelAfterPickupRejected(t *testing.T) {
	h := apptest.New()
	b := h.Open(t)
	h.PickUp(t, b.ID)

	out, err := h.Machine.Transition(context.Background(), b.ID, booking.EventCancel, lifecycle.Payload{})
	require.ErrorIs(t, err, booking.ErrInvalidTransition)
	assert.Equal(t, booking.StatusInProgress, out.Booking.Status)
}

func TestOpenValidatesInput(t *testing.T) {
	h := apptest.New()
	now := h.Clock.Now()
	_, err := h.Machine.Open(context.Background(), lifecycle.OpenParams{
		RenterID:  "renter-1",
		CarID:     "car-1",
		Pickup:    now.Add(48 * time.Hour),
		Dropoff:   now.Add(24 * time.Hour),
		Total:     apptest.VND(1_000_000),
		DailyRate: apptest.VND(500_000),
	})
	require.Error(t, err)

	_, err = h.Machine.Open(context.Background(), lifecycle.OpenParams{
		ID:        "dup",
		RenterID:  "renter-1",
		CarID:     "car-1",
		Pickup:    now.Add(24 * time.Hour),
		Dropoff:   now.Add(48 * time.Hour),
		Total:     apptest.VND(1_000_000),
		DailyRate: apptest.VND(500_000),
	})
	require.NoError(t, err)
	_, err = h.Machine.Open(context.Background(), lifecycle.OpenParams{
		ID:        "dup",
		RenterID:  "renter-2",
		CarID:     "car-2",
		Pickup:    now.Add(24 * time.Hour),
		Dropoff:   now.Add(48 * time.Hour),
		Total:     apptest.VND(1_000_000),
		DailyRate: apptest.VND(500_000),
	})
	require.ErrorIs(t, err, booking.ErrBookingExists)
}

func TestOpenRejectsAmountsOutsideFeeCurrency(t *testing.T) {
	h := apptest.New()
	now := h.Clock.Now()
	_, err := h.Machine.Open(context.Background(), lifecycle.OpenParams{
		RenterID:  "renter-1",
		CarID:     "car-1",
		Pickup:    now.Add(24 * time.Hour),
		Dropoff:   now.Add(48 * time.Hour),
		Total:     money.Must(100, "USD"),
		DailyRate: money.Must(50, "USD"),
	})
	require.ErrorIs(t, err, money.ErrCurrencyMismatch)
}

func TestOpenCountsFreeCancellationFromUpstreamBooking(t *testing.T) {
	h := apptest.New()
	now := h.Clock.Now()
	params := lifecycle.OpenParams{
		RenterID:  "renter-1",
		CarID:     "car-1",
		Pickup:    now.Add(72 * time.Hour),
		Dropoff:   now.Add(120 * time.Hour),
		Total:     apptest.VND(1_000_000),
		DailyRate: apptest.VND(500_000),
		CreatedAt: now.Add(-2 * time.Hour),
	}
	b, err := h.Machine.Open(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour), b.CreatedAt)

	out := h.Transition(t, b.ID, booking.EventCancel, lifecycle.Payload{})
	assert.Equal(t, fees.TierShortLead, out.Booking.Cancellation.Tier)

	params.CreatedAt = now.Add(time.Hour)
	future, err := h.Machine.Open(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, now, future.CreatedAt, "a booking time ahead of the clock is clamped")
}

func TestConfirmReturnWaitsForExtensionPayment(t *testing.T) {
	h := apptest.New()
	ctx := context.Background()
	b := h.Open(t)
	h.PickUp(t, b.ID)
	_, err := h.Extensions.RequestExtension(ctx, extensions.RequestInput{BookingID: b.ID, RequestedDays: 1})
	require.NoError(t, err)
	p, err := h.Extensions.PayExtension(ctx, b.ID)
	require.NoError(t, err)

	returnedAt := b.Window.Dropoff.Add(6 * time.Hour)
	returnPayload := lifecycle.Payload{Images: evidence, StaffID: "staff-2", ReturnedAt: returnedAt}
	out, err := h.Machine.Transition(ctx, b.ID, booking.EventConfirmReturn, returnPayload)
	require.ErrorIs(t, err, booking.ErrInvalidTransition)
	assert.Equal(t, booking.StatusInProgress, out.Booking.Status)

	_, err = h.Payments.MarkSucceeded(ctx, p.OrderCode)
	require.NoError(t, err)

	out = h.Transition(t, b.ID, booking.EventConfirmReturn, returnPayload)
	assert.Equal(t, booking.StatusReturnPending, out.Booking.Status)
	assert.Equal(t, b.Window.Dropoff.AddDate(0, 0, 1), out.Booking.Window.Dropoff)
	assert.False(t, out.Booking.AssessedFees.Total.IsPositive(), "the paid extension covers the late hours")
}

func TestConcurrentPickupsOnlyOneSucceeds(t *testing.T) {
	h := apptest.New()
	b := h.Open(t)
	h.PayRental(t, b.ID)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		duplicate int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Machine.Transition(context.Background(), b.ID, booking.EventConfirmPickup, lifecycle.Payload{Images: evidence, StaffID: "staff-1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, checkrecords.ErrDuplicateRecord):
				duplicate++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, duplicate)
	view, err := h.View.View(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, string(booking.StatusInProgress), view.Booking.Status)
}

func TestCancelCannotRacePastPickup(t *testing.T) {
	h := apptest.New()
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		b := h.Open(t)
		h.PayRental(t, b.ID)

		var (
			wg                   sync.WaitGroup
			pickupErr, cancelErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, pickupErr = h.Machine.Transition(ctx, b.ID, booking.EventConfirmPickup, lifecycle.Payload{Images: evidence, StaffID: "staff-1"})
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = h.Machine.Transition(ctx, b.ID, booking.EventCancel, lifecycle.Payload{Reason: "changed plans"})
		}()
		wg.Wait()

		view, err := h.View.View(ctx, b.ID)
		require.NoError(t, err)
		switch view.Booking.Status {
		case string(booking.StatusInProgress):
			require.NoError(t, pickupErr)
			require.ErrorIs(t, cancelErr, booking.ErrInvalidTransition)
			assert.NotNil(t, view.Pickup)
		case string(booking.StatusCancelled):
			require.NoError(t, cancelErr)
			require.ErrorIs(t, pickupErr, booking.ErrInvalidTransition)
			assert.Nil(t, view.Pickup, "no pickup record on a cancelled booking")
		default:
			t.Fatalf("unexpected status %s", view.Booking.Status)
		}
	}
}
