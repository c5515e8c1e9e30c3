// Package apptest wires the booking components over the in-memory store for tests.
package apptest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rentcar/internal/app/bookingview"
	"rentcar/internal/app/checkrecords"
	"rentcar/internal/app/extensions"
	"rentcar/internal/app/lifecycle"
	"rentcar/internal/app/locks"
	"rentcar/internal/app/outbox"
	"rentcar/internal/app/payments"
	"rentcar/internal/domain/booking"
	"rentcar/internal/domain/fees"
	"rentcar/internal/domain/payment"
	"rentcar/internal/domain/shared/money"
	"rentcar/internal/infra/processor"
	"rentcar/internal/infra/storage/memory"
)

// Epoch is the default clock start: 1 May 2026, 09:00 UTC.
var Epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type Harness struct {
	Store      *memory.Store
	Outbox     *memory.Outbox
	UoW        memory.Factory
	Locks      *locks.Keyed
	Processor  *processor.Sandbox
	Fees       *fees.Engine
	Clock      *Clock
	Payments   *payments.Coordinator
	Records    *checkrecords.Service
	Extensions *extensions.Service
	Machine    *lifecycle.Machine
	View       *bookingview.Service
}

func New() *Harness {
	store := memory.NewStore()
	box := memory.NewOutbox()
	factory := memory.Factory{Store: store, Outbox: box}
	keyed := locks.NewKeyed()
	sandbox := processor.NewSandbox()
	engine := fees.MustEngine(fees.DefaultPolicy())
	clock := &Clock{now: Epoch}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := outbox.Recorder{Box: box}

	coordinator := &payments.Coordinator{
		UoW:       factory,
		Locks:     keyed,
		Processor: sandbox,
		Events:    recorder,
		Logger:    logger,
		Timeout:   200 * time.Millisecond,
		Clock:     clock.Now,
	}
	records := &checkrecords.Service{UoW: factory, Locks: keyed, Logger: logger, Clock: clock.Now}
	ext := &extensions.Service{
		UoW:      factory,
		Locks:    keyed,
		Fees:     engine,
		Payments: coordinator,
		Events:   recorder,
		Logger:   logger,
		Clock:    clock.Now,
	}
	machine := &lifecycle.Machine{
		UoW:      factory,
		Locks:    keyed,
		Fees:     engine,
		Evidence: records,
		Payments: coordinator,
		Events:   recorder,
		Logger:   logger,
		Clock:    clock.Now,
	}
	coordinator.OnSettled(payment.PurposeRentalFee, machine.ApplyRentalPayment)
	coordinator.OnSettled(payment.PurposeExtension, ext.ApplyPayment)

	return &Harness{
		Store:      store,
		Outbox:     box,
		UoW:        factory,
		Locks:      keyed,
		Processor:  sandbox,
		Fees:       engine,
		Clock:      clock,
		Payments:   coordinator,
		Records:    records,
		Extensions: ext,
		Machine:    machine,
		View:       &bookingview.Service{UoW: factory},
	}
}

func VND(amount int64) money.Money { return money.Must(amount, "VND") }

// Open creates a booking for a 2-day rental starting 72h after the clock, total 1,000,000
// at a daily rate of 500,000.
func (h *Harness) Open(t testing.TB) *booking.Booking {
	t.Helper()
	now := h.Clock.Now()
	b, err := h.Machine.Open(context.Background(), lifecycle.OpenParams{
		RenterID:     "renter-1",
		CarID:        "car-1",
		PickupPlace:  "District 1",
		DropoffPlace: "District 1",
		Pickup:       now.Add(72 * time.Hour),
		Dropoff:      now.Add(120 * time.Hour),
		Total:        VND(1_000_000),
		DailyRate:    VND(500_000),
	})
	require.NoError(t, err)
	return b
}

// Transition applies event and fails the test on error.
func (h *Harness) Transition(t testing.TB, id booking.BookingID, event booking.Event, payload lifecycle.Payload) lifecycle.Outcome {
	t.Helper()
	out, err := h.Machine.Transition(context.Background(), id, event, payload)
	require.NoError(t, err)
	return out
}

// PayRental requests and settles the rental fee, leaving the booking PickupPending.
func (h *Harness) PayRental(t testing.TB, id booking.BookingID) *payment.Payment {
	t.Helper()
	out := h.Transition(t, id, booking.EventRequestRentalPayment, lifecycle.Payload{Charge: true})
	require.NotNil(t, out.Payment)
	settled, err := h.Payments.MarkSucceeded(context.Background(), out.Payment.OrderCode)
	require.NoError(t, err)
	return settled
}

// PickUp drives a fresh booking to InProgress.
func (h *Harness) PickUp(t testing.TB, id booking.BookingID) {
	t.Helper()
	h.PayRental(t, id)
	h.Transition(t, id, booking.EventConfirmPickup, lifecycle.Payload{
		Images:  []string{"evidence/pickup-front.jpg"},
		StaffID: "staff-1",
	})
}
