package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingFixtureParams(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	fx := bookingFixture{ID: "bk-demo", RenterID: "renter-1", CarID: "car-1", PickupIn: "72h", Days: 2, Total: 1_000_000, DailyRate: 500_000}

	p, err := fx.params(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC), p.Pickup)
	assert.Equal(t, 48*time.Hour, p.Dropoff.Sub(p.Pickup))
	assert.Equal(t, "VND", p.Total.Currency)
	assert.Equal(t, int64(500_000), p.DailyRate.Amount)

	_, err = bookingFixture{PickupIn: "soon"}.params(now)
	require.Error(t, err)
}
