package fees_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcar/internal/domain/fees"
	"rentcar/internal/domain/shared/money"
)

func vnd(amount int64) money.Money { return money.Must(amount, "VND") }

func TestCancellationFee_Tiers(t *testing.T) {
	engine := fees.MustEngine(fees.DefaultPolicy())
	total := vnd(1_000_000)

	cases := []struct {
		name      string
		elapsed   time.Duration
		untilTrip time.Duration
		want      int64
	}{
		{"within free window", 10 * time.Minute, 3 * 24 * time.Hour, 0},
		{"exactly one hour is free", time.Hour, time.Hour, 0},
		{"long lead", 2 * time.Hour, 10 * 24 * time.Hour, 100_000},
		{"short lead", 2 * time.Hour, 3 * 24 * time.Hour, 400_000},
		{"exactly seven days is short lead", 2 * time.Hour, 7 * 24 * time.Hour, 400_000},
		{"trip already started", 2 * time.Hour, -time.Hour, 400_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.CancellationFee(total, tc.elapsed, tc.untilTrip)
			assert.Equal(t, vnd(tc.want), got)
		})
	}
}

func TestCancellationFee_FreeWindowIgnoresTripDistance(t *testing.T) {
	engine := fees.MustEngine(fees.DefaultPolicy())
	for _, until := range []time.Duration{-48 * time.Hour, 0, time.Hour, 30 * 24 * time.Hour} {
		assert.True(t, engine.CancellationFee(vnd(5_000_000), 30*time.Minute, until).IsZero())
	}
}

func TestCancellationFee_Deterministic(t *testing.T) {
	engine := fees.MustEngine(fees.DefaultPolicy())
	first := engine.CancellationFee(vnd(1_234_567), 3*time.Hour, 2*24*time.Hour)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, engine.CancellationFee(vnd(1_234_567), 3*time.Hour, 2*24*time.Hour))
	}
	assert.Equal(t, vnd(493_826), first)
}

func TestCancellation_NoShowIsShortLeadRegardlessOfElapsed(t *testing.T) {
	engine := fees.MustEngine(fees.DefaultPolicy())

	s, err := engine.Cancellation(fees.CancelNoShow, vnd(1_000_000), 5*time.Minute, 30*24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, fees.TierShortLead, s.Tier)
	assert.Equal(t, vnd(400_000), s.Fee)
	assert.Equal(t, vnd(600_000), s.Refund)
	assert.True(t, s.Compensation.IsZero())
}

func TestCancellation_OwnerFailureRefundsAndCompensates(t *testing.T) {
	engine := fees.MustEngine(fees.DefaultPolicy())

	s, err := engine.Cancellation(fees.CancelOwnerFailure, vnd(1_000_000), 3*time.Hour, 30*24*time.Hour)

	require.NoError(t, err)
	assert.True(t, s.Fee.IsZero())
	assert.Equal(t, vnd(1_000_000), s.Refund)
	assert.Equal(t, vnd(400_000), s.Compensation)
}

func TestOvertimeFee(t *testing.T) {
	engine := fees.MustEngine(fees.DefaultPolicy())
	day := vnd(900_000)

	assert.Equal(t, vnd(210_000), engine.OvertimeFee(3, day))
	assert.Equal(t, vnd(350_000), engine.OvertimeFee(5, day))
	assert.Equal(t, day, engine.OvertimeFee(6, day), "day rate supersedes the hourly sum")
	assert.True(t, engine.OvertimeFee(0, day).IsZero())
	assert.True(t, engine.OvertimeFee(-2, day).IsZero())
}

func TestExtensionCost(t *testing.T) {
	engine := fees.MustEngine(fees.DefaultPolicy())

	got, err := engine.ExtensionCost(vnd(800_000), 3)
	require.NoError(t, err)
	assert.Equal(t, vnd(2_400_000), got)

	_, err = engine.ExtensionCost(vnd(800_000), 0)
	assert.ErrorIs(t, err, fees.ErrInvalidDays)
}

func TestReturnSurcharges_OrderIndependent(t *testing.T) {
	engine := fees.MustEngine(fees.DefaultPolicy())
	day := vnd(900_000)

	a, err := engine.ReturnSurcharges(fees.ReturnConditions{HoursLate: 2, DayRate: day, Flags: []fees.Kind{fees.KindCleaning, fees.KindDeodorization}})
	require.NoError(t, err)
	b, err := engine.ReturnSurcharges(fees.ReturnConditions{HoursLate: 2, DayRate: day, Flags: []fees.Kind{fees.KindDeodorization, fees.KindCleaning}})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, []fees.Kind{fees.KindOvertime, fees.KindCleaning, fees.KindDeodorization}, a.Kinds())
	assert.Equal(t, vnd(140_000+150_000+300_000), a.Total)
}

func TestReturnSurcharges_ZeroIsDistinctFromAbsent(t *testing.T) {
	policy := fees.DefaultPolicy()
	policy.CleaningFee = 0
	engine := fees.MustEngine(policy)

	got, err := engine.ReturnSurcharges(fees.ReturnConditions{Flags: []fees.Kind{fees.KindCleaning}})

	require.NoError(t, err)
	assert.True(t, got.Has(fees.KindCleaning))
	assert.False(t, got.Has(fees.KindOvertime))
	assert.True(t, got.Total.IsZero())
}

func TestReturnSurcharges_RejectsUnknownFlag(t *testing.T) {
	engine := fees.MustEngine(fees.DefaultPolicy())

	_, err := engine.ReturnSurcharges(fees.ReturnConditions{Flags: []fees.Kind{fees.KindExtension}})

	assert.ErrorIs(t, err, fees.ErrUnknownKind)
}

func TestPolicyValidate(t *testing.T) {
	p := fees.DefaultPolicy()
	p.ShortLeadPercent = 140
	_, err := fees.NewEngine(p)
	assert.ErrorIs(t, err, fees.ErrInvalidPolicy)
}
