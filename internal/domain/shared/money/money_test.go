package money_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcar/internal/domain/shared/money"
)

func TestNewNormalizesCurrency(t *testing.T) {
	m, err := money.New(150_000, " vnd ")
	require.NoError(t, err)
	assert.Equal(t, "VND", m.Currency)

	_, err = money.New(1, "V1D")
	require.ErrorIs(t, err, money.ErrInvalidCurrency)
}

func TestSumRejectsMixedCurrencies(t *testing.T) {
	total, err := money.Sum("VND", money.Must(150_000, "VND"), money.Must(300_000, "VND"))
	require.NoError(t, err)
	assert.Equal(t, money.Must(450_000, "VND"), total)

	_, err = money.Sum("", money.Must(1, "VND"), money.Must(1, "USD"))
	require.ErrorIs(t, err, money.ErrCurrencyMismatch)
}

func TestPercentTruncates(t *testing.T) {
	assert.Equal(t, int64(399), money.Must(999, "VND").Percent(40).Amount)
	assert.Equal(t, int64(100_000), money.Must(1_000_000, "VND").Percent(10).Amount)
}

func TestString(t *testing.T) {
	assert.Equal(t, "1,000,000 VND", money.Must(1_000_000, "VND").String())
	assert.Equal(t, "-70,000 VND", money.Must(-70_000, "VND").String())
	assert.Equal(t, "0 VND", money.Zero("vnd").String())
}
