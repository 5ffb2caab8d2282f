package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseCurrencyDigits(t *testing.T) {
	tests := []struct {
		code   string
		want   string
		digits int32
	}{
		{code: "usd", want: "USD", digits: 2},
		{code: " EUR ", want: "EUR", digits: 2},
		{code: "JPY", want: "JPY", digits: 0},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			cur, err := ParseCurrency(tt.code)
			require.NoError(t, err)
			require.Equal(t, tt.want, cur.Code())
			require.Equal(t, tt.digits, cur.Digits())
		})
	}
}

func TestParseCurrencyUnknown(t *testing.T) {
	_, err := ParseCurrency("ZZ")
	if !errors.Is(err, ErrUnknownCurrency) {
		t.Fatalf("expected ErrUnknownCurrency, got %v", err)
	}
}

func TestAddRejectsMixedCurrencies(t *testing.T) {
	usd := New(decimal.NewFromInt(1), MustCurrency("USD"))
	eur := New(decimal.NewFromInt(1), MustCurrency("EUR"))
	_, err := usd.Add(eur)
	require.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = usd.Sub(eur)
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	sum, err := usd.Add(usd)
	require.NoError(t, err)
	require.True(t, sum.Value.Equal(decimal.NewFromInt(2)))
}

func TestFinalizeRoundsHalfUpToMinorUnits(t *testing.T) {
	amt := New(decimal.RequireFromString("13.0434782609"), MustCurrency("USD"))
	require.Equal(t, "13.04", amt.Finalize().Value.StringFixed(2))

	half := New(decimal.RequireFromString("0.125"), MustCurrency("USD"))
	require.Equal(t, "0.13", half.Finalize().Value.StringFixed(2))

	yen := New(decimal.RequireFromString("104.5"), MustCurrency("JPY"))
	require.Equal(t, "105", yen.Finalize().Value.String())
}

func TestRoundKeepsCalculationScale(t *testing.T) {
	third := decimal.NewFromInt(1).DivRound(decimal.NewFromInt(3), 20)
	require.Equal(t, "0.3333333333", Round(third).String())
	twoThirds := decimal.NewFromInt(2).DivRound(decimal.NewFromInt(3), 20)
	require.Equal(t, "0.6666666667", Round(twoThirds).String())
}
