package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// CalculationScale is the number of fractional digits kept for intermediate
// tax values, independent of the currency's minor units.
const CalculationScale int32 = 10

var (
	// ErrCurrencyMismatch is returned when combining amounts of different currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrUnknownCurrency is returned when a currency code is not a valid ISO 4217 code.
	ErrUnknownCurrency = errors.New("unknown currency")
)

// Currency identifies an ISO 4217 currency and its minor-unit digit count.
type Currency struct {
	code   string
	digits int32
}

// ParseCurrency resolves an ISO 4217 code such as "USD" or "jpy".
func ParseCurrency(code string) (Currency, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return Currency{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return Currency{code: unit.String(), digits: int32(scale)}, nil
}

// MustCurrency behaves like ParseCurrency but panics on error. Useful for tests and constants.
func MustCurrency(code string) Currency {
	c, err := ParseCurrency(code)
	if err != nil {
		panic(err)
	}
	return c
}

// Code returns the upper-case ISO code, or "" for the zero Currency.
func (c Currency) Code() string { return c.code }

// Digits returns the number of minor-unit digits (2 for USD, 0 for JPY).
func (c Currency) Digits() int32 { return c.digits }

// IsZero reports whether the currency is unset.
func (c Currency) IsZero() bool { return c.code == "" }

func (c Currency) String() string { return c.code }

// Amount is a decimal value in a currency.
type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

// New constructs an Amount.
func New(value decimal.Decimal, cur Currency) Amount {
	return Amount{Value: value, Currency: cur}
}

// Zero returns a zero Amount in cur.
func Zero(cur Currency) Amount {
	return Amount{Value: decimal.Zero, Currency: cur}
}

// Parse builds an Amount from a decimal string and a currency code.
func Parse(value, code string) (Amount, error) {
	cur, err := ParseCurrency(code)
	if err != nil {
		return Amount{}, err
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return New(d, cur), nil
}

// Add returns a+b. Both operands must share a currency.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, a.Currency, b.Currency)
	}
	return New(a.Value.Add(b.Value), a.Currency), nil
}

// Sub returns a-b. Both operands must share a currency.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, fmt.Errorf("%w: %s - %s", ErrCurrencyMismatch, a.Currency, b.Currency)
	}
	return New(a.Value.Sub(b.Value), a.Currency), nil
}

// IsZero reports whether the value is zero.
func (a Amount) IsZero() bool { return a.Value.IsZero() }

// Finalize rounds the value half-up to the currency's minor units.
func (a Amount) Finalize() Amount {
	return New(RoundTo(a.Value, a.Currency.Digits()), a.Currency)
}

func (a Amount) String() string {
	return a.Value.String() + " " + a.Currency.Code()
}

// Round rounds d half-up to CalculationScale.
func Round(d decimal.Decimal) decimal.Decimal {
	return RoundTo(d, CalculationScale)
}

// RoundTo rounds d half-up to the given number of fractional digits.
// Half-up here means ties move away from zero, matching monetary rounding for
// both positive amounts and refunds.
func RoundTo(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}
