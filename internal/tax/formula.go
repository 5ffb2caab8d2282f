package tax

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-tax/internal/money"
)

var hundred = decimal.NewFromInt(100)

// RateFraction converts a percentage rate such as 7.5 into 0.075.
func RateFraction(percent decimal.Decimal) decimal.Decimal {
	return percent.DivRound(hundred, money.CalculationScale)
}

// ExclusiveTax is the tax added on top of a tax-free price: price * rate.
func ExclusiveTax(price, rate decimal.Decimal) decimal.Decimal {
	return money.Round(price.Mul(rate))
}

// InclusiveTax extracts the part of a tax-inclusive price owed to one rate,
// where sumOfRates is the combined rate of every tax contained in the price:
// rate * price / (1 + sumOfRates).
func InclusiveTax(price, rate, sumOfRates decimal.Decimal) decimal.Decimal {
	return rate.Mul(price).DivRound(decimal.NewFromInt(1).Add(sumOfRates), money.CalculationScale)
}

func taxFor(mode Mode, price decimal.Decimal, rate appliedRate, sumOfRates decimal.Decimal) decimal.Decimal {
	if mode == ModeInclusive {
		return InclusiveTax(price, rate.rate, sumOfRates)
	}
	return ExclusiveTax(price, rate.rate)
}
