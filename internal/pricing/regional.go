package pricing

import (
	"context"
	"math"
	"time"
)

// anchorTolerance matches the USD price against anchor points with an
// absolute-difference comparison rather than exact equality, so inputs
// arriving through float arithmetic still hit their anchor.
const anchorTolerance = 0.01

// Psychological price equivalents per USD anchor point. These override
// computed conversion entirely: $9.99 in euros is €9.99, not whatever
// today's rate says.
var anchorPrices = map[float64]map[string]float64{
	4.99: {
		"EUR": 4.99, "GBP": 3.99, "JPY": 700,
		"CAD": 6.99, "AUD": 7.99, "INR": 399,
	},
	9.99: {
		"EUR": 9.99, "GBP": 8.99, "JPY": 1500,
		"CAD": 13.99, "AUD": 14.99, "INR": 799,
	},
	19.99: {
		"EUR": 19.99, "GBP": 17.99, "JPY": 3000,
		"CAD": 26.99, "AUD": 29.99, "INR": 1599,
	},
	49.99: {
		"EUR": 49.99, "GBP": 44.99, "JPY": 7000,
		"CAD": 67.99, "AUD": 74.99, "INR": 3999,
	},
	99.99: {
		"EUR": 99.99, "GBP": 89.99, "JPY": 15000,
		"CAD": 135.99, "AUD": 149.99, "INR": 7999,
	},
}

type RegionalPricer struct {
	currency *CurrencyService
}

func NewRegionalPricer(currency *CurrencyService) *RegionalPricer {
	return &RegionalPricer{currency: currency}
}

// Price returns the regional price for a USD amount. Anchor lookups take
// precedence; only non-anchor prices fall through to live conversion
// plus the currency's psychological rounding rule.
func (p *RegionalPricer) Price(ctx context.Context, usdPrice float64, currency string, date time.Time) float64 {
	if currency == "USD" {
		return usdPrice
	}

	for anchor, table := range anchorPrices {
		if math.Abs(usdPrice-anchor) < anchorTolerance {
			if price, ok := table[currency]; ok {
				return price
			}
			break
		}
	}

	rate := p.currency.GetRate(ctx, "USD", currency, date)
	return RoundForCurrency(usdPrice*rate, currency)
}

// RoundForCurrency applies per-currency psychological rounding:
// JPY to the nearest 1000; EUR/GBP floored then minus 1; CAD/AUD up to
// the nearest 10 then minus 1; everything else to the nearest 10.
func RoundForCurrency(value float64, currency string) float64 {
	switch currency {
	case "JPY":
		return math.Round(value/1000) * 1000
	case "EUR", "GBP":
		return math.Floor(value) - 1
	case "CAD", "AUD":
		return math.Ceil(value/10)*10 - 1
	default:
		return math.Round(value/10) * 10
	}
}
