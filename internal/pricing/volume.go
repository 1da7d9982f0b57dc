package pricing

import "math"

// Volume discount tiers: the highest tier whose minimum quantity is at
// or below the ordered quantity applies.
type DiscountTier struct {
	MinQuantity     int
	DiscountPercent float64
}

var discountTiers = []DiscountTier{
	{MinQuantity: 1, DiscountPercent: 0},
	{MinQuantity: 50, DiscountPercent: 10},
	{MinQuantity: 100, DiscountPercent: 15},
	{MinQuantity: 200, DiscountPercent: 20},
}

type VolumeQuote struct {
	Quantity        int     `json:"quantity"`
	UnitPrice       float64 `json:"unit_price"`
	Subtotal        float64 `json:"subtotal"`
	DiscountPercent float64 `json:"discount_percent"`
	DiscountAmount  float64 `json:"discount_amount"`
	Total           float64 `json:"total"`
	PerUnit         float64 `json:"per_unit"`
}

// DiscountFor returns the discount percentage for a quantity. The tier
// boundary is inclusive: quantity 50 already earns the 10% tier.
func DiscountFor(quantity int) float64 {
	discount := 0.0
	for _, tier := range discountTiers {
		if quantity >= tier.MinQuantity {
			discount = tier.DiscountPercent
		}
	}
	return discount
}

// CalculatePrice computes a volume-discounted quote. Every monetary
// value is rounded to 2 decimals at the point of computation, not
// deferred to presentation.
func CalculatePrice(unitPrice float64, quantity int) VolumeQuote {
	subtotal := round2(unitPrice * float64(quantity))
	discountPercent := DiscountFor(quantity)
	discountAmount := round2(subtotal * discountPercent / 100)
	total := round2(subtotal - discountAmount)

	perUnit := 0.0
	if quantity > 0 {
		perUnit = round2(total / float64(quantity))
	}

	return VolumeQuote{
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		Subtotal:        subtotal,
		DiscountPercent: discountPercent,
		DiscountAmount:  discountAmount,
		Total:           total,
		PerUnit:         perUnit,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
