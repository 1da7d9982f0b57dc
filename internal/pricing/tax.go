package pricing

import (
	"go.uber.org/zap"
)

type TaxResult struct {
	Amount    float64 `json:"amount"`
	Rate      float64 `json:"rate"`
	TaxAmount float64 `json:"tax_amount"`
	Total     float64 `json:"total"`
	TaxType   string  `json:"tax_type"`
}

type countryTax struct {
	rate    float64
	taxType string
}

var countryTaxes = map[string]countryTax{
	// EU VAT
	"AT": {20, "vat"}, "BE": {21, "vat"}, "BG": {20, "vat"},
	"HR": {25, "vat"}, "CY": {19, "vat"}, "CZ": {21, "vat"},
	"DK": {25, "vat"}, "EE": {22, "vat"}, "FI": {24, "vat"},
	"FR": {20, "vat"}, "DE": {19, "vat"}, "GR": {24, "vat"},
	"HU": {27, "vat"}, "IE": {23, "vat"}, "IT": {22, "vat"},
	"LV": {21, "vat"}, "LT": {21, "vat"}, "LU": {17, "vat"},
	"MT": {18, "vat"}, "NL": {21, "vat"}, "PL": {23, "vat"},
	"PT": {23, "vat"}, "RO": {19, "vat"}, "SK": {20, "vat"},
	"SI": {22, "vat"}, "ES": {21, "vat"}, "SE": {25, "vat"},

	// Non-EU
	"GB": {20, "vat"},
	"NO": {25, "vat"},
	"CH": {8.1, "vat"},
	"AU": {10, "gst"},
	"NZ": {15, "gst"},
	"CA": {5, "gst"},
	"JP": {10, "consumption_tax"},
	"SG": {9, "gst"},
	"IN": {18, "gst"},
}

var euCountries = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true,
	"CZ": true, "DK": true, "EE": true, "FI": true, "FR": true,
	"DE": true, "GR": true, "HU": true, "IE": true, "IT": true,
	"LV": true, "LT": true, "LU": true, "MT": true, "NL": true,
	"PL": true, "PT": true, "RO": true, "SK": true, "SI": true,
	"ES": true, "SE": true,
}

type TaxCalculator struct {
	logger *zap.Logger
}

func NewTaxCalculator(logger *zap.Logger) *TaxCalculator {
	return &TaxCalculator{logger: logger}
}

// CalculateTax applies the destination country's rate, or the EU B2B
// reverse-charge exemption when a business customer supplies a VAT
// number. An unknown country yields 0% rather than an error: billing
// must not hard-fail on bad address data.
func (t *TaxCalculator) CalculateTax(amount float64, countryCode string, isBusiness bool, vatNumber string) TaxResult {
	if isBusiness && euCountries[countryCode] && vatNumber != "" {
		return TaxResult{
			Amount:  amount,
			Total:   round2(amount),
			TaxType: "reverse_charge",
		}
	}

	entry, ok := countryTaxes[countryCode]
	if !ok {
		t.logger.Warn("No tax rate for country, charging 0%",
			zap.String("country", countryCode),
		)
		return TaxResult{
			Amount:  amount,
			Total:   round2(amount),
			TaxType: "none",
		}
	}

	taxAmount := round2(amount * entry.rate / 100)
	return TaxResult{
		Amount:    amount,
		Rate:      entry.rate,
		TaxAmount: taxAmount,
		Total:     round2(amount + taxAmount),
		TaxType:   entry.taxType,
	}
}
