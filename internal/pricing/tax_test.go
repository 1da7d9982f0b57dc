package pricing

import (
	"testing"

	"go.uber.org/zap"
)

func TestCalculateTaxConsumerVAT(t *testing.T) {
	calc := NewTaxCalculator(zap.NewNop())

	res := calc.CalculateTax(100, "DE", false, "")

	if res.Rate != 19 || res.TaxType != "vat" {
		t.Errorf("rate = %v type = %s, want 19 vat", res.Rate, res.TaxType)
	}
	if res.TaxAmount != 19 || res.Total != 119 {
		t.Errorf("tax = %v total = %v, want 19 and 119", res.TaxAmount, res.Total)
	}
}

func TestCalculateTaxEUReverseCharge(t *testing.T) {
	calc := NewTaxCalculator(zap.NewNop())

	res := calc.CalculateTax(100, "DE", true, "DE123456789")

	if res.TaxType != "reverse_charge" {
		t.Errorf("tax type = %s, want reverse_charge", res.TaxType)
	}
	if res.TaxAmount != 0 || res.Total != 100 {
		t.Errorf("tax = %v total = %v, want 0 and 100", res.TaxAmount, res.Total)
	}
}

func TestCalculateTaxBusinessWithoutVATNumberPaysVAT(t *testing.T) {
	calc := NewTaxCalculator(zap.NewNop())

	res := calc.CalculateTax(100, "FR", true, "")

	if res.TaxType != "vat" || res.Rate != 20 {
		t.Errorf("rate = %v type = %s, want French VAT without a VAT number", res.Rate, res.TaxType)
	}
}

func TestCalculateTaxNonEUBusinessNoReverseCharge(t *testing.T) {
	calc := NewTaxCalculator(zap.NewNop())

	// GB left the EU; a VAT number no longer triggers reverse charge.
	res := calc.CalculateTax(100, "GB", true, "GB123456789")

	if res.TaxType != "vat" || res.Rate != 20 {
		t.Errorf("rate = %v type = %s, want UK VAT", res.Rate, res.TaxType)
	}
}

func TestCalculateTaxUnknownCountry(t *testing.T) {
	calc := NewTaxCalculator(zap.NewNop())

	res := calc.CalculateTax(100, "XX", false, "")

	if res.Rate != 0 || res.TaxType != "none" {
		t.Errorf("rate = %v type = %s, want 0 none", res.Rate, res.TaxType)
	}
	if res.Total != 100 {
		t.Errorf("total = %v, want untaxed amount", res.Total)
	}
}

func TestCalculateTaxGST(t *testing.T) {
	calc := NewTaxCalculator(zap.NewNop())

	res := calc.CalculateTax(50, "AU", false, "")

	if res.TaxType != "gst" || res.Rate != 10 {
		t.Errorf("rate = %v type = %s, want 10 gst", res.Rate, res.TaxType)
	}
	if res.TaxAmount != 5 || res.Total != 55 {
		t.Errorf("tax = %v total = %v, want 5 and 55", res.TaxAmount, res.Total)
	}
}
