package domain

import "math"

// ProportionalTaxCents allocates a sale's tax to a returned value in
// proportion to the subtotal. Zero-subtotal sales carry no tax back.
func ProportionalTaxCents(taxCents, subtotalCents, returnedValueCents int64) int64 {
	if subtotalCents <= 0 || taxCents <= 0 {
		return 0
	}
	return int64(math.Round(float64(taxCents) / float64(subtotalCents) * float64(returnedValueCents)))
}

// TaxCentsFor computes the tax amount for a subtotal at the given
// percentage rate, rounded to the nearest cent.
func TaxCentsFor(subtotalCents int64, ratePercent float64) int64 {
	if subtotalCents <= 0 || ratePercent <= 0 {
		return 0
	}
	return int64(math.Round(float64(subtotalCents) * ratePercent / 100))
}
