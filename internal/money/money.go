package money

import "github.com/shopspring/decimal"

var (
	// Tolerance under which a residual balance counts as fully paid.
	PaidTolerance = decimal.NewFromFloat(0.05)

	roundingTolerance = decimal.NewFromFloat(0.03)
	hundred           = decimal.NewFromInt(100)
)

// RoundToNearestCent snaps a value to the nearest tenth, but only when the
// snap distance is within tolerance. Percentage fee math leaves amounts like
// 364.9871 that should read 365.00; a genuine 10.24 must stay 10.24.
func RoundToNearestCent(v decimal.Decimal) decimal.Decimal {
	rounded := v.Round(1)
	if v.Sub(rounded).Abs().LessThanOrEqual(roundingTolerance) {
		return rounded
	}
	return v
}

// FeeAmount computes the processor fee on a gross amount, in cents.
func FeeAmount(gross, feePct decimal.Decimal) decimal.Decimal {
	return gross.Mul(feePct).Div(hundred).Round(2)
}

// GrossUp raises a net amount so the organizer still receives it after the
// processor takes feePct: amount * 100 / (100 - fee), rounded up to cents.
func GrossUp(net, feePct decimal.Decimal) decimal.Decimal {
	if feePct.IsZero() {
		return net
	}
	return net.Mul(hundred).Div(hundred.Sub(feePct)).RoundCeil(2)
}

// VatSplit separates a VAT-inclusive amount into net and tax parts.
func VatSplit(amount, ratePct decimal.Decimal) (net, vat decimal.Decimal) {
	net = amount.Mul(hundred).Div(hundred.Add(ratePct)).Round(2)
	vat = amount.Sub(net)
	return net, vat
}

// IsPaidOff reports whether the outstanding difference is inside the
// fully-paid tolerance.
func IsPaidOff(totalDue, totalPaid decimal.Decimal) bool {
	return totalDue.Sub(totalPaid).LessThanOrEqual(PaidTolerance)
}
