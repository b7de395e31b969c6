package core

import (
	"github.com/shopspring/decimal"
)

const (
	// minRaisePercent is the minimum next bid as a percentage of the leading
	// amount. A new bid must strictly exceed this threshold.
	minRaisePercent = 105

	// refundFeePercent is the processing fee retained from every refund
	// withdrawal, rounded down to whole value units.
	refundFeePercent = 2
)

var percentDivisor = decimal.NewFromInt(100)

// MinimumRaiseMet reports whether offered strictly exceeds 105% of lead.
// When lead is zero any positive offer qualifies. Uses decimal arithmetic so
// the comparison stays exact for the full uint64 range; because the threshold
// has at most two decimal places this is equivalent to the floored integer
// comparison offered > lead*105/100.
func MinimumRaiseMet(lead, offered uint64) bool {
	threshold := decimal.NewFromUint64(lead).
		Mul(decimal.NewFromInt(minRaisePercent)).
		Div(percentDivisor)
	return decimal.NewFromUint64(offered).GreaterThan(threshold)
}

// SplitRefund splits a refund balance into the operator's processing fee and
// the bidder's net payout. fee = floor(refund*2/100), net = refund - fee, so
// fee + net == refund for every refund.
func SplitRefund(refund uint64) (fee, net uint64) {
	feeDecimal := decimal.NewFromUint64(refund).
		Mul(decimal.NewFromInt(refundFeePercent)).
		Div(percentDivisor).
		Floor()
	fee = feeDecimal.BigInt().Uint64()
	return fee, refund - fee
}
