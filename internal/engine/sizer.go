package engine

import "math"

// SizeOrder computes the order quantity from available cash, a risk
// percentage and a hard investment cap. It is a pure function.
//
// investAmount = min(cash * percent/100, maxInvestment)
// quantity     = floor(investAmount / price)
//
// A quantity of zero means no trade: either the capped amount rounds below
// one share at the current price, or the amount itself is below $1. The
// cap always applies, so a zero max_investment halts buying entirely.
func SizeOrder(availableCash, investmentPercent, maxInvestment, price float64) int {
	if price <= 0 || availableCash <= 0 || investmentPercent <= 0 {
		return 0
	}

	investAmount := availableCash * investmentPercent / 100
	if investAmount > maxInvestment {
		investAmount = maxInvestment
	}
	if investAmount < 1 {
		return 0
	}

	quantity := int(math.Floor(investAmount / price))
	if quantity < 1 {
		return 0
	}
	return quantity
}
