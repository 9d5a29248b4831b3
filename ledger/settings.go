package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// SETTINGS - How amounts are computed and interpreted
// =============================================================================

// Settings travel with the exported snapshot: amounts are meaningless without
// the rates that produced them.
type Settings struct {
	// CurrencySymbol is display-only; the engine is single-currency.
	CurrencySymbol string

	// TaxRate is applied to the discounted subtotal at settlement, e.g. 0.07.
	TaxRate decimal.Decimal

	// LoyaltyRate is points earned per currency unit billed, e.g. 0.1 means
	// one point per 10 spent. Points are floored to whole integers.
	LoyaltyRate decimal.Decimal
}

func DefaultSettings() Settings {
	return Settings{
		CurrencySymbol: "$",
		TaxRate:        decimal.Zero,
		LoyaltyRate:    decimal.NewFromFloat(0.1),
	}
}

// pointsFor computes floor(total x rate).
func pointsFor(total decimal.Decimal, rate decimal.Decimal) int64 {
	return total.Mul(rate).IntPart()
}
