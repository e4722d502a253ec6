package domain

import "github.com/shopspring/decimal"

// Balance is the account's holdings of the trade coin and the base currency.
// At least one of the two must be positive for the account to be
// rebalanceable; adapters return ErrNoBalance otherwise.
type Balance struct {
	Coin decimal.Decimal
	Base decimal.Decimal
}

// Total values the whole balance in base currency at the given price.
func (b Balance) Total(price decimal.Decimal) decimal.Decimal {
	return b.Coin.Mul(price).Add(b.Base)
}

// BaseRate returns the fraction of the valuation held in base currency.
// Callers must ensure Total is positive.
func (b Balance) BaseRate(price decimal.Decimal) decimal.Decimal {
	return b.Base.Div(b.Total(price))
}

// IsEmpty reports whether both sides are zero or negative.
func (b Balance) IsEmpty() bool {
	return !b.Coin.IsPositive() && !b.Base.IsPositive()
}
