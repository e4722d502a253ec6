package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderIntent is a limit order the engine wants to place to restore the
// target allocation. Quantity and Price are raw until adjusted to the
// exchange constraints.
type OrderIntent struct {
	Side     Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Notional returns the order value in base currency.
func (o OrderIntent) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.Price)
}

// String returns a human-readable summary.
func (o OrderIntent) String() string {
	return fmt.Sprintf("side=%s qty=%s price=%s", o.Side, o.Quantity, o.Price)
}

// Constraints are the static order rules of an (exchange, coin) pair.
type Constraints struct {
	// MinOrderSize is the smallest quantity the venue accepts.
	MinOrderSize decimal.Decimal
	// MinOrderUnit is the quantity step; quantities are truncated down to
	// a multiple of it, never rounded up.
	MinOrderUnit decimal.Decimal
	// PricePrecision is the number of decimal digits allowed in the price.
	// Zero means integer prices.
	PricePrecision int32
}

// Tick returns the smallest price increment allowed by PricePrecision.
func (c Constraints) Tick() decimal.Decimal {
	return decimal.New(1, -c.PricePrecision)
}
