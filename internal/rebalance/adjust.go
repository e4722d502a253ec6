package rebalance

import (
	"github.com/shopspring/decimal"

	"github.com/mitsutoshi/yajirobe/internal/domain"
)

// Adjust fits a raw intent to the venue's order rules and the current top of
// book. Returns nil when the truncated quantity falls below the venue
// minimum, downgrading the intent to a no-op.
//
// Quantity is truncated down to a multiple of the order unit, never rounded
// up, so the order can never exceed the available balance. The price starts
// from the intent's last traded price and is clamped one tick inside the
// spread so the order does not aggressively cross it and pay taker fees.
func Adjust(intent domain.OrderIntent, c domain.Constraints, quote domain.Quote) *domain.OrderIntent {
	qty := TruncateToUnit(intent.Quantity, c.MinOrderUnit)
	if qty.LessThan(c.MinOrderSize) {
		return nil
	}

	tick := c.Tick()
	price := intent.Price
	switch intent.Side {
	case domain.SideBuy:
		if price.GreaterThan(quote.Bid) {
			price = quote.Bid.Add(tick)
		}
		price = price.Truncate(c.PricePrecision)
	case domain.SideSell:
		if price.LessThan(quote.Ask) {
			// a quote not aligned to the price precision must not push the
			// rounded price below ask-tick, so the clamp rounds up
			price = quote.Ask.Sub(tick).RoundCeil(c.PricePrecision)
		} else {
			price = price.Truncate(c.PricePrecision)
		}
	}

	return &domain.OrderIntent{
		Side:     intent.Side,
		Quantity: qty,
		Price:    price,
	}
}

// TruncateToUnit truncates a quantity down to a multiple of the order unit.
// Idempotent: truncating an already-truncated quantity yields the same value.
func TruncateToUnit(qty, unit decimal.Decimal) decimal.Decimal {
	if !unit.IsPositive() {
		return qty
	}
	return qty.Div(unit).Floor().Mul(unit)
}
