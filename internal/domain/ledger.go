package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is the running position state derived from one fill.
// Entries are append-only; one entry is produced per fill.
type LedgerEntry struct {
	Time time.Time
	Side Side
	// Quantity and Price echo the fill that produced this entry.
	Quantity decimal.Decimal
	Price    decimal.Decimal
	// PositionSize is the coin position after applying the fill. It may go
	// negative when more is sold than held; average-cost semantics are
	// undefined in that regime.
	PositionSize decimal.Decimal
	// PositionCost is the cumulative cost basis in base currency.
	PositionCost decimal.Decimal
	// AvgBuyPrice is the weighted-average acquisition price. It changes on
	// buys only under the default cost method.
	AvgBuyPrice decimal.Decimal
	// RealizedProfit is zero on buys; on sells it is
	// (price - avg buy price before the sell) * quantity.
	RealizedProfit decimal.Decimal
}
