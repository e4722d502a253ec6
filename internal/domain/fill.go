package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is one of the account's own executions as reported by an exchange.
// Immutable and exchange-assigned.
type Fill struct {
	Time     time.Time
	Side     Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Deposit is a confirmed fiat deposit into the account.
type Deposit struct {
	Time     time.Time
	Currency string
	Amount   decimal.Decimal
}
