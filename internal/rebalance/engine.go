// Package rebalance holds the allocation decision logic. Decide is pure and
// exchange-independent; Adjust applies the venue's order constraints. The
// split keeps the decision fully unit-testable without network or
// exchange-specific rounding rules.
package rebalance

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mitsutoshi/yajirobe/internal/domain"
)

var (
	// DefaultTargetBaseRate keeps half of the account value in base currency.
	DefaultTargetBaseRate = decimal.RequireFromString("0.5")
	// DefaultDeadband is the tolerance around the target within which no
	// order is issued, avoiding churn from rounding-sized orders.
	DefaultDeadband = decimal.RequireFromString("0.01")
)

// Decide maps the current holdings and price to an order intent, or nil when
// the allocation is within the deadband. The intent carries the raw quantity
// and the last traded price; Adjust applies the exchange constraints.
func Decide(bal domain.Balance, price, targetBaseRate, deadband decimal.Decimal) (*domain.OrderIntent, error) {
	total := bal.Total(price)
	if !total.IsPositive() {
		return nil, errors.Wrapf(domain.ErrInvalidState, "total=%s", total)
	}

	baseRate := bal.Base.Div(total)
	if baseRate.Sub(targetBaseRate).Abs().LessThan(deadband) {
		return nil, nil
	}

	targetBase := total.Mul(targetBaseRate)
	diff := targetBase.Sub(bal.Base)

	// holding too little base currency means selling coin, and vice versa
	side := domain.SideBuy
	if diff.IsPositive() {
		side = domain.SideSell
	}

	return &domain.OrderIntent{
		Side:     side,
		Quantity: diff.Abs().Div(price),
		Price:    price,
	}, nil
}

// BaseRate returns the fraction of the account value held in base currency.
func BaseRate(bal domain.Balance, price decimal.Decimal) (decimal.Decimal, error) {
	total := bal.Total(price)
	if !total.IsPositive() {
		return decimal.Zero, errors.Wrapf(domain.ErrInvalidState, "total=%s", total)
	}
	return bal.Base.Div(total), nil
}
