// Package snapshot records the account's holdings to the point store, one
// point per held asset valued in base currency.
package snapshot

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/exchange"
	"github.com/mitsutoshi/yajirobe/internal/storage/pointstore"
)

// Measurement is the point-store measurement name for balance rows.
const Measurement = "balances"

// Store is the slice of the point store the collector needs.
type Store interface {
	Write(points []pointstore.Point) error
}

// Collector writes one balance snapshot per run.
type Collector struct {
	pair     domain.Pair
	exchange exchange.Exchange
	store    Store
	logger   *zap.Logger
	now      func() time.Time
}

// New builds a collector.
func New(pair domain.Pair, ex exchange.Exchange, store Store, logger *zap.Logger) *Collector {
	return &Collector{pair: pair, exchange: ex, store: store, logger: logger, now: time.Now}
}

// Run fetches the balance and last price and appends one point per asset
// with its raw amount and its valuation in base currency.
func (c *Collector) Run(ctx context.Context) error {
	bal, err := c.exchange.Balance(ctx)
	if err != nil {
		return errors.Wrap(err, "get balance")
	}
	price, err := c.exchange.LastPrice(ctx)
	if err != nil {
		return errors.Wrap(err, "get last price")
	}

	now := c.now().UTC()
	var points []pointstore.Point
	if bal.Coin.IsPositive() {
		points = append(points, point(now, c.pair.Coin, bal.Coin, bal.Coin.Mul(price)))
	}
	if bal.Base.IsPositive() {
		points = append(points, point(now, c.pair.Base, bal.Base, bal.Base))
	}
	if err := c.store.Write(points); err != nil {
		return err
	}

	c.logger.Info("balance snapshot written",
		zap.Int("points", len(points)),
		zap.String("coin", bal.Coin.String()),
		zap.String("base", bal.Base.String()))
	return nil
}

func point(now time.Time, currency string, amount, valueInBase decimal.Decimal) pointstore.Point {
	return pointstore.Point{
		Measurement: Measurement,
		Time:        now,
		Tags:        map[string]string{"currency": currency},
		Fields: map[string]decimal.Decimal{
			"amount":     amount,
			"amount_jpy": valueInBase,
		},
	}
}
