// Package deposits syncs the account's fiat deposit history into the point
// store. History rows are deduplicated against already persisted points, so
// re-running the sync appends nothing.
package deposits

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/storage/pointstore"
)

// Measurement is the point-store measurement name for deposit rows.
const Measurement = "deposits_history"

// Source produces the fiat deposit history. Venues without such an API
// return domain.ErrUnsupportedOperation.
type Source interface {
	Deposits(ctx context.Context) ([]domain.Deposit, error)
}

// Store is the slice of the point store the syncer needs.
type Store interface {
	Points(measurement string) ([]pointstore.Point, error)
	Write(points []pointstore.Point) error
	SumField(measurement, field string, since time.Time) (decimal.Decimal, error)
}

// Syncer appends new deposit history rows.
type Syncer struct {
	source Source
	store  Store
	logger *zap.Logger
}

// New builds a syncer.
func New(source Source, store Store, logger *zap.Logger) *Syncer {
	return &Syncer{source: source, store: store, logger: logger}
}

// Run fetches the deposit history and appends the rows not yet persisted.
// A deposit is considered persisted when a point with the same timestamp
// and amount exists.
func (s *Syncer) Run(ctx context.Context) error {
	history, err := s.source.Deposits(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch deposit history")
	}

	existing, err := s.store.Points(Measurement)
	if err != nil {
		return err
	}

	var points []pointstore.Point
	for _, d := range history {
		if exists(existing, d) {
			s.logger.Info("deposit already recorded",
				zap.Time("time", d.Time),
				zap.String("amount", d.Amount.String()))
			continue
		}
		points = append(points, pointstore.Point{
			Measurement: Measurement,
			Time:        d.Time,
			Tags:        map[string]string{"currency": d.Currency},
			Fields:      map[string]decimal.Decimal{"amount": d.Amount},
		})
	}
	if len(points) > 0 {
		if err := s.store.Write(points); err != nil {
			return err
		}
	}

	total, err := s.store.SumField(Measurement, "amount", time.Time{})
	if err != nil {
		return err
	}
	s.logger.Info("deposit history synced",
		zap.Int("fetched", len(history)),
		zap.Int("appended", len(points)),
		zap.String("total_deposited", total.String()))
	return nil
}

func exists(points []pointstore.Point, d domain.Deposit) bool {
	for _, p := range points {
		if p.Time.Equal(d.Time) && p.Field("amount").Equal(d.Amount) {
			return true
		}
	}
	return false
}
