// Package ledger ingests the account's own fills incrementally and
// maintains a running position and cost-basis ledger persisted to the
// point store. Each run resumes from the last persisted record.
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/storage/pointstore"
)

// Measurement is the point-store measurement name for ledger rows.
const Measurement = "executions"

// firstRecordTime is the account's first recorded fill; ingestion without a
// checkpoint starts here.
var firstRecordTime = time.Unix(1604411435, 0).UTC()

// CostMethod selects how the cost basis reacts to sells.
type CostMethod int

const (
	// CostAverageOnBuy is the weighted-average-cost default: the average
	// buy price changes on purchases only, sells consume units at the
	// standing average.
	CostAverageOnBuy CostMethod = iota
	// CostRecomputeOnSell subtracts the full sale proceeds from the cost
	// basis and recomputes the average afterwards. Only needed for
	// round-trip parity with ledgers written by the historical variant.
	CostRecomputeOnSell
)

// FillSource produces the account's executions since a timestamp, sorted
// ascending. The exchange adapters implement it.
type FillSource interface {
	Fills(ctx context.Context, since time.Time) ([]domain.Fill, error)
}

// Store is the slice of the point store the ledger needs.
type Store interface {
	Last(measurement string) (*pointstore.Point, error)
	Write(points []pointstore.Point) error
}

// Position is the running state carried across fills.
type Position struct {
	Size        decimal.Decimal
	Cost        decimal.Decimal
	AvgBuyPrice decimal.Decimal
}

// Ledger folds new fills into ledger entries and persists them.
type Ledger struct {
	fills  FillSource
	store  Store
	logger *zap.Logger
	method CostMethod
}

// New builds a ledger over the given fill source and store.
func New(fills FillSource, store Store, logger *zap.Logger, method CostMethod) *Ledger {
	return &Ledger{fills: fills, store: store, logger: logger, method: method}
}

// Ingest fetches fills newer than the persisted checkpoint, folds them into
// ledger entries and appends them to the store in one batch. Returns the new
// entries; an empty result means the ledger was already up to date.
func (l *Ledger) Ingest(ctx context.Context) ([]domain.LedgerEntry, error) {
	checkpoint, pos, err := l.checkpoint()
	if err != nil {
		return nil, err
	}

	since := firstRecordTime
	if checkpoint != nil {
		since = checkpoint.Time
	}

	fills, err := l.fills.Fills(ctx, since)
	if err != nil {
		return nil, errors.Wrap(err, "fetch fills")
	}

	// the filter, not the query bound, is authoritative: some venues
	// return the pivot fill itself
	if checkpoint != nil {
		kept := fills[:0]
		for _, f := range fills {
			if f.Time.After(checkpoint.Time) {
				kept = append(kept, f)
			}
		}
		fills = kept
	}
	if len(fills) == 0 {
		l.logger.Info("ledger is up to date", zap.Time("since", since))
		return nil, nil
	}

	entries := Fold(pos, fills, l.method)

	points := make([]pointstore.Point, 0, len(entries))
	for _, entry := range entries {
		points = append(points, toPoint(entry))
	}
	if err := l.store.Write(points); err != nil {
		return nil, err
	}

	l.logger.Info("ledger entries appended",
		zap.Int("count", len(entries)),
		zap.Time("first", entries[0].Time),
		zap.Time("last", entries[len(entries)-1].Time))
	return entries, nil
}

// checkpoint loads the latest persisted entry and the position it carries.
// A reachable-but-empty store yields (nil, zero position, nil); store
// failures never degrade silently to "no checkpoint found".
func (l *Ledger) checkpoint() (*pointstore.Point, Position, error) {
	point, err := l.store.Last(Measurement)
	if err != nil {
		return nil, Position{}, err
	}
	if point == nil {
		return nil, Position{}, nil
	}
	return point, Position{
		Size:        point.Field("pos_size"),
		Cost:        point.Field("pos_price"),
		AvgBuyPrice: point.Field("avg_buy_price"),
	}, nil
}

// Fold applies fills in ascending timestamp order to the starting position
// and emits one ledger entry per fill. Input order is not trusted: fills are
// re-sorted before folding because out-of-order folding corrupts the cost
// basis. Sells driving the position negative are not rejected; average-cost
// semantics are undefined in that regime.
func Fold(pos Position, fills []domain.Fill, method CostMethod) []domain.LedgerEntry {
	sorted := make([]domain.Fill, len(fills))
	copy(sorted, fills)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	entries := make([]domain.LedgerEntry, 0, len(sorted))
	for _, f := range sorted {
		var profit decimal.Decimal
		switch f.Side {
		case domain.SideBuy:
			pos.Size = pos.Size.Add(f.Quantity)
			pos.Cost = pos.Cost.Add(f.Quantity.Mul(f.Price))
			if pos.Size.IsPositive() {
				pos.AvgBuyPrice = pos.Cost.Div(pos.Size)
			}
		case domain.SideSell:
			// realized profit always uses the average as of immediately
			// before this sell
			profit = f.Price.Sub(pos.AvgBuyPrice).Mul(f.Quantity)
			pos.Size = pos.Size.Sub(f.Quantity)
			switch method {
			case CostRecomputeOnSell:
				pos.Cost = pos.Cost.Sub(f.Quantity.Mul(f.Price))
				if pos.Size.IsPositive() {
					pos.AvgBuyPrice = pos.Cost.Div(pos.Size)
				}
			default:
				pos.Cost = pos.Cost.Sub(pos.AvgBuyPrice.Mul(f.Quantity))
			}
		}

		entries = append(entries, domain.LedgerEntry{
			Time:           f.Time,
			Side:           f.Side,
			Quantity:       f.Quantity,
			Price:          f.Price,
			PositionSize:   pos.Size,
			PositionCost:   pos.Cost,
			AvgBuyPrice:    pos.AvgBuyPrice,
			RealizedProfit: profit,
		})
	}
	return entries
}

func toPoint(entry domain.LedgerEntry) pointstore.Point {
	return pointstore.Point{
		Measurement: Measurement,
		Time:        entry.Time,
		Tags:        map[string]string{"side": entry.Side.String()},
		Fields: map[string]decimal.Decimal{
			"quantity":      entry.Quantity,
			"price":         entry.Price,
			"pos_size":      entry.PositionSize,
			"pos_price":     entry.PositionCost,
			"avg_buy_price": entry.AvgBuyPrice,
			"profit":        entry.RealizedProfit,
		},
	}
}
