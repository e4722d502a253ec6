// Package exchange defines the uniform capability set the bot needs from a
// venue. Concrete adapters live in the subpackages and are selected by the
// composition root.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mitsutoshi/yajirobe/internal/domain"
)

// Exchange is the per-venue adapter contract. Adapters are constructed by
// the caller and passed in explicitly, never held as globals.
type Exchange interface {
	// Name returns the venue identifier, e.g. "bitbank".
	Name() string

	// Balance returns the holdings of the configured pair. Returns
	// domain.ErrNoBalance when both sides are zero or absent.
	Balance(ctx context.Context) (domain.Balance, error)

	// LastPrice returns the last traded price. Always supported.
	LastPrice(ctx context.Context) (decimal.Decimal, error)

	// BookTop returns the best bid and ask. Venues without a usable book
	// endpoint return domain.ErrUnsupportedOperation; callers fall back to
	// the last traded price for both sides.
	BookTop(ctx context.Context) (bid, ask decimal.Decimal, err error)

	// Constraints returns the static order rules for the configured coin.
	// Returns domain.ErrUnsupportedSymbol for unconfigured coins.
	Constraints() (domain.Constraints, error)

	// CancelAllOrders cancels every open order of the pair. Best effort;
	// a failure here aborts the run before any new order is placed.
	CancelAllOrders(ctx context.Context) error

	// CreateOrder submits a limit order and returns the venue's order id.
	// Never retried: a blind retry risks duplicate fills.
	CreateOrder(ctx context.Context, intent domain.OrderIntent) (string, error)

	// Fills returns the account's own executions with timestamp >= since,
	// fully materialized and sorted ascending by timestamp. Paging is
	// hidden from the caller.
	Fills(ctx context.Context, since time.Time) ([]domain.Fill, error)

	// Deposits returns the fiat deposit history of the base currency.
	// Optional capability: domain.ErrUnsupportedOperation where absent.
	Deposits(ctx context.Context) ([]domain.Deposit, error)
}

// Credentials are the API key pair of a venue, loaded from the environment
// by the caller.
type Credentials struct {
	Key    string
	Secret string
}
