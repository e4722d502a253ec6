package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/notify"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var btcjpy = domain.Pair{Coin: "BTC", Base: "JPY"}

// fakeExchange scripts one run of the executor.
type fakeExchange struct {
	balance     domain.Balance
	balanceErr  error
	last        decimal.Decimal
	bid, ask    decimal.Decimal
	bookErr     error
	cancelErr   error
	createErr   error
	constraints domain.Constraints

	cancelled    bool
	created      *domain.OrderIntent
	createdAfter bool // order was created after cancel-all
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) Balance(ctx context.Context) (domain.Balance, error) {
	return f.balance, f.balanceErr
}

func (f *fakeExchange) LastPrice(ctx context.Context) (decimal.Decimal, error) {
	return f.last, nil
}

func (f *fakeExchange) BookTop(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	if f.bookErr != nil {
		return decimal.Zero, decimal.Zero, f.bookErr
	}
	return f.bid, f.ask, nil
}

func (f *fakeExchange) Constraints() (domain.Constraints, error) {
	return f.constraints, nil
}

func (f *fakeExchange) CancelAllOrders(ctx context.Context) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = true
	return nil
}

func (f *fakeExchange) CreateOrder(ctx context.Context, intent domain.OrderIntent) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = &intent
	f.createdAfter = f.cancelled
	return "order-1", nil
}

func (f *fakeExchange) Fills(ctx context.Context, since time.Time) ([]domain.Fill, error) {
	return nil, nil
}

func (f *fakeExchange) Deposits(ctx context.Context) ([]domain.Deposit, error) {
	return nil, errors.Wrap(domain.ErrUnsupportedOperation, "fake deposit history")
}

type recordingNotifier struct {
	severities []notify.Severity
	texts      []string
}

func (r *recordingNotifier) Notify(ctx context.Context, severity notify.Severity, text string) error {
	r.severities = append(r.severities, severity)
	r.texts = append(r.texts, text)
	return nil
}

func btcConstraints() domain.Constraints {
	return domain.Constraints{
		MinOrderSize:   d("0.0001"),
		MinOrderUnit:   d("0.0001"),
		PricePrecision: 0,
	}
}

func newTestExecutor(ex *fakeExchange, n notify.Notifier) *Executor {
	return New(btcjpy, ex, n, zap.NewNop(), decimal.Zero, decimal.Zero)
}

func TestRunSubmitsSellToRestoreBalance(t *testing.T) {
	ex := &fakeExchange{
		balance:     domain.Balance{Coin: d("0.6"), Base: d("1000000")},
		last:        d("2000000"),
		bid:         d("1999000"),
		ask:         d("2001000"),
		constraints: btcConstraints(),
	}
	n := &recordingNotifier{}

	res, err := newTestExecutor(ex, n).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateSubmitted, res.State)
	require.Equal(t, "order-1", res.OrderID)

	require.NotNil(t, ex.created)
	require.True(t, ex.createdAfter, "order must be created after cancel-all")
	require.Equal(t, domain.SideSell, ex.created.Side)
	require.True(t, d("0.05").Equal(ex.created.Quantity), "qty = %s", ex.created.Quantity)
	// last price 2000000 is below the ask, so the sell is clamped to ask-tick
	require.True(t, d("2000999").Equal(ex.created.Price), "price = %s", ex.created.Price)

	require.Equal(t, []notify.Severity{notify.SeverityGood}, n.severities)
	require.Contains(t, n.texts[0], "Order has been created.")
	require.Contains(t, n.texts[0], "BTC/JPY")
}

func TestRunNoOpInsideDeadband(t *testing.T) {
	ex := &fakeExchange{
		balance:     domain.Balance{Coin: d("0.5"), Base: d("1000000")},
		last:        d("2000000"),
		bid:         d("1999000"),
		ask:         d("2001000"),
		constraints: btcConstraints(),
	}
	n := &recordingNotifier{}

	res, err := newTestExecutor(ex, n).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateNoOpReported, res.State)
	require.Nil(t, ex.created)

	require.Equal(t, []notify.Severity{notify.SeverityGood}, n.severities)
	require.Contains(t, n.texts[0], "No need to change balance.")
}

func TestRunBelowMinSizeDowngradesToNoOp(t *testing.T) {
	// drift is above the deadband but the order would be 0.000075 BTC,
	// which truncates below the venue minimum
	ex := &fakeExchange{
		balance:     domain.Balance{Coin: d("0.002425"), Base: d("5150")},
		last:        d("2000000"),
		bid:         d("1999000"),
		ask:         d("2001000"),
		constraints: btcConstraints(),
	}
	n := &recordingNotifier{}

	res, err := newTestExecutor(ex, n).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateNoOpReported, res.State)
	require.Nil(t, ex.created)
}

func TestRunAbortsWhenCancelFails(t *testing.T) {
	ex := &fakeExchange{
		balance:     domain.Balance{Coin: d("0.6"), Base: d("1000000")},
		last:        d("2000000"),
		bid:         d("1999000"),
		ask:         d("2001000"),
		constraints: btcConstraints(),
		cancelErr:   &domain.APIError{Exchange: "fake", Message: "auth failed"},
	}
	n := &recordingNotifier{}

	res, err := newTestExecutor(ex, n).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, StateFailed, res.State)
	// no new order may be placed after a failed cancellation
	require.Nil(t, ex.created)
	require.Equal(t, []notify.Severity{notify.SeverityDanger}, n.severities)
}

func TestRunReportsCreateOrderFailure(t *testing.T) {
	ex := &fakeExchange{
		balance:     domain.Balance{Coin: d("0.6"), Base: d("1000000")},
		last:        d("2000000"),
		bid:         d("1999000"),
		ask:         d("2001000"),
		constraints: btcConstraints(),
		createErr:   &domain.APIError{Exchange: "fake", Code: "ERR-201", Message: "insufficient funds"},
	}
	n := &recordingNotifier{}

	res, err := newTestExecutor(ex, n).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, StateFailed, res.State)
	require.Equal(t, []notify.Severity{notify.SeverityDanger}, n.severities)
	require.True(t, strings.Contains(n.texts[0], "ERR-201"), "notification should carry the exchange error: %s", n.texts[0])
}

// Venues without a book endpoint fall back to the last traded price for
// both sides, so the order goes out at the decision price.
func TestRunFallsBackToLastPriceWithoutBook(t *testing.T) {
	ex := &fakeExchange{
		balance:     domain.Balance{Coin: d("0.6"), Base: d("1000000")},
		last:        d("2000000"),
		bookErr:     errors.Wrap(domain.ErrUnsupportedOperation, "no book"),
		constraints: btcConstraints(),
	}
	n := &recordingNotifier{}

	res, err := newTestExecutor(ex, n).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateSubmitted, res.State)
	require.NotNil(t, ex.created)
	require.True(t, d("2000000").Equal(ex.created.Price), "price = %s", ex.created.Price)
}

func TestRunFailsOnInvalidBalance(t *testing.T) {
	ex := &fakeExchange{
		balance:     domain.Balance{},
		last:        d("2000000"),
		bid:         d("1999000"),
		ask:         d("2001000"),
		constraints: btcConstraints(),
	}
	n := &recordingNotifier{}

	res, err := newTestExecutor(ex, n).Run(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.Equal(t, StateFailed, res.State)
}
