package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/storage/pointstore"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeExchange struct {
	balance domain.Balance
	last    decimal.Decimal
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) Balance(ctx context.Context) (domain.Balance, error) {
	return f.balance, nil
}

func (f *fakeExchange) LastPrice(ctx context.Context) (decimal.Decimal, error) {
	return f.last, nil
}

func (f *fakeExchange) BookTop(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	return f.last, f.last, nil
}

func (f *fakeExchange) Constraints() (domain.Constraints, error) {
	return domain.Constraints{}, nil
}

func (f *fakeExchange) CancelAllOrders(ctx context.Context) error { return nil }

func (f *fakeExchange) CreateOrder(ctx context.Context, intent domain.OrderIntent) (string, error) {
	return "", nil
}

func (f *fakeExchange) Fills(ctx context.Context, since time.Time) ([]domain.Fill, error) {
	return nil, nil
}

func (f *fakeExchange) Deposits(ctx context.Context) ([]domain.Deposit, error) {
	return nil, domain.ErrUnsupportedOperation
}

func TestRunWritesOnePointPerHeldAsset(t *testing.T) {
	store, err := pointstore.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ex := &fakeExchange{
		balance: domain.Balance{Coin: d("0.5"), Base: d("1000000")},
		last:    d("2000000"),
	}
	pair := domain.Pair{Coin: "BTC", Base: "JPY"}
	c := New(pair, ex, store, zap.NewNop())
	c.now = func() time.Time { return time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, c.Run(context.Background()))

	points, err := store.Points(Measurement)
	require.NoError(t, err)
	require.Len(t, points, 2)

	require.Equal(t, "BTC", points[0].Tags["currency"])
	require.True(t, d("0.5").Equal(points[0].Field("amount")))
	require.True(t, d("1000000").Equal(points[0].Field("amount_jpy")), "coin valued at last price")

	require.Equal(t, "JPY", points[1].Tags["currency"])
	require.True(t, d("1000000").Equal(points[1].Field("amount")))
	require.True(t, d("1000000").Equal(points[1].Field("amount_jpy")))
}

func TestRunSkipsEmptySides(t *testing.T) {
	store, err := pointstore.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ex := &fakeExchange{
		balance: domain.Balance{Coin: decimal.Zero, Base: d("500000")},
		last:    d("2000000"),
	}
	c := New(domain.Pair{Coin: "BTC", Base: "JPY"}, ex, store, zap.NewNop())

	require.NoError(t, c.Run(context.Background()))

	points, err := store.Points(Measurement)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "JPY", points[0].Tags["currency"])
}
