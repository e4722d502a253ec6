package rebalance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mitsutoshi/yajirobe/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		balance  domain.Balance
		price    decimal.Decimal
		wantSide domain.Side
		wantQty  decimal.Decimal
		wantNoOp bool
	}{
		{
			name:     "too much coin, sell",
			balance:  domain.Balance{Coin: d("0.6"), Base: d("1000000")},
			price:    d("2000000"),
			wantSide: domain.SideSell,
			wantQty:  d("0.05"),
		},
		{
			name:     "too much base, buy",
			balance:  domain.Balance{Coin: d("0.4"), Base: d("1000000")},
			price:    d("2000000"),
			wantSide: domain.SideBuy,
			wantQty:  d("0.05"),
		},
		{
			name:     "exactly balanced",
			balance:  domain.Balance{Coin: d("0.5"), Base: d("1000000")},
			price:    d("2000000"),
			wantNoOp: true,
		},
		{
			name: "inside deadband",
			// base rate 0.495, drift 0.005 < 0.01
			balance:  domain.Balance{Coin: d("0.505"), Base: d("990000")},
			price:    d("2000000"),
			wantNoOp: true,
		},
		{
			name: "drift equal to deadband trades",
			// base rate 0.49, drift exactly 0.01
			balance:  domain.Balance{Coin: d("0.51"), Base: d("980000")},
			price:    d("2000000"),
			wantSide: domain.SideSell,
			wantQty:  d("0.01"),
		},
		{
			name:     "all coin, buy base by selling coin",
			balance:  domain.Balance{Coin: d("1"), Base: decimal.Zero},
			price:    d("2000000"),
			wantSide: domain.SideSell,
			wantQty:  d("0.5"),
		},
		{
			name:     "all base, buy coin",
			balance:  domain.Balance{Coin: decimal.Zero, Base: d("1000000")},
			price:    d("2000000"),
			wantSide: domain.SideBuy,
			wantQty:  d("0.25"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := Decide(tt.balance, tt.price, DefaultTargetBaseRate, DefaultDeadband)
			require.NoError(t, err)
			if tt.wantNoOp {
				require.Nil(t, intent)
				return
			}
			require.NotNil(t, intent)
			require.Equal(t, tt.wantSide, intent.Side)
			require.True(t, tt.wantQty.Equal(intent.Quantity), "qty = %s, want %s", intent.Quantity, tt.wantQty)
			require.True(t, tt.price.Equal(intent.Price))
		})
	}
}

func TestDecideInvalidState(t *testing.T) {
	_, err := Decide(domain.Balance{}, d("2000000"), DefaultTargetBaseRate, DefaultDeadband)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

// Whatever the holdings, a produced intent must move the base rate toward
// the target.
func TestDecideMovesTowardTarget(t *testing.T) {
	price := d("3000000")
	cases := []domain.Balance{
		{Coin: d("0.9"), Base: d("100000")},
		{Coin: d("0.1"), Base: d("2500000")},
		{Coin: d("2"), Base: d("1")},
		{Coin: d("0.0001"), Base: d("9000000")},
	}
	for _, bal := range cases {
		rate, err := BaseRate(bal, price)
		require.NoError(t, err)

		intent, err := Decide(bal, price, DefaultTargetBaseRate, DefaultDeadband)
		require.NoError(t, err)
		require.NotNil(t, intent)

		if rate.LessThan(DefaultTargetBaseRate) {
			require.Equal(t, domain.SideSell, intent.Side, "base rate %s below target should sell coin", rate)
		} else {
			require.Equal(t, domain.SideBuy, intent.Side, "base rate %s above target should buy coin", rate)
		}

		// applying the order at the decision price lands exactly on target
		after := bal
		if intent.Side == domain.SideSell {
			after.Coin = after.Coin.Sub(intent.Quantity)
			after.Base = after.Base.Add(intent.Notional())
		} else {
			after.Coin = after.Coin.Add(intent.Quantity)
			after.Base = after.Base.Sub(intent.Notional())
		}
		afterRate, err := BaseRate(after, price)
		require.NoError(t, err)
		require.True(t, afterRate.Sub(DefaultTargetBaseRate).Abs().LessThan(d("0.000001")),
			"rate after order = %s", afterRate)
	}
}
