// Package bybit adapts the Bybit v5 spot API through the hirokisan SDK.
package bybit

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/exchange"
)

// Exchange is the Bybit adapter for one trading pair.
type Exchange struct {
	client *bybit.Client
	pair   domain.Pair

	constraints *domain.Constraints
}

// New constructs the adapter.
func New(pair domain.Pair, creds exchange.Credentials) (*Exchange, error) {
	if creds.Key == "" || creds.Secret == "" {
		return nil, errors.New("bybit api key and secret are required")
	}
	return &Exchange{
		client: bybit.NewClient().WithAuth(creds.Key, creds.Secret),
		pair:   pair,
	}, nil
}

func (e *Exchange) Name() string { return "bybit" }

func (e *Exchange) Balance(ctx context.Context) (domain.Balance, error) {
	res, err := e.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return domain.Balance{}, &domain.APIError{Exchange: e.Name(), Message: err.Error()}
	}
	if len(res.Result.List) == 0 {
		return domain.Balance{}, &domain.APIError{Exchange: e.Name(), Message: "empty wallet balance response"}
	}

	var bal domain.Balance
	for _, coin := range res.Result.List[0].Coin {
		switch string(coin.Coin) {
		case e.pair.Coin:
			bal.Coin, _ = decimal.NewFromString(coin.WalletBalance)
		case e.pair.Base:
			bal.Base, _ = decimal.NewFromString(coin.WalletBalance)
		}
	}
	if bal.IsEmpty() {
		return domain.Balance{}, errors.Wrapf(domain.ErrNoBalance, "%s", e.pair.String())
	}
	return bal, nil
}

func (e *Exchange) LastPrice(ctx context.Context) (decimal.Decimal, error) {
	item, err := e.ticker()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(item.LastPrice)
}

func (e *Exchange) BookTop(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	item, err := e.ticker()
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	bid, err := decimal.NewFromString(item.Bid1Price)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "parse best bid")
	}
	ask, err := decimal.NewFromString(item.Ask1Price)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "parse best ask")
	}
	return bid, ask, nil
}

func (e *Exchange) ticker() (*bybit.V5GetTickersSpotItem, error) {
	symbol := bybit.SymbolV5(e.pair.Symbol())
	res, err := e.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
	})
	if err != nil {
		return nil, &domain.APIError{Exchange: e.Name(), Message: err.Error()}
	}
	if len(res.Result.Spot.List) == 0 {
		return nil, &domain.APIError{Exchange: e.Name(), Message: "empty ticker response for " + e.pair.String()}
	}
	return &res.Result.Spot.List[0], nil
}

// Constraints derives the order rules from the instruments-info endpoint.
// Fetched lazily once per adapter instance.
func (e *Exchange) Constraints() (domain.Constraints, error) {
	if e.constraints != nil {
		return *e.constraints, nil
	}

	symbol := bybit.SymbolV5(e.pair.Symbol())
	res, err := e.client.V5().Market().GetInstrumentsInfo(bybit.V5GetInstrumentsInfoParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
	})
	if err != nil {
		return domain.Constraints{}, &domain.APIError{Exchange: e.Name(), Message: err.Error()}
	}
	if len(res.Result.Spot.List) == 0 {
		return domain.Constraints{}, errors.Wrapf(domain.ErrUnsupportedSymbol, "bybit does not list %s", e.pair.Symbol())
	}

	item := res.Result.Spot.List[0]
	minQty, err := decimal.NewFromString(item.LotSizeFilter.MinOrderQty)
	if err != nil {
		return domain.Constraints{}, errors.Wrap(err, "parse min order qty")
	}
	basePrec, err := decimal.NewFromString(item.LotSizeFilter.BasePrecision)
	if err != nil {
		return domain.Constraints{}, errors.Wrap(err, "parse base precision")
	}
	tick, err := decimal.NewFromString(item.PriceFilter.TickSize)
	if err != nil {
		return domain.Constraints{}, errors.Wrap(err, "parse price tick size")
	}

	c := domain.Constraints{
		MinOrderSize:   minQty,
		MinOrderUnit:   basePrec,
		PricePrecision: -tick.Exponent(),
	}
	e.constraints = &c
	return c, nil
}

func (e *Exchange) CancelAllOrders(ctx context.Context) error {
	symbol := bybit.SymbolV5(e.pair.Symbol())
	_, err := e.client.V5().Order().CancelAllOrders(bybit.V5CancelAllOrdersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
	})
	if err != nil {
		return &domain.APIError{Exchange: e.Name(), Message: err.Error()}
	}
	return nil
}

func (e *Exchange) CreateOrder(ctx context.Context, intent domain.OrderIntent) (string, error) {
	side := bybit.SideBuy
	if intent.Side == domain.SideSell {
		side = bybit.SideSell
	}
	price := intent.Price.String()
	res, err := e.client.V5().Order().CreateOrder(bybit.V5CreateOrderParam{
		Category:  bybit.CategoryV5Spot,
		Symbol:    bybit.SymbolV5(e.pair.Symbol()),
		Side:      side,
		OrderType: bybit.OrderTypeLimit,
		Qty:       intent.Quantity.String(),
		Price:     &price,
	})
	if err != nil {
		return "", &domain.APIError{Exchange: e.Name(), Message: err.Error()}
	}
	return res.Result.OrderID, nil
}

func (e *Exchange) Fills(ctx context.Context, since time.Time) ([]domain.Fill, error) {
	symbol := bybit.SymbolV5(e.pair.Symbol())
	startTime := int(since.UnixMilli())
	res, err := e.client.V5().Execution().GetExecutionList(bybit.V5GetExecutionParam{
		Category:  bybit.CategoryV5Spot,
		Symbol:    &symbol,
		StartTime: &startTime,
	})
	if err != nil {
		return nil, &domain.APIError{Exchange: e.Name(), Message: err.Error()}
	}

	fills := make([]domain.Fill, 0, len(res.Result.List))
	for _, ex := range res.Result.List {
		ms, err := strconv.ParseInt(ex.ExecTime, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "parse execution time")
		}
		side, err := domain.ParseSide(string(ex.Side))
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(ex.ExecQty)
		if err != nil {
			return nil, errors.Wrap(err, "parse execution qty")
		}
		price, err := decimal.NewFromString(ex.ExecPrice)
		if err != nil {
			return nil, errors.Wrap(err, "parse execution price")
		}
		fills = append(fills, domain.Fill{Time: time.UnixMilli(ms).UTC(), Side: side, Quantity: qty, Price: price})
	}

	sort.Slice(fills, func(i, j int) bool { return fills[i].Time.Before(fills[j].Time) })
	return fills, nil
}

// Deposits is not served by this adapter.
func (e *Exchange) Deposits(ctx context.Context) ([]domain.Deposit, error) {
	return nil, errors.Wrap(domain.ErrUnsupportedOperation, "bybit fiat deposit history")
}
