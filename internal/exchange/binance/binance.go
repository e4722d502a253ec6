// Package binance adapts the Binance spot API through the adshao SDK.
package binance

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/exchange"
)

// Exchange is the Binance adapter for one trading pair.
type Exchange struct {
	client *binance.Client
	pair   domain.Pair

	// constraints are fetched once from exchangeInfo and reused.
	constraints *domain.Constraints
}

// New constructs the adapter.
func New(pair domain.Pair, creds exchange.Credentials) (*Exchange, error) {
	if creds.Key == "" || creds.Secret == "" {
		return nil, errors.New("binance api key and secret are required")
	}
	return &Exchange{
		client: binance.NewClient(creds.Key, creds.Secret),
		pair:   pair,
	}, nil
}

func (e *Exchange) Name() string { return "binance" }

func (e *Exchange) Balance(ctx context.Context) (domain.Balance, error) {
	account, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return domain.Balance{}, e.apiError(err)
	}

	var bal domain.Balance
	for _, b := range account.Balances {
		if b.Asset != e.pair.Coin && b.Asset != e.pair.Base {
			continue
		}
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return domain.Balance{}, errors.Wrapf(err, "parse %s free balance", b.Asset)
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			return domain.Balance{}, errors.Wrapf(err, "parse %s locked balance", b.Asset)
		}
		if b.Asset == e.pair.Coin {
			bal.Coin = free.Add(locked)
		} else {
			bal.Base = free.Add(locked)
		}
	}
	if bal.IsEmpty() {
		return domain.Balance{}, errors.Wrapf(domain.ErrNoBalance, "%s", e.pair.String())
	}
	return bal, nil
}

func (e *Exchange) LastPrice(ctx context.Context) (decimal.Decimal, error) {
	prices, err := e.client.NewListPricesService().Symbol(e.pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Zero, e.apiError(err)
	}
	if len(prices) == 0 {
		return decimal.Zero, &domain.APIError{Exchange: e.Name(), Message: "empty price response for " + e.pair.Symbol()}
	}
	return decimal.NewFromString(prices[0].Price)
}

func (e *Exchange) BookTop(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	books, err := e.client.NewListBookTickersService().Symbol(e.pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, e.apiError(err)
	}
	if len(books) == 0 {
		return decimal.Zero, decimal.Zero, &domain.APIError{Exchange: e.Name(), Message: "empty book ticker response for " + e.pair.Symbol()}
	}
	bid, err := decimal.NewFromString(books[0].BidPrice)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "parse best bid")
	}
	ask, err := decimal.NewFromString(books[0].AskPrice)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "parse best ask")
	}
	return bid, ask, nil
}

// Constraints derives the order rules from the symbol's exchangeInfo
// filters. Fetched lazily once per adapter instance.
func (e *Exchange) Constraints() (domain.Constraints, error) {
	if e.constraints != nil {
		return *e.constraints, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := e.client.NewExchangeInfoService().Symbols(e.pair.Symbol()).Do(ctx)
	if err != nil {
		return domain.Constraints{}, e.apiError(err)
	}
	if len(info.Symbols) == 0 {
		return domain.Constraints{}, errors.Wrapf(domain.ErrUnsupportedSymbol, "binance does not list %s", e.pair.Symbol())
	}

	s := info.Symbols[0]
	lot := s.LotSizeFilter()
	price := s.PriceFilter()
	if lot == nil || price == nil {
		return domain.Constraints{}, errors.Wrapf(domain.ErrUnsupportedSymbol, "binance filters missing for %s", e.pair.Symbol())
	}

	minQty, err := decimal.NewFromString(lot.MinQuantity)
	if err != nil {
		return domain.Constraints{}, errors.Wrap(err, "parse min quantity")
	}
	step, err := decimal.NewFromString(lot.StepSize)
	if err != nil {
		return domain.Constraints{}, errors.Wrap(err, "parse lot step size")
	}
	tick, err := decimal.NewFromString(price.TickSize)
	if err != nil {
		return domain.Constraints{}, errors.Wrap(err, "parse price tick size")
	}

	c := domain.Constraints{
		MinOrderSize:   minQty,
		MinOrderUnit:   step,
		PricePrecision: -tick.Exponent(),
	}
	e.constraints = &c
	return c, nil
}

func (e *Exchange) CancelAllOrders(ctx context.Context) error {
	_, err := e.client.NewCancelOpenOrdersService().Symbol(e.pair.Symbol()).Do(ctx)
	if err != nil {
		// the endpoint rejects the call when there is nothing to cancel
		if apiErr, ok := err.(*common.APIError); ok && apiErr.Code == -2011 {
			return nil
		}
		return e.apiError(err)
	}
	return nil
}

func (e *Exchange) CreateOrder(ctx context.Context, intent domain.OrderIntent) (string, error) {
	side := binance.SideTypeBuy
	if intent.Side == domain.SideSell {
		side = binance.SideTypeSell
	}
	res, err := e.client.NewCreateOrderService().
		Symbol(e.pair.Symbol()).
		Side(side).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(intent.Quantity.String()).
		Price(intent.Price.String()).
		NewClientOrderID(uuid.NewString()).
		Do(ctx)
	if err != nil {
		return "", e.apiError(err)
	}
	return res.ClientOrderID, nil
}

func (e *Exchange) Fills(ctx context.Context, since time.Time) ([]domain.Fill, error) {
	trades, err := e.client.NewListTradesService().
		Symbol(e.pair.Symbol()).
		StartTime(since.UnixMilli()).
		Do(ctx)
	if err != nil {
		return nil, e.apiError(err)
	}

	fills := make([]domain.Fill, 0, len(trades))
	for _, t := range trades {
		qty, err := decimal.NewFromString(t.Quantity)
		if err != nil {
			return nil, errors.Wrap(err, "parse trade quantity")
		}
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			return nil, errors.Wrap(err, "parse trade price")
		}
		side := domain.SideSell
		if t.IsBuyer {
			side = domain.SideBuy
		}
		fills = append(fills, domain.Fill{Time: time.UnixMilli(t.Time).UTC(), Side: side, Quantity: qty, Price: price})
	}

	sort.Slice(fills, func(i, j int) bool { return fills[i].Time.Before(fills[j].Time) })
	return fills, nil
}

// Deposits is not served by this adapter; fiat funding is out of scope for
// the SDK venues.
func (e *Exchange) Deposits(ctx context.Context) ([]domain.Deposit, error) {
	return nil, errors.Wrap(domain.ErrUnsupportedOperation, "binance fiat deposit history")
}

func (e *Exchange) apiError(err error) error {
	if apiErr, ok := err.(*common.APIError); ok {
		return &domain.APIError{
			Exchange: e.Name(),
			Code:     strconv.FormatInt(apiErr.Code, 10),
			Message:  apiErr.Message,
		}
	}
	return &domain.APIError{Exchange: e.Name(), Message: err.Error()}
}
