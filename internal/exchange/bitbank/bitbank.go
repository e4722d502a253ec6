// Package bitbank implements the bitbank.cc REST adapter. Private calls are
// signed with HMAC-SHA256 over nonce+path (GET) or nonce+body (POST).
package bitbank

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/exchange"
)

const (
	publicURL    = "https://public.bitbank.cc"
	privateURL   = "https://api.bitbank.cc"
	privatePath  = "/v1"
	fillPageSize = 1000
)

var constraints = map[string]domain.Constraints{
	"BTC": {MinOrderSize: decimal.RequireFromString("0.0001"), MinOrderUnit: decimal.RequireFromString("0.0001"), PricePrecision: 0},
	"ETH": {MinOrderSize: decimal.RequireFromString("0.0001"), MinOrderUnit: decimal.RequireFromString("0.0001"), PricePrecision: 0},
	"XRP": {MinOrderSize: decimal.RequireFromString("0.0001"), MinOrderUnit: decimal.RequireFromString("0.0001"), PricePrecision: 3},
}

// Exchange is the bitbank adapter for one trading pair.
type Exchange struct {
	pair        domain.Pair
	creds       exchange.Credentials
	http        *http.Client
	publicBase  string
	privateBase string
	now         func() time.Time
}

// New constructs the adapter, failing fast on unconfigured coins.
func New(pair domain.Pair, creds exchange.Credentials) (*Exchange, error) {
	if _, ok := constraints[pair.Coin]; !ok {
		return nil, errors.Wrapf(domain.ErrUnsupportedSymbol, "bitbank has no order rules for %s", pair.Coin)
	}
	if creds.Key == "" || creds.Secret == "" {
		return nil, errors.New("bitbank api key and secret are required")
	}
	return &Exchange{
		pair:        pair,
		creds:       creds,
		http:        &http.Client{Timeout: 10 * time.Second},
		publicBase:  publicURL,
		privateBase: privateURL,
		now:         time.Now,
	}, nil
}

func (e *Exchange) Name() string { return "bitbank" }

// ticker pair name, e.g. btc_jpy
func (e *Exchange) tickerPair() string {
	return strings.ToLower(e.pair.Coin) + "_" + strings.ToLower(e.pair.Base)
}

func (e *Exchange) Constraints() (domain.Constraints, error) {
	c, ok := constraints[e.pair.Coin]
	if !ok {
		return domain.Constraints{}, errors.Wrapf(domain.ErrUnsupportedSymbol, "bitbank has no order rules for %s", e.pair.Coin)
	}
	return c, nil
}

type asset struct {
	Asset        string `json:"asset"`
	OnhandAmount string `json:"onhand_amount"`
}

type assetsData struct {
	Assets []asset `json:"assets"`
}

func (e *Exchange) Balance(ctx context.Context) (domain.Balance, error) {
	var data assetsData
	if err := e.private(ctx, http.MethodGet, "/user/assets", nil, &data); err != nil {
		return domain.Balance{}, err
	}

	var bal domain.Balance
	for _, a := range data.Assets {
		v, err := decimal.NewFromString(a.OnhandAmount)
		if err != nil {
			return domain.Balance{}, errors.Wrapf(err, "parse %s balance", a.Asset)
		}
		switch strings.ToUpper(a.Asset) {
		case e.pair.Coin:
			bal.Coin = v
		case e.pair.Base:
			bal.Base = v
		}
	}
	if bal.IsEmpty() {
		return domain.Balance{}, errors.Wrapf(domain.ErrNoBalance, "%s", e.pair.String())
	}
	return bal, nil
}

type tickerData struct {
	Last string `json:"last"`
	Buy  string `json:"buy"`
	Sell string `json:"sell"`
}

func (e *Exchange) LastPrice(ctx context.Context) (decimal.Decimal, error) {
	t, err := e.ticker(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(t.Last)
}

// BookTop reads best bid (buy) and best ask (sell) from the public ticker.
func (e *Exchange) BookTop(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	t, err := e.ticker(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	bid, err := decimal.NewFromString(t.Buy)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "parse best bid")
	}
	ask, err := decimal.NewFromString(t.Sell)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "parse best ask")
	}
	return bid, ask, nil
}

func (e *Exchange) ticker(ctx context.Context) (tickerData, error) {
	var t tickerData
	url := fmt.Sprintf("%s/%s/ticker", e.publicBase, e.tickerPair())
	if err := e.call(ctx, http.MethodGet, url, nil, nil, &t); err != nil {
		return tickerData{}, err
	}
	return t, nil
}

type activeOrder struct {
	OrderID json.Number `json:"order_id"`
}

type activeOrdersData struct {
	Orders []activeOrder `json:"orders"`
}

// CancelAllOrders cancels every active order of the pair one by one; the
// venue has no bulk-cancel endpoint.
func (e *Exchange) CancelAllOrders(ctx context.Context) error {
	var data activeOrdersData
	path := "/user/spot/active_orders?pair=" + e.tickerPair()
	if err := e.private(ctx, http.MethodGet, path, nil, &data); err != nil {
		return err
	}
	for _, o := range data.Orders {
		body := map[string]any{"pair": e.tickerPair(), "order_id": o.OrderID}
		if err := e.private(ctx, http.MethodPost, "/user/spot/cancel_order", body, nil); err != nil {
			return err
		}
	}
	return nil
}

type createdOrder struct {
	OrderID json.Number `json:"order_id"`
}

// CreateOrder submits a post-only limit order.
func (e *Exchange) CreateOrder(ctx context.Context, intent domain.OrderIntent) (string, error) {
	body := map[string]any{
		"pair":      e.tickerPair(),
		"amount":    intent.Quantity.String(),
		"price":     intent.Price.String(),
		"side":      intent.Side.String(),
		"type":      "limit",
		"post_only": true,
	}
	var created createdOrder
	if err := e.private(ctx, http.MethodPost, "/user/spot/order", body, &created); err != nil {
		return "", err
	}
	return created.OrderID.String(), nil
}

type trade struct {
	TradeID    json.Number `json:"trade_id"`
	ExecutedAt int64       `json:"executed_at"`
	Side       string      `json:"side"`
	Amount     string      `json:"amount"`
	Price      string      `json:"price"`
}

type tradeHistoryData struct {
	Trades []trade `json:"trades"`
}

// Fills pages through the trade history in ascending order via the since
// parameter and returns fills since the given time, sorted ascending. Each
// page restarts at the last seen millisecond, not after it, so trades sharing
// a millisecond across a page boundary are not skipped; the id set drops the
// repeats.
func (e *Exchange) Fills(ctx context.Context, since time.Time) ([]domain.Fill, error) {
	var fills []domain.Fill
	seen := make(map[string]struct{})
	cursor := since.UnixMilli()
	for {
		var data tradeHistoryData
		path := fmt.Sprintf("/user/spot/trade_history?pair=%s&count=%d&order=asc&since=%d",
			e.tickerPair(), fillPageSize, cursor)
		if err := e.private(ctx, http.MethodGet, path, nil, &data); err != nil {
			return nil, err
		}
		added := 0
		for _, t := range data.Trades {
			if _, ok := seen[t.TradeID.String()]; ok {
				continue
			}
			seen[t.TradeID.String()] = struct{}{}
			added++
			ts := time.UnixMilli(t.ExecutedAt).UTC()
			if ts.Before(since) {
				continue
			}
			side, err := domain.ParseSide(t.Side)
			if err != nil {
				return nil, err
			}
			qty, err := decimal.NewFromString(t.Amount)
			if err != nil {
				return nil, errors.Wrap(err, "parse trade amount")
			}
			price, err := decimal.NewFromString(t.Price)
			if err != nil {
				return nil, errors.Wrap(err, "parse trade price")
			}
			fills = append(fills, domain.Fill{Time: ts, Side: side, Quantity: qty, Price: price})
		}
		if len(data.Trades) < fillPageSize || added == 0 {
			break
		}
		cursor = data.Trades[len(data.Trades)-1].ExecutedAt
	}

	sort.Slice(fills, func(i, j int) bool { return fills[i].Time.Before(fills[j].Time) })
	return fills, nil
}

// Deposits is not served by this adapter.
func (e *Exchange) Deposits(ctx context.Context) ([]domain.Deposit, error) {
	return nil, errors.Wrap(domain.ErrUnsupportedOperation, "bitbank deposit history")
}

type envelope struct {
	Success int             `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type apiErrorData struct {
	Code int `json:"code"`
}

// private signs and performs a request against the private API.
func (e *Exchange) private(ctx context.Context, method, path string, body, out any) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
	}

	nonce := strconv.FormatInt(e.now().UnixMilli(), 10)
	var message string
	if method == http.MethodGet {
		message = nonce + privatePath + path
	} else {
		message = nonce + string(raw)
	}

	headers := map[string]string{
		"ACCESS-KEY":       e.creds.Key,
		"ACCESS-NONCE":     nonce,
		"ACCESS-SIGNATURE": sign(e.creds.Secret, message),
	}
	return e.call(ctx, method, e.privateBase+privatePath+path, raw, headers, out)
}

// call performs a request and unwraps the {success, data} envelope.
func (e *Exchange) call(ctx context.Context, method, url string, body []byte, headers map[string]string, out any) error {
	var payload io.Reader
	if body != nil {
		payload = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := e.http.Do(req)
	if err != nil {
		return &domain.APIError{Exchange: e.Name(), Message: err.Error()}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return &domain.APIError{Exchange: e.Name(), Message: err.Error()}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.Wrap(err, "decode response envelope")
	}
	if env.Success != 1 {
		var apiErr apiErrorData
		_ = json.Unmarshal(env.Data, &apiErr)
		return &domain.APIError{Exchange: e.Name(), Code: strconv.Itoa(apiErr.Code), Message: "request failed"}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrap(err, "decode response data")
	}
	return nil
}

func sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
