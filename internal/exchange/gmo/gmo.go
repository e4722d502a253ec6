// Package gmo implements the GMO Coin REST adapter. Private calls are signed
// with HMAC-SHA256 over timestamp+method+path+body.
package gmo

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
	publicURL    = "https://api.coin.z.com/public"
	privateURL   = "https://api.coin.z.com/private"
	fillPageSize = 100
)

var constraints = map[string]domain.Constraints{
	"BTC": {MinOrderSize: decimal.RequireFromString("0.0001"), MinOrderUnit: decimal.RequireFromString("0.0001"), PricePrecision: 0},
	"ETH": {MinOrderSize: decimal.RequireFromString("0.01"), MinOrderUnit: decimal.RequireFromString("0.0001"), PricePrecision: 0},
	"XRP": {MinOrderSize: decimal.RequireFromString("1"), MinOrderUnit: decimal.RequireFromString("1"), PricePrecision: 3},
}

// Exchange is the GMO Coin adapter for one trading pair.
type Exchange struct {
	pair  domain.Pair
	creds exchange.Credentials
	http  *http.Client
	now   func() time.Time
}

// New constructs the adapter, failing fast on unconfigured coins.
func New(pair domain.Pair, creds exchange.Credentials) (*Exchange, error) {
	if _, ok := constraints[pair.Coin]; !ok {
		return nil, errors.Wrapf(domain.ErrUnsupportedSymbol, "gmo has no order rules for %s", pair.Coin)
	}
	if creds.Key == "" || creds.Secret == "" {
		return nil, errors.New("gmo api key and secret are required")
	}
	return &Exchange{
		pair:  pair,
		creds: creds,
		http:  &http.Client{Timeout: 10 * time.Second},
		now:   time.Now,
	}, nil
}

func (e *Exchange) Name() string { return "gmo" }

func (e *Exchange) Constraints() (domain.Constraints, error) {
	c, ok := constraints[e.pair.Coin]
	if !ok {
		return domain.Constraints{}, errors.Wrapf(domain.ErrUnsupportedSymbol, "gmo has no order rules for %s", e.pair.Coin)
	}
	return c, nil
}

type assetData struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

func (e *Exchange) Balance(ctx context.Context) (domain.Balance, error) {
	var assets []assetData
	if err := e.private(ctx, http.MethodGet, "/v1/account/assets", nil, &assets); err != nil {
		return domain.Balance{}, err
	}

	var bal domain.Balance
	for _, a := range assets {
		v, err := decimal.NewFromString(a.Amount)
		if err != nil {
			return domain.Balance{}, errors.Wrapf(err, "parse %s balance", a.Symbol)
		}
		switch a.Symbol {
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
	Bid  string `json:"bid"`
	Ask  string `json:"ask"`
}

func (e *Exchange) LastPrice(ctx context.Context) (decimal.Decimal, error) {
	t, err := e.ticker(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(t.Last)
}

func (e *Exchange) BookTop(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	t, err := e.ticker(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	bid, err := decimal.NewFromString(t.Bid)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "parse best bid")
	}
	ask, err := decimal.NewFromString(t.Ask)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "parse best ask")
	}
	return bid, ask, nil
}

func (e *Exchange) ticker(ctx context.Context) (tickerData, error) {
	var tickers []tickerData
	path := "/v1/ticker?symbol=" + e.pair.Coin
	if err := e.public(ctx, path, &tickers); err != nil {
		return tickerData{}, err
	}
	if len(tickers) == 0 {
		return tickerData{}, &domain.APIError{Exchange: e.Name(), Message: "empty ticker response for " + e.pair.Coin}
	}
	return tickers[0], nil
}

// CancelAllOrders bulk-cancels every open order of the coin.
func (e *Exchange) CancelAllOrders(ctx context.Context) error {
	body := map[string]any{"symbols": []string{e.pair.Coin}}
	return e.private(ctx, http.MethodPost, "/v1/cancelBulkOrder", body, nil)
}

// CreateOrder submits a limit order. SOK keeps the order post-only so a
// clamped price never crosses the spread into a taker fill.
func (e *Exchange) CreateOrder(ctx context.Context, intent domain.OrderIntent) (string, error) {
	body := map[string]any{
		"symbol":        e.pair.Coin,
		"side":          strings.ToUpper(intent.Side.String()),
		"executionType": "LIMIT",
		"price":         intent.Price.String(),
		"size":          intent.Quantity.String(),
		"timeInForce":   "SOK",
	}
	var orderID json.Number
	if err := e.private(ctx, http.MethodPost, "/v1/order", body, &orderID); err != nil {
		return "", err
	}
	return orderID.String(), nil
}

type executionData struct {
	Timestamp string `json:"timestamp"`
	Side      string `json:"side"`
	Size      string `json:"size"`
	Price     string `json:"price"`
}

type executionList struct {
	List []executionData `json:"list"`
}

// Fills pages through the latest executions and returns fills with
// timestamp >= since, sorted ascending.
func (e *Exchange) Fills(ctx context.Context, since time.Time) ([]domain.Fill, error) {
	var fills []domain.Fill
	for page := 1; ; page++ {
		var list executionList
		path := fmt.Sprintf("/v1/latestExecutions?symbol=%s&page=%d&count=%d", e.pair.Coin, page, fillPageSize)
		if err := e.private(ctx, http.MethodGet, path, nil, &list); err != nil {
			return nil, err
		}
		done := len(list.List) < fillPageSize
		for _, ex := range list.List {
			ts, err := time.Parse(time.RFC3339, ex.Timestamp)
			if err != nil {
				return nil, errors.Wrap(err, "parse execution timestamp")
			}
			if ts.Before(since) {
				// newest-first pages: everything after this is older still
				done = true
				continue
			}
			side, err := domain.ParseSide(ex.Side)
			if err != nil {
				return nil, err
			}
			qty, err := decimal.NewFromString(ex.Size)
			if err != nil {
				return nil, errors.Wrap(err, "parse execution size")
			}
			price, err := decimal.NewFromString(ex.Price)
			if err != nil {
				return nil, errors.Wrap(err, "parse execution price")
			}
			fills = append(fills, domain.Fill{Time: ts.UTC(), Side: side, Quantity: qty, Price: price})
		}
		if done {
			break
		}
	}

	sort.Slice(fills, func(i, j int) bool { return fills[i].Time.Before(fills[j].Time) })
	return fills, nil
}

// Deposits is not served by this adapter.
func (e *Exchange) Deposits(ctx context.Context) ([]domain.Deposit, error) {
	return nil, errors.Wrap(domain.ErrUnsupportedOperation, "gmo deposit history")
}

type envelope struct {
	Status   int             `json:"status"`
	Data     json.RawMessage `json:"data"`
	Messages []struct {
		MessageCode   string `json:"message_code"`
		MessageString string `json:"message_string"`
	} `json:"messages"`
}

func (e *Exchange) public(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, publicURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	return e.send(req, out)
}

func (e *Exchange) private(ctx context.Context, method, path string, body, out any) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
	}

	var payload io.Reader
	if raw != nil {
		payload = bytes.NewReader(raw)
	}
	// the signed path excludes any query string
	signPath := path
	if i := strings.IndexByte(signPath, '?'); i >= 0 {
		signPath = signPath[:i]
	}
	timestamp := strconv.FormatInt(e.now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(e.creds.Secret))
	mac.Write([]byte(timestamp + method + signPath + string(raw)))

	req, err := http.NewRequestWithContext(ctx, method, privateURL+path, payload)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("API-KEY", e.creds.Key)
	req.Header.Set("API-TIMESTAMP", timestamp)
	req.Header.Set("API-SIGN", hex.EncodeToString(mac.Sum(nil)))
	return e.send(req, out)
}

func (e *Exchange) send(req *http.Request, out any) error {
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
	if env.Status != 0 {
		var parts []string
		var code string
		for _, m := range env.Messages {
			code = m.MessageCode
			parts = append(parts, m.MessageCode+":"+m.MessageString)
		}
		return &domain.APIError{Exchange: e.Name(), Code: code, Message: strings.Join(parts, ", ")}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrap(err, "decode response data")
	}
	return nil
}
