// Package liquid implements the Liquid (Quoine) REST adapter. Private calls
// are authenticated with a JWT signed by the account secret, carried in the
// X-Quoine-Auth header.
package liquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/exchange"
)

const (
	baseURL      = "https://api.liquid.com"
	fillPageSize = 1000
)

var productIDs = map[string]int{
	"BTC":  5,
	"ETH":  29,
	"XRP":  83,
	"BCH":  41,
	"QASH": 50,
	"SOL":  844,
	"FTT":  795,
}

var constraints = map[string]domain.Constraints{
	"BTC":  {MinOrderSize: decimal.RequireFromString("0.001"), MinOrderUnit: decimal.RequireFromString("0.00000001"), PricePrecision: 0},
	"ETH":  {MinOrderSize: decimal.RequireFromString("0.01"), MinOrderUnit: decimal.RequireFromString("0.00000001"), PricePrecision: 0},
	"XRP":  {MinOrderSize: decimal.RequireFromString("1"), MinOrderUnit: decimal.RequireFromString("0.00000001"), PricePrecision: 3},
	"BCH":  {MinOrderSize: decimal.RequireFromString("0.01"), MinOrderUnit: decimal.RequireFromString("0.00000001"), PricePrecision: 0},
	"QASH": {MinOrderSize: decimal.RequireFromString("1"), MinOrderUnit: decimal.RequireFromString("0.00000001"), PricePrecision: 3},
	"SOL":  {MinOrderSize: decimal.RequireFromString("0.01"), MinOrderUnit: decimal.RequireFromString("0.00000001"), PricePrecision: 0},
	"FTT":  {MinOrderSize: decimal.RequireFromString("0.1"), MinOrderUnit: decimal.RequireFromString("0.00000001"), PricePrecision: 2},
}

// Exchange is the Liquid adapter for one trading pair.
type Exchange struct {
	pair      domain.Pair
	productID int
	creds     exchange.Credentials
	http      *http.Client
	baseURL   string
	now       func() time.Time
}

// New constructs the adapter. Fails fast on unconfigured coins so no
// network call is made for unsupported symbols.
func New(pair domain.Pair, creds exchange.Credentials) (*Exchange, error) {
	id, ok := productIDs[pair.Coin]
	if !ok {
		return nil, errors.Wrapf(domain.ErrUnsupportedSymbol, "liquid has no product for %s", pair.String())
	}
	if creds.Key == "" || creds.Secret == "" {
		return nil, errors.New("liquid api key and secret are required")
	}
	return &Exchange{
		pair:      pair,
		productID: id,
		creds:     creds,
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   baseURL,
		now:       time.Now,
	}, nil
}

func (e *Exchange) Name() string { return "liquid" }

// Constraints returns the static order rules for the configured coin.
func (e *Exchange) Constraints() (domain.Constraints, error) {
	c, ok := constraints[e.pair.Coin]
	if !ok {
		return domain.Constraints{}, errors.Wrapf(domain.ErrUnsupportedSymbol, "liquid has no order rules for %s", e.pair.Coin)
	}
	return c, nil
}

type accountBalance struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

// Balance sums the account balances of both sides of the pair.
func (e *Exchange) Balance(ctx context.Context) (domain.Balance, error) {
	var balances []accountBalance
	if err := e.get(ctx, "/accounts/balance", true, &balances); err != nil {
		return domain.Balance{}, err
	}

	var bal domain.Balance
	for _, b := range balances {
		v, err := decimal.NewFromString(b.Balance)
		if err != nil {
			return domain.Balance{}, errors.Wrapf(err, "parse %s balance", b.Currency)
		}
		switch b.Currency {
		case e.pair.Coin:
			bal.Coin = bal.Coin.Add(v)
		case e.pair.Base:
			bal.Base = bal.Base.Add(v)
		}
	}
	if bal.IsEmpty() {
		return domain.Balance{}, errors.Wrapf(domain.ErrNoBalance, "%s", e.pair.String())
	}
	return bal, nil
}

type product struct {
	LastTradedPrice string `json:"last_traded_price"`
}

func (e *Exchange) LastPrice(ctx context.Context) (decimal.Decimal, error) {
	var p product
	if err := e.get(ctx, fmt.Sprintf("/products/%d", e.productID), false, &p); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(p.LastTradedPrice)
}

// BookTop is not served by this adapter; callers fall back to LastPrice.
func (e *Exchange) BookTop(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, errors.Wrap(domain.ErrUnsupportedOperation, "liquid best bid/ask")
}

type order struct {
	ID json.Number `json:"id"`
}

type ordersPage struct {
	Models []order `json:"models"`
}

// CancelAllOrders lists live orders of the product and cancels them one by
// one. The venue has no bulk-cancel endpoint.
func (e *Exchange) CancelAllOrders(ctx context.Context) error {
	var page ordersPage
	path := fmt.Sprintf("/orders?status=live&product_id=%d", e.productID)
	if err := e.get(ctx, path, true, &page); err != nil {
		return err
	}
	for _, o := range page.Models {
		if err := e.request(ctx, http.MethodPut, fmt.Sprintf("/orders/%s/cancel", o.ID), nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// CreateOrder submits a limit order.
func (e *Exchange) CreateOrder(ctx context.Context, intent domain.OrderIntent) (string, error) {
	body := map[string]any{
		"order": map[string]any{
			"order_type": "limit",
			"product_id": e.productID,
			"side":       intent.Side.String(),
			"price":      intent.Price.String(),
			"quantity":   intent.Quantity.String(),
		},
	}
	var created order
	if err := e.request(ctx, http.MethodPost, "/orders/", body, &created); err != nil {
		return "", err
	}
	return created.ID.String(), nil
}

type execution struct {
	ID        json.Number `json:"id"`
	Timestamp string      `json:"timestamp"`
	MySide    string      `json:"my_side"`
	Quantity  string      `json:"quantity"`
	Price     string      `json:"price"`
}

type executionsPage struct {
	Models []execution `json:"models"`
}

// Fills pages through the account's own executions since the given time and
// returns one fully materialized batch sorted ascending by timestamp. Each
// page restarts at the last seen timestamp, not after it, so fills sharing a
// second across a page boundary are not skipped; the id set drops the repeats.
func (e *Exchange) Fills(ctx context.Context, since time.Time) ([]domain.Fill, error) {
	var fills []domain.Fill
	seen := make(map[string]struct{})
	cursor := strconv.FormatInt(since.Unix(), 10)
	for {
		var page executionsPage
		path := fmt.Sprintf("/executions/me?product_id=%d&timestamp=%s&limit=%d", e.productID, cursor, fillPageSize)
		if err := e.get(ctx, path, true, &page); err != nil {
			return nil, err
		}
		added := 0
		for _, ex := range page.Models {
			if _, ok := seen[ex.ID.String()]; ok {
				continue
			}
			seen[ex.ID.String()] = struct{}{}
			f, err := parseExecution(ex)
			if err != nil {
				return nil, err
			}
			fills = append(fills, f)
			added++
		}
		if len(page.Models) < fillPageSize || added == 0 {
			break
		}
		cursor = page.Models[len(page.Models)-1].Timestamp
	}

	sort.Slice(fills, func(i, j int) bool { return fills[i].Time.Before(fills[j].Time) })
	return fills, nil
}

func parseExecution(ex execution) (domain.Fill, error) {
	ts, err := parseTimestamp(ex.Timestamp)
	if err != nil {
		return domain.Fill{}, err
	}
	side, err := domain.ParseSide(ex.MySide)
	if err != nil {
		return domain.Fill{}, err
	}
	qty, err := decimal.NewFromString(ex.Quantity)
	if err != nil {
		return domain.Fill{}, errors.Wrap(err, "parse execution quantity")
	}
	price, err := decimal.NewFromString(ex.Price)
	if err != nil {
		return domain.Fill{}, errors.Wrap(err, "parse execution price")
	}
	return domain.Fill{Time: ts, Side: side, Quantity: qty, Price: price}, nil
}

// parseTimestamp parses a unix timestamp with optional fractional seconds.
// The fraction is significant: distinct fills can share a whole second, and
// collapsing them to it would create checkpoint ties that never existed.
func parseTimestamp(s string) (time.Time, error) {
	secPart, fracPart, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse execution timestamp %q", s)
	}
	var nanos int64
	if fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		nanos, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "parse execution timestamp %q", s)
		}
		for i := len(fracPart); i < 9; i++ {
			nanos *= 10
		}
	}
	return time.Unix(sec, nanos).UTC(), nil
}

type transaction struct {
	CreatedAt int64  `json:"created_at"`
	Currency  string `json:"currency"`
	NetAmount string `json:"net_amount"`
}

type transactionsPage struct {
	Models []transaction `json:"models"`
}

// Deposits returns the fiat deposit history of the base currency.
func (e *Exchange) Deposits(ctx context.Context) ([]domain.Deposit, error) {
	var page transactionsPage
	path := fmt.Sprintf("/transactions?transaction_type=funding&currency=%s", e.pair.Base)
	if err := e.get(ctx, path, true, &page); err != nil {
		return nil, err
	}

	deposits := make([]domain.Deposit, 0, len(page.Models))
	for _, t := range page.Models {
		amount, err := decimal.NewFromString(t.NetAmount)
		if err != nil {
			return nil, errors.Wrap(err, "parse deposit amount")
		}
		deposits = append(deposits, domain.Deposit{
			Time:     time.Unix(t.CreatedAt, 0).UTC(),
			Currency: t.Currency,
			Amount:   amount,
		})
	}
	return deposits, nil
}

func (e *Exchange) get(ctx context.Context, path string, private bool, out any) error {
	return e.do(ctx, http.MethodGet, path, private, nil, out)
}

func (e *Exchange) request(ctx context.Context, method, path string, body, out any) error {
	return e.do(ctx, method, path, true, body, out)
}

func (e *Exchange) do(ctx context.Context, method, path string, private bool, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, payload)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if private {
		token, err := e.authToken(path)
		if err != nil {
			return err
		}
		req.Header.Set("X-Quoine-Auth", token)
		req.Header.Set("X-Quoine-API-Version", "2")
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
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &domain.APIError{Exchange: e.Name(), Code: strconv.Itoa(res.StatusCode), Message: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}

// authToken signs {path, nonce, token_id} with HS256, as required by the
// X-Quoine-Auth scheme.
func (e *Exchange) authToken(path string) (string, error) {
	claims := jwt.MapClaims{
		"path":     path,
		"nonce":    e.now().UnixMilli(),
		"token_id": e.creds.Key,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(e.creds.Secret))
	if err != nil {
		return "", errors.Wrap(err, "sign auth token")
	}
	return token, nil
}
