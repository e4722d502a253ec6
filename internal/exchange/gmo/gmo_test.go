package gmo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/exchange"
)

var testCreds = exchange.Credentials{Key: "key", Secret: "secret"}

func TestNewRejectsUnsupportedCoin(t *testing.T) {
	_, err := New(domain.Pair{Coin: "ADA", Base: "JPY"}, testCreds)
	require.True(t, errors.Is(err, domain.ErrUnsupportedSymbol))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(domain.Pair{Coin: "BTC", Base: "JPY"}, exchange.Credentials{Key: "key"})
	require.Error(t, err)
}

func TestConstraints(t *testing.T) {
	e, err := New(domain.Pair{Coin: "XRP", Base: "JPY"}, testCreds)
	require.NoError(t, err)

	c, err := e.Constraints()
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("1").Equal(c.MinOrderSize))
	require.True(t, decimal.RequireFromString("1").Equal(c.MinOrderUnit))
	require.Equal(t, int32(3), c.PricePrecision)
}

func TestSendUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":0,"data":[{"last":"2000000","bid":"1999999","ask":"2000001"}]}`))
	}))
	defer srv.Close()

	e, err := New(domain.Pair{Coin: "BTC", Base: "JPY"}, testCreds)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	var tickers []tickerData
	require.NoError(t, e.send(req, &tickers))
	require.Len(t, tickers, 1)
	require.Equal(t, "2000000", tickers[0].Last)
}

func TestSendReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":1,"messages":[{"message_code":"ERR-5106","message_string":"Invalid request parameter."}]}`))
	}))
	defer srv.Close()

	e, err := New(domain.Pair{Coin: "BTC", Base: "JPY"}, testCreds)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	err = e.send(req, nil)
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "gmo", apiErr.Exchange)
	require.Equal(t, "ERR-5106", apiErr.Code)
	require.Contains(t, apiErr.Message, "Invalid request parameter.")
}

func TestDepositsUnsupported(t *testing.T) {
	e, err := New(domain.Pair{Coin: "BTC", Base: "JPY"}, testCreds)
	require.NoError(t, err)

	_, err = e.Deposits(context.Background())
	require.True(t, errors.Is(err, domain.ErrUnsupportedOperation))
}
