package bitbank

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/exchange"
)

var testCreds = exchange.Credentials{Key: "key", Secret: "secret"}

func TestNewRejectsUnsupportedCoin(t *testing.T) {
	_, err := New(domain.Pair{Coin: "DOGE", Base: "JPY"}, testCreds)
	require.True(t, errors.Is(err, domain.ErrUnsupportedSymbol))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(domain.Pair{Coin: "BTC", Base: "JPY"}, exchange.Credentials{})
	require.Error(t, err)
}

func TestConstraints(t *testing.T) {
	e, err := New(domain.Pair{Coin: "XRP", Base: "JPY"}, testCreds)
	require.NoError(t, err)

	c, err := e.Constraints()
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("0.0001").Equal(c.MinOrderSize))
	require.Equal(t, int32(3), c.PricePrecision)
	require.True(t, decimal.RequireFromString("0.001").Equal(c.Tick()))
}

func TestSign(t *testing.T) {
	// RFC 4231-style known vector for HMAC-SHA256
	got := sign("key", "The quick brown fox jumps over the lazy dog")
	require.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", got)
}

func TestCallUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":1,"data":{"last":"2000000","buy":"1999999","sell":"2000001"}}`))
	}))
	defer srv.Close()

	e, err := New(domain.Pair{Coin: "BTC", Base: "JPY"}, testCreds)
	require.NoError(t, err)

	var tk tickerData
	require.NoError(t, e.call(context.Background(), http.MethodGet, srv.URL, nil, nil, &tk))
	require.Equal(t, "2000000", tk.Last)
	require.Equal(t, "1999999", tk.Buy)
	require.Equal(t, "2000001", tk.Sell)
}

func TestCallReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":0,"data":{"code":20001}}`))
	}))
	defer srv.Close()

	e, err := New(domain.Pair{Coin: "BTC", Base: "JPY"}, testCreds)
	require.NoError(t, err)

	err = e.call(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "bitbank", apiErr.Exchange)
	require.Equal(t, "20001", apiErr.Code)
}

func TestFillsPagesBeyondOneRequest(t *testing.T) {
	firstPage := func() string {
		var b strings.Builder
		b.WriteString(`{"success":1,"data":{"trades":[`)
		for i := 1; i <= fillPageSize; i++ {
			if i > 1 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, `{"trade_id":%d,"executed_at":%d,"side":"buy","amount":"0.01","price":"2000000"}`,
				i, 1617235200000+int64(i))
		}
		b.WriteString(`]}}`)
		return b.String()
	}()
	// the second page repeats the boundary trade and adds one sharing its
	// millisecond
	secondPage := `{"success":1,"data":{"trades":[` +
		`{"trade_id":1000,"executed_at":1617235201000,"side":"buy","amount":"0.01","price":"2000000"},` +
		`{"trade_id":1001,"executed_at":1617235201000,"side":"sell","amount":"0.01","price":"2000100"},` +
		`{"trade_id":1002,"executed_at":1617235201500,"side":"sell","amount":"0.02","price":"2000200"}]}}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("since") == "1617235201000" {
			io.WriteString(w, secondPage)
			return
		}
		io.WriteString(w, firstPage)
	}))
	defer srv.Close()

	e, err := New(domain.Pair{Coin: "BTC", Base: "JPY"}, testCreds)
	require.NoError(t, err)
	e.privateBase = srv.URL

	fills, err := e.Fills(context.Background(), time.UnixMilli(1617235200000))
	require.NoError(t, err)
	require.Len(t, fills, fillPageSize+2)

	last := fills[len(fills)-1]
	require.Equal(t, domain.SideSell, last.Side)
	require.True(t, decimal.RequireFromString("0.02").Equal(last.Quantity))
}

func TestDepositsUnsupported(t *testing.T) {
	e, err := New(domain.Pair{Coin: "BTC", Base: "JPY"}, testCreds)
	require.NoError(t, err)

	_, err = e.Deposits(context.Background())
	require.True(t, errors.Is(err, domain.ErrUnsupportedOperation))
}
