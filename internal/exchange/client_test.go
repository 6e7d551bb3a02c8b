package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-liq-monitor/config"
	"github.com/utrading/utrading-liq-monitor/internal/models"
)

const (
	testKey    = "test-api-key"
	testSecret = "test-secret"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return New(config.Binance{
		BaseURL:    srv.URL,
		APIKey:     testKey,
		SecretKey:  testSecret,
		RecvWindow: 5000,
		TickerTTL:  time.Minute,
	}, srv.Client())
}

// verifySigned 校验签名请求
func verifySigned(t *testing.T, r *http.Request) url.Values {
	t.Helper()
	assert.Equal(t, testKey, r.Header.Get(headerAPIKey))

	raw := r.URL.RawQuery
	idx := strings.LastIndex(raw, "&signature=")
	require.Greater(t, idx, 0)
	payload, sig := raw[:idx], raw[idx+len("&signature="):]
	assert.Equal(t, Signature([]byte(testSecret), payload), sig)

	q, err := url.ParseQuery(payload)
	require.NoError(t, err)
	assert.Equal(t, "5000", q.Get("recvWindow"))
	assert.NotEmpty(t, q.Get("timestamp"))
	return q
}

const positionRiskBody = `[
  {"symbol":"BTCUSDT","positionAmt":"0.010","entryPrice":"50000.0","markPrice":"45500.0","liquidationPrice":"45000.0","leverage":"20","unRealizedProfit":"-45.0","marginType":"cross","positionSide":"BOTH"},
  {"symbol":"ETHUSDT","positionAmt":"0.000","entryPrice":"0.0","markPrice":"2000.0","liquidationPrice":"0","leverage":"10","positionSide":"BOTH"},
  {"symbol":"SOLUSDT","positionAmt":"-3","entryPrice":"150","markPrice":"160","liquidationPrice":"180","leverage":"5","positionSide":"SHORT"}
]`

func TestListOpenPositions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, pathPositionRisk, r.URL.Path)
		verifySigned(t, r)
		w.Write([]byte(positionRiskBody))
	})

	got, err := c.ListOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, models.Position{
		Symbol:           "BTCUSDT",
		Side:             models.SideBoth,
		PositionAmount:   0.01,
		EntryPrice:       50000,
		MarkPrice:        45500,
		LiquidationPrice: 45000,
		Leverage:         20,
		UnrealizedProfit: -45,
		MarginType:       "cross",
	}, got[0])
	assert.Equal(t, "SOLUSDT", got[1].Symbol)
	assert.Equal(t, models.SideShort, got[1].Side)
	assert.Equal(t, -3.0, got[1].PositionAmount)
}

func TestListOpenPositions_UnknownSideKeptPerPosition(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
  {"symbol":"BTCUSDT","positionAmt":"0.01","entryPrice":"50000","markPrice":"45500","liquidationPrice":"45000","leverage":"20","positionSide":"LONG"},
  {"symbol":"ETHUSDT","positionAmt":"1","entryPrice":"2000","markPrice":"2100","liquidationPrice":"1500","leverage":"10","positionSide":"UP"}
]`))
	})

	got, err := c.ListOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, models.SideLong, got[0].Side)
	assert.Equal(t, models.Side("UP"), got[1].Side)
	assert.Equal(t, models.Side(""), got[1].EffectiveSide())
}

func TestListOpenPositions_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	got, err := c.ListOpenPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListOpenPositions_ErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"server error", http.StatusBadGateway, `bad gateway`, ErrUnavailable},
		{"rate limited", http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests"}`, ErrUnavailable},
		{"unauthorized", http.StatusUnauthorized, `{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`, ErrAuth},
		{"bad signature", http.StatusBadRequest, `{"code":-1022,"msg":"Signature for this request is not valid."}`, ErrAuth},
		{"timestamp drift", http.StatusBadRequest, `{"code":-1021,"msg":"Timestamp for this request is outside of the recvWindow."}`, ErrAuth},
		{"other client error", http.StatusBadRequest, `{"code":-1102,"msg":"Mandatory parameter was not sent"}`, ErrProtocol},
		{"not json", http.StatusOK, `<html>`, ErrProtocol},
		{"not array", http.StatusOK, `{"symbol":"BTCUSDT"}`, ErrProtocol},
		{"bad number", http.StatusOK, `[{"symbol":"BTCUSDT","positionAmt":"abc","entryPrice":"1","markPrice":"1","liquidationPrice":"1"}]`, ErrProtocol},
		{"missing field", http.StatusOK, `[{"symbol":"BTCUSDT","positionAmt":"1","entryPrice":"1","markPrice":"1"}]`, ErrProtocol},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			_, err := c.ListOpenPositions(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)

			var exErr *Error
			require.True(t, errors.As(err, &exErr))
			assert.Equal(t, "positionRisk", exErr.Op)
		})
	}
}

func TestListOpenPositions_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(config.Binance{BaseURL: base, APIKey: testKey, SecretKey: testSecret, RecvWindow: 5000}, nil)
	_, err := c.ListOpenPositions(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestListOpenPositions_MissingCredentials(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer srv.Close()

	c := New(config.Binance{BaseURL: srv.URL, RecvWindow: 5000}, srv.Client())
	_, err := c.ListOpenPositions(context.Background())
	assert.True(t, errors.Is(err, ErrAuth))
	assert.Equal(t, int32(0), hits.Load())
}

func TestGetTicker_Cached(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, pathTickerPrice, r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		// 公共接口不带签名
		assert.Empty(t, r.URL.Query().Get("signature"))
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"45500.10","time":1700000000000}`))
	})

	for i := 0; i < 3; i++ {
		p, err := c.GetTicker(context.Background(), "btcusdt")
		require.NoError(t, err)
		assert.Equal(t, 45500.10, p)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestGetTicker_BadPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"0"}`))
	})

	_, err := c.GetTicker(context.Background(), "BTCUSDT")
	assert.True(t, errors.Is(err, ErrProtocol))
}

func TestSetLeverage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathLeverage, r.URL.Path)
		q := verifySigned(t, r)
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "20", q.Get("leverage"))
		w.Write([]byte(`{"leverage":20,"maxNotionalValue":"25000000","symbol":"BTCUSDT"}`))
	})

	res, err := c.SetLeverage(context.Background(), "btcusdt", 20)
	require.NoError(t, err)
	assert.Equal(t, &LeverageResult{Symbol: "BTCUSDT", Leverage: 20, MaxNotionalValue: 25000000}, res)
}

func TestSetLeverage_OutOfRange(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent")
	})

	_, err := c.SetLeverage(context.Background(), "BTCUSDT", 0)
	assert.True(t, errors.Is(err, ErrProtocol))
}
