package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/utrading/utrading-liq-monitor/config"
	"github.com/utrading/utrading-liq-monitor/internal/monitor"
	"github.com/utrading/utrading-liq-monitor/pkg/logger"
)

const (
	pathPositionRisk = "/fapi/v2/positionRisk"
	pathTickerPrice  = "/fapi/v1/ticker/price"
	pathLeverage     = "/fapi/v1/leverage"

	headerAPIKey = "X-MBX-APIKEY"
	maxBodyBytes = 4 << 20
)

// Client Binance U 本位合约 REST 客户端
type Client struct {
	baseURL string
	apiKey  string
	signer  *Signer
	http    *http.Client

	tickers *cache.Cache  // symbol -> float64
	limiter *rate.Limiter // 未命中缓存的 ticker 请求间隔
}

func New(cfg config.Binance, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	ttl := cfg.TickerTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.TickerMinInterval > 0 {
		limit = rate.Every(cfg.TickerMinInterval)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		signer:  NewSigner(cfg.APIKey, cfg.SecretKey, cfg.RecvWindow),
		http:    httpClient,
		tickers: cache.New(ttl, ttl*2),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *Client) hasCredentials() bool {
	return c.apiKey != "" && len(c.signer.secret) > 0
}

// do 发送请求并返回 body，非 2xx 按错误码分类
func (c *Client) do(ctx context.Context, op, method, path, query string, signed bool) ([]byte, error) {
	if signed && !c.hasCredentials() {
		return nil, &Error{Kind: ErrAuth, Op: op, Msg: "missing API key or secret"}
	}

	u := c.baseURL + path
	if query != "" {
		u += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, &Error{Kind: ErrProtocol, Op: op, Err: err}
	}
	if signed {
		req.Header.Set(headerAPIKey, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		monitor.IncExchangeRequest(op, "transport_error")
		return nil, &Error{Kind: ErrUnavailable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		monitor.IncExchangeRequest(op, "transport_error")
		return nil, &Error{Kind: ErrUnavailable, Op: op, Status: resp.StatusCode, Err: err}
	}

	monitor.IncExchangeRequest(op, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := gjson.GetBytes(body, "code").Int()
		msg := gjson.GetBytes(body, "msg").String()
		if msg == "" {
			msg = truncate(string(body), 200)
		}
		return nil, &Error{Kind: classify(resp.StatusCode, code), Op: op, Status: resp.StatusCode, Code: code, Msg: msg}
	}

	if !gjson.ValidBytes(body) {
		return nil, &Error{Kind: ErrProtocol, Op: op, Status: resp.StatusCode, Msg: "invalid JSON body"}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// GetTicker 最新成交价，带 TTL 缓存
func (c *Client) GetTicker(ctx context.Context, symbol string) (float64, error) {
	const op = "ticker"

	symbol = strings.ToUpper(symbol)
	if v, ok := c.tickers.Get(symbol); ok {
		monitor.IncCacheHit("ticker")
		return v.(float64), nil
	}
	monitor.IncCacheMiss("ticker")

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, &Error{Kind: ErrUnavailable, Op: op, Err: err}
	}

	body, err := c.do(ctx, op, http.MethodGet, pathTickerPrice, url.Values{"symbol": {symbol}}.Encode(), false)
	if err != nil {
		return 0, err
	}

	price, err := parseTicker(body)
	if err != nil {
		return 0, &Error{Kind: ErrProtocol, Op: op, Err: err}
	}

	c.tickers.Set(symbol, price, cache.DefaultExpiration)
	logger.Debug().Str("symbol", symbol).Float64("price", price).Msg("ticker refreshed")
	return price, nil
}

// SetLeverage 调整杠杆倍数
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) (*LeverageResult, error) {
	const op = "leverage"

	if leverage < 1 || leverage > 125 {
		return nil, &Error{Kind: ErrProtocol, Op: op, Msg: fmt.Sprintf("leverage %d out of range 1..125", leverage)}
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("leverage", strconv.Itoa(leverage))

	body, err := c.do(ctx, op, http.MethodPost, pathLeverage, c.signer.Sign(params), true)
	if err != nil {
		return nil, err
	}

	res, err := parseLeverage(body)
	if err != nil {
		return nil, &Error{Kind: ErrProtocol, Op: op, Err: err}
	}
	return res, nil
}
