package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-liq-monitor/internal/models"
	"github.com/utrading/utrading-liq-monitor/pkg/logger"
)

// LeverageResult 调整杠杆的返回
type LeverageResult struct {
	Symbol           string
	Leverage         int
	MaxNotionalValue float64
}

// ListOpenPositions 拉取持仓，过滤数量为 0 的记录
func (c *Client) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	const op = "positionRisk"

	body, err := c.do(ctx, op, http.MethodGet, pathPositionRisk, c.signer.Sign(url.Values{}), true)
	if err != nil {
		return nil, err
	}

	positions, err := parsePositions(body)
	if err != nil {
		return nil, &Error{Kind: ErrProtocol, Op: op, Err: err}
	}
	return positions, nil
}

func parsePositions(body []byte) ([]models.Position, error) {
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, errors.New("positionRisk: expected JSON array")
	}

	var (
		out      []models.Position
		parseErr error
	)
	root.ForEach(func(_, item gjson.Result) bool {
		p, err := parsePosition(item)
		if err != nil {
			parseErr = err
			return false
		}
		if p.PositionAmount != 0 {
			out = append(out, p)
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

func parsePosition(item gjson.Result) (models.Position, error) {
	symbol := item.Get("symbol").String()
	if symbol == "" {
		return models.Position{}, errors.New("positionRisk: missing symbol")
	}

	// 未知方向原样保留，由风险评估逐条跳过
	raw := item.Get("positionSide").String()
	side, err := models.ParseSide(raw)
	if err != nil {
		logger.Warn().Str("symbol", symbol).Str("position_side", raw).Msg("unknown position side")
		side = models.Side(raw)
	}

	p := models.Position{Symbol: symbol, Side: side, MarginType: item.Get("marginType").String()}

	required := []struct {
		field string
		dst   *float64
	}{
		{"positionAmt", &p.PositionAmount},
		{"entryPrice", &p.EntryPrice},
		{"markPrice", &p.MarkPrice},
		{"liquidationPrice", &p.LiquidationPrice},
	}
	for _, f := range required {
		v := item.Get(f.field)
		if !v.Exists() {
			return models.Position{}, fmt.Errorf("positionRisk %s: missing %s", symbol, f.field)
		}
		if *f.dst, err = cast.ToFloat64E(v.String()); err != nil {
			return models.Position{}, fmt.Errorf("positionRisk %s: %s: %w", symbol, f.field, err)
		}
	}

	p.Leverage = cast.ToInt(item.Get("leverage").String())
	p.UnrealizedProfit = cast.ToFloat64(item.Get("unRealizedProfit").String())
	return p, nil
}

func parseTicker(body []byte) (float64, error) {
	v := gjson.GetBytes(body, "price")
	if !v.Exists() {
		return 0, errors.New("ticker: missing price")
	}
	price, err := cast.ToFloat64E(v.String())
	if err != nil {
		return 0, fmt.Errorf("ticker: %w", err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("ticker: non-positive price %v", price)
	}
	return price, nil
}

func parseLeverage(body []byte) (*LeverageResult, error) {
	r := gjson.ParseBytes(body)
	if !r.Get("leverage").Exists() || !r.Get("symbol").Exists() {
		return nil, errors.New("leverage: missing fields")
	}
	return &LeverageResult{
		Symbol:           r.Get("symbol").String(),
		Leverage:         int(r.Get("leverage").Int()),
		MaxNotionalValue: cast.ToFloat64(r.Get("maxNotionalValue").String()),
	}, nil
}
