package models

import (
	"fmt"
	"strings"
)

// Side 持仓方向
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideBoth  Side = "BOTH" // 单向持仓模式，方向由数量正负决定
)

// ParseSide 解析交易所返回的 positionSide，空值视为 BOTH
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideLong:
		return SideLong, nil
	case SideShort:
		return SideShort, nil
	case SideBoth, "":
		return SideBoth, nil
	}
	return "", fmt.Errorf("unknown position side %q", s)
}

// Position 交易所返回的一条持仓
type Position struct {
	Symbol           string  `json:"symbol"`
	Side             Side    `json:"side"`
	PositionAmount   float64 `json:"position_amount"` // 带符号
	EntryPrice       float64 `json:"entry_price"`
	MarkPrice        float64 `json:"mark_price"`
	LiquidationPrice float64 `json:"liquidation_price"`
	Leverage         int     `json:"leverage"`
	UnrealizedProfit float64 `json:"unrealized_profit,omitempty"`
	MarginType       string  `json:"margin_type,omitempty"`
}

// EffectiveSide BOTH 按数量正负解析为 LONG / SHORT，数量为 0 或方向未知时返回空
func (p Position) EffectiveSide() Side {
	switch p.Side {
	case SideLong, SideShort:
		return p.Side
	case SideBoth, "":
		switch {
		case p.PositionAmount > 0:
			return SideLong
		case p.PositionAmount < 0:
			return SideShort
		}
	}
	return ""
}

// Key 持仓身份：symbol + 实际方向
func (p Position) Key() string {
	return p.Symbol + "|" + string(p.EffectiveSide())
}
