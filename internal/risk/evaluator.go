package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/utrading/utrading-liq-monitor/internal/models"
)

// ErrInvalidPosition 持仓数据无法参与风险计算
var ErrInvalidPosition = errors.New("invalid position data")

// Assessment 单个持仓的风险评估结果
type Assessment struct {
	Side        models.Side
	RiskPercent float64 // 距强平剩余比例，越小越危险
	Clamped     bool    // 原始结果为 NaN / Inf / 负数，已置 0
}

// InDanger 风险值不高于阈值即视为危险
func (a Assessment) InDanger(threshold float64) bool {
	return a.RiskPercent <= threshold
}

// ResolveSide 解析实际方向，BOTH 且数量为 0 或方向未知时返回错误
func ResolveSide(p models.Position) (models.Side, error) {
	side := p.EffectiveSide()
	if side == "" {
		return "", fmt.Errorf("%w: %s side %q with amount %v", ErrInvalidPosition, p.Symbol, p.Side, p.PositionAmount)
	}
	return side, nil
}

// CheckLiquidationPrice 强平价必须为有限正数
func CheckLiquidationPrice(p models.Position) error {
	if !finite(p.LiquidationPrice) || p.LiquidationPrice <= 0 {
		return fmt.Errorf("%w: %s liquidation price %v", ErrInvalidPosition, p.Symbol, p.LiquidationPrice)
	}
	return nil
}

// Evaluate 计算距强平的剩余比例
//
//	LONG:  (mark - liq) / (entry - liq) * 100
//	SHORT: (liq - mark) / (liq - entry) * 100
func Evaluate(p models.Position) (Assessment, error) {
	side, err := ResolveSide(p)
	if err != nil {
		return Assessment{}, err
	}
	if err = CheckLiquidationPrice(p); err != nil {
		return Assessment{}, err
	}

	var pct float64
	switch side {
	case models.SideLong:
		pct = (p.MarkPrice - p.LiquidationPrice) / (p.EntryPrice - p.LiquidationPrice) * 100
	case models.SideShort:
		pct = (p.LiquidationPrice - p.MarkPrice) / (p.LiquidationPrice - p.EntryPrice) * 100
	}

	a := Assessment{Side: side, RiskPercent: pct}
	if !finite(pct) || pct < 0 {
		a.RiskPercent = 0
		a.Clamped = true
	}
	return a, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
