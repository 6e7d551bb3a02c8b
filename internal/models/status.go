package models

import "time"

// PositionStatus 状态快照中的单条持仓
type PositionStatus struct {
	Symbol           string  `json:"symbol"`
	Side             Side    `json:"side"`
	PositionAmount   float64 `json:"position_amount"`
	EntryPrice       float64 `json:"entry_price"`
	MarkPrice        float64 `json:"mark_price"`
	LiquidationPrice float64 `json:"liquidation_price"`
	Leverage         int     `json:"leverage"`
	RiskPercent      float64 `json:"risk_percent"`
	InDanger         bool    `json:"in_danger"`
}

// StatusReport 每轮成功检查后写出的状态
type StatusReport struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	DangerThreshold float64          `json:"danger_threshold"`
	Positions       []PositionStatus `json:"positions"`
	Skipped         int              `json:"skipped"`
	Degraded        bool             `json:"degraded"`
}
