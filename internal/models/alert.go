package models

import "time"

// AlertKind 告警类型
type AlertKind string

const (
	AlertNewPosition AlertKind = "new_position"
	AlertHighRisk    AlertKind = "high_risk"
)

// AlertRecord 每个 symbol 最近一次告警
type AlertRecord struct {
	LastAlertTimestamp time.Time `json:"lastAlertTimestamp"`
	LastRiskValue      float64   `json:"lastRiskValue"`
}

// AlertEvent 对外发布的告警事件
type AlertEvent struct {
	Kind             AlertKind `json:"kind"`
	Symbol           string    `json:"symbol"`
	Side             Side      `json:"side"`
	RiskPercent      float64   `json:"risk_percent"`
	EntryPrice       float64   `json:"entry_price"`
	MarkPrice        float64   `json:"mark_price"`
	LiquidationPrice float64   `json:"liquidation_price"`
	Leverage         int       `json:"leverage"`
	Delivery         string    `json:"delivery"`
	Timestamp        int64     `json:"timestamp"` // 毫秒
}
