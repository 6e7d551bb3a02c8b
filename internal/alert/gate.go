package alert

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/utrading/utrading-liq-monitor/internal/models"
	"github.com/utrading/utrading-liq-monitor/internal/store"
)

const (
	KeyAlertState  = "alert_state"
	KeyAlertWindow = "alert_window"

	rateWindow = time.Hour
)

// Policy 告警节流策略
type Policy struct {
	Cooldown          time.Duration
	SignificantChange float64 // 百分点
	MaxPerHour        int     // <=0 不限制
}

// Decision 节流判定结果
type Decision string

const (
	Allow          Decision = "allow"
	DenyCooldown   Decision = "cooldown"
	DenyRateLimit  Decision = "rate_limit"
	DenyNoProgress Decision = "insignificant"
)

// Gate 按 symbol 冷却 + 风险变化幅度 + 全局每小时上限
type Gate struct {
	policy  Policy
	records *store.JSON[map[string]models.AlertRecord]
	window  *store.JSON[[]time.Time]
	now     func() time.Time

	mu     sync.RWMutex
	state  map[string]models.AlertRecord
	recent []time.Time
}

func NewGate(policy Policy, blob store.Blob) *Gate {
	return &Gate{
		policy: policy,
		records: store.NewJSON(blob, KeyAlertState, func() map[string]models.AlertRecord {
			return map[string]models.AlertRecord{}
		}),
		window: store.NewJSON(blob, KeyAlertWindow, func() []time.Time { return []time.Time{} }),
		now:    time.Now,
		state:  map[string]models.AlertRecord{},
	}
}

// SetClock 替换时钟
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

// Load 读取持久化状态；读取失败时以空状态继续并返回错误
func (g *Gate) Load(ctx context.Context) error {
	records, recErr := g.records.Load(ctx)
	recent, winErr := g.window.Load(ctx)

	g.mu.Lock()
	g.state = records
	g.recent = recent
	g.mu.Unlock()

	if recErr != nil {
		return recErr
	}
	return winErr
}

// Check 冷却与全局上限判定，适用于所有告警
func (g *Gate) Check(symbol string) Decision {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.check(symbol, g.now())
}

// CheckRisk 在 Check 的基础上要求风险变化达到阈值
func (g *Gate) CheckRisk(symbol string, risk float64) Decision {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if d := g.check(symbol, g.now()); d != Allow {
		return d
	}
	rec, ok := g.state[symbol]
	if ok && math.Abs(risk-rec.LastRiskValue) < g.policy.SignificantChange {
		return DenyNoProgress
	}
	return Allow
}

// CanSend 冷却与全局上限是否放行
func (g *Gate) CanSend(symbol string) bool {
	return g.Check(symbol) == Allow
}

// CanSendRisk 高风险告警是否放行
func (g *Gate) CanSendRisk(symbol string, risk float64) bool {
	return g.CheckRisk(symbol, risk) == Allow
}

func (g *Gate) check(symbol string, now time.Time) Decision {
	if rec, ok := g.state[symbol]; ok && now.Sub(rec.LastAlertTimestamp) < g.policy.Cooldown {
		return DenyCooldown
	}
	if g.policy.MaxPerHour > 0 && g.countSince(now.Add(-rateWindow)) >= g.policy.MaxPerHour {
		return DenyRateLimit
	}
	return Allow
}

func (g *Gate) countSince(since time.Time) int {
	n := 0
	for _, ts := range g.recent {
		if ts.After(since) {
			n++
		}
	}
	return n
}

// RecordSent 记录一次已发送的告警并立即持久化
func (g *Gate) RecordSent(ctx context.Context, symbol string, risk float64) error {
	now := g.now().UTC()

	g.mu.Lock()
	g.state[symbol] = models.AlertRecord{LastAlertTimestamp: now, LastRiskValue: risk}

	recent := make([]time.Time, 0, len(g.recent)+1)
	for _, ts := range g.recent {
		if ts.After(now.Add(-rateWindow)) {
			recent = append(recent, ts)
		}
	}
	g.recent = append(recent, now)

	records := make(map[string]models.AlertRecord, len(g.state))
	for k, v := range g.state {
		records[k] = v
	}
	window := append([]time.Time(nil), g.recent...)
	g.mu.Unlock()

	if err := g.records.Save(ctx, records); err != nil {
		return err
	}
	return g.window.Save(ctx, window)
}

// Records 当前状态副本
func (g *Gate) Records() map[string]models.AlertRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]models.AlertRecord, len(g.state))
	for k, v := range g.state {
		out[k] = v
	}
	return out
}

// Stats 供状态接口展示
func (g *Gate) Stats() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return map[string]any{
		"symbols":        len(g.state),
		"sent_last_hour": g.countSince(g.now().Add(-rateWindow)),
		"max_per_hour":   g.policy.MaxPerHour,
		"cooldown":       g.policy.Cooldown.String(),
	}
}
