package manager

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utrading/utrading-liq-monitor/config"
	"github.com/utrading/utrading-liq-monitor/internal/alert"
	"github.com/utrading/utrading-liq-monitor/internal/auditlog"
	"github.com/utrading/utrading-liq-monitor/internal/models"
	"github.com/utrading/utrading-liq-monitor/internal/monitor"
	"github.com/utrading/utrading-liq-monitor/internal/notify"
	"github.com/utrading/utrading-liq-monitor/internal/risk"
	"github.com/utrading/utrading-liq-monitor/internal/snapshot"
	"github.com/utrading/utrading-liq-monitor/internal/store"
	"github.com/utrading/utrading-liq-monitor/pkg/logger"
	"github.com/utrading/utrading-liq-monitor/pkg/safe"
)

// ErrCycleInProgress 上一轮尚未结束
var ErrCycleInProgress = errors.New("monitor cycle already in progress")

// State 检查周期状态
type State string

const (
	StateIdle       State = "IDLE"
	StateFetching   State = "FETCHING"
	StateEvaluating State = "EVALUATING"
	StateAlerting   State = "ALERTING"
	StatePersisting State = "PERSISTING"
	StateFailed     State = "FAILED"
)

// Exchange 持仓数据来源
type Exchange interface {
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
	GetTicker(ctx context.Context, symbol string) (float64, error)
}

// EventPublisher 告警事件外发
type EventPublisher interface {
	PublishAlert(event *models.AlertEvent) error
}

// Deps 依赖注入
type Deps struct {
	Exchange  Exchange
	Gate      *alert.Gate
	Tracker   *snapshot.Tracker
	Sender    notify.Sender
	Audit     *auditlog.Log                     // 可选
	Status    *store.JSON[models.StatusReport] // 可选
	Publisher EventPublisher                    // 可选
}

// Options 周期参数
type Options struct {
	DangerThreshold float64
	PollInterval    time.Duration
	CycleTimeout    time.Duration
}

// OptionsFrom 从配置提取周期参数
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		DangerThreshold: cfg.Alert.DangerThresholdPercent,
		PollInterval:    cfg.Monitor.PollInterval,
		CycleTimeout:    cfg.Monitor.CycleTimeout,
	}
}

// CycleResult 单轮检查结果
type CycleResult struct {
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	Positions        int           `json:"positions"`
	Evaluated        int           `json:"evaluated"`
	Skipped          int           `json:"skipped"`
	NewPositions     int           `json:"new_positions"`
	AlertsSent       int           `json:"alerts_sent"`
	AlertsSuppressed int           `json:"alerts_suppressed"`
	AlertsFailed     int           `json:"alerts_failed"`
	Degraded         bool          `json:"degraded"`
	NoPositions      bool          `json:"no_positions"`
	Error            string        `json:"error,omitempty"`
}

type evaluation struct {
	pos        models.Position
	assessment risk.Assessment
}

// MonitorLoop 拉取持仓、评估风险、发送告警、持久化状态
type MonitorLoop struct {
	deps Deps
	opts Options
	now  func() time.Time

	running    atomic.Bool
	gateLoaded bool

	mu    sync.RWMutex
	state State
	last  *CycleResult
}

func NewMonitorLoop(deps Deps, opts Options) *MonitorLoop {
	return &MonitorLoop{deps: deps, opts: opts, now: time.Now, state: StateIdle}
}

func (m *MonitorLoop) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	logger.Debug().Str("from", string(prev)).Str("to", string(s)).Msg("monitor state")
}

// State 当前状态
func (m *MonitorLoop) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastResult 最近一轮结果副本
func (m *MonitorLoop) LastResult() *CycleResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return nil
	}
	r := *m.last
	return &r
}

// Healthy 尚未运行或最近一轮未失败
func (m *MonitorLoop) Healthy() bool {
	last := m.LastResult()
	return last == nil || last.Error == ""
}

// Snapshot 供 /status 展示
func (m *MonitorLoop) Snapshot() any {
	return map[string]any{
		"state":       m.State(),
		"last_cycle":  m.LastResult(),
		"alert_gate":  m.deps.Gate.Stats(),
		"danger_pct":  m.opts.DangerThreshold,
		"poll_period": m.opts.PollInterval.String(),
	}
}

// Run 立即执行一轮，之后按 PollInterval 执行，直到 ctx 取消
// 周期不会重叠，执行期间到期的 tick 被丢弃
func (m *MonitorLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	logger.Info().Dur("interval", m.opts.PollInterval).Msg("monitor loop started")

	for {
		if _, err := m.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("monitor cycle failed")
		}

		select {
		case <-ticker.C:
		default:
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("monitor loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce 执行一轮检查；仅在拉取持仓失败时返回错误
func (m *MonitorLoop) RunOnce(ctx context.Context) (*CycleResult, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer m.running.Store(false)

	if m.opts.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.CycleTimeout)
		defer cancel()
	}

	res := &CycleResult{StartedAt: m.now()}
	err := m.cycle(ctx, res)
	res.Duration = m.now().Sub(res.StartedAt)

	metrics := monitor.GetMetrics()
	metrics.ObserveCycleDuration(res.Duration.Seconds())
	switch {
	case err != nil:
		res.Error = err.Error()
		metrics.IncCycle("failed")
	case res.Degraded:
		metrics.IncCycle("degraded")
	default:
		metrics.IncCycle("ok")
	}

	m.mu.Lock()
	m.last = res
	m.mu.Unlock()
	m.setState(StateIdle)

	return res, err
}

func (m *MonitorLoop) cycle(ctx context.Context, res *CycleResult) error {
	m.setState(StateFetching)
	positions, err := m.deps.Exchange.ListOpenPositions(ctx)
	if err != nil {
		m.setState(StateFailed)
		logger.Error().Err(err).Msg("fetch positions failed, state left untouched")
		m.audit(auditlog.KindError, "fetch positions: "+err.Error())
		return fmt.Errorf("fetch positions: %w", err)
	}

	res.Positions = len(positions)
	monitor.GetMetrics().SetOpenPositions(len(positions))
	monitor.GetMetrics().ResetRisk()

	if len(positions) == 0 {
		res.NoPositions = true
		logger.Info().Msg("no open positions")

		m.setState(StatePersisting)
		if err = m.deps.Tracker.Clear(ctx); err != nil {
			m.persistFailed("clear snapshot", err)
		}
		m.writeStatus(ctx, nil, res)
		return nil
	}

	m.loadGate(ctx)
	previous, err := m.deps.Tracker.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("load position snapshot failed, treating all positions as known-empty")
		monitor.GetMetrics().IncPersistenceError("read")
	}

	m.setState(StateEvaluating)
	evals, tracked, unpriced := m.evaluate(ctx, positions, res)
	tracked = append(tracked, known(unpriced, previous)...)

	m.setState(StateAlerting)
	evaluated := make([]models.Position, len(evals))
	byKey := make(map[string]evaluation, len(evals))
	for i, ev := range evals {
		evaluated[i] = ev.pos
		byKey[ev.pos.Key()] = ev
	}

	added := snapshot.Diff(evaluated, previous)
	res.NewPositions = len(added)
	for _, p := range added {
		ev := byKey[p.Key()]
		m.isolate(p.Symbol, "new position alert", func() error {
			m.alertNewPosition(ctx, ev, res)
			return nil
		})
	}
	for _, ev := range evals {
		if !ev.assessment.InDanger(m.opts.DangerThreshold) {
			continue
		}
		m.isolate(ev.pos.Symbol, "risk alert", func() error {
			m.alertHighRisk(ctx, ev, res)
			return nil
		})
	}

	m.setState(StatePersisting)
	if err = m.deps.Tracker.Persist(ctx, tracked); err != nil {
		m.persistFailed("persist snapshot", err)
	}
	m.writeStatus(ctx, evals, res)

	logger.Info().
		Int("positions", res.Positions).
		Int("evaluated", res.Evaluated).
		Int("skipped", res.Skipped).
		Int("new", res.NewPositions).
		Int("alerts", res.AlertsSent).
		Bool("degraded", res.Degraded).
		Msg("monitor cycle finished")
	return nil
}

func (m *MonitorLoop) loadGate(ctx context.Context) {
	if m.gateLoaded {
		return
	}
	if err := m.deps.Gate.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("load alert state failed, starting with empty state")
		monitor.GetMetrics().IncPersistenceError("read")
	}
	m.gateLoaded = true
}

// evaluate 返回可评估的持仓、需写入快照的持仓，以及标记价无法获取的持仓
// 强平价无效的持仓仍写入快照；标记价缺失的持仓由调用方决定是否写入
func (m *MonitorLoop) evaluate(ctx context.Context, positions []models.Position, res *CycleResult) ([]evaluation, []models.Position, []models.Position) {
	var (
		evals    []evaluation
		tracked  []models.Position
		unpriced []models.Position
	)

	for _, p := range positions {
		var ev *evaluation
		skipped := m.isolate(p.Symbol, "evaluate", func() error {
			if _, err := risk.ResolveSide(p); err != nil {
				logger.Warn().Err(err).Str("symbol", p.Symbol).Msg("skip position without direction")
				monitor.GetMetrics().IncSkippedPosition("no_side")
				return err
			}
			if err := risk.CheckLiquidationPrice(p); err != nil {
				tracked = append(tracked, p)
				logger.Debug().Str("symbol", p.Symbol).Float64("liq", p.LiquidationPrice).Msg("skip position without liquidation price")
				monitor.GetMetrics().IncSkippedPosition("no_liquidation_price")
				return err
			}

			if !(p.MarkPrice > 0) || math.IsInf(p.MarkPrice, 0) {
				price, err := m.deps.Exchange.GetTicker(ctx, p.Symbol)
				if err != nil {
					unpriced = append(unpriced, p)
					logger.Warn().Err(err).Str("symbol", p.Symbol).Msg("mark price unavailable")
					monitor.GetMetrics().IncSkippedPosition("no_mark_price")
					return err
				}
				p.MarkPrice = price
			}
			tracked = append(tracked, p)

			a, err := risk.Evaluate(p)
			if err != nil {
				monitor.GetMetrics().IncSkippedPosition("invalid")
				return err
			}
			if a.Clamped {
				logger.Warn().Str("symbol", p.Symbol).Str("side", string(a.Side)).Msg("risk calculation invalid, clamped to 0")
			}

			m.audit(auditlog.KindEval, auditlog.FormatPosition(p, a.Side, a.RiskPercent))
			monitor.GetMetrics().SetRisk(p.Symbol, string(a.Side), a.RiskPercent)
			logger.Info().
				Str("symbol", p.Symbol).
				Str("side", string(a.Side)).
				Float64("risk_pct", a.RiskPercent).
				Bool("danger", a.InDanger(m.opts.DangerThreshold)).
				Msg("position evaluated")

			ev = &evaluation{pos: p, assessment: a}
			return nil
		}) != nil

		if skipped || ev == nil {
			res.Skipped++
			continue
		}
		res.Evaluated++
		evals = append(evals, *ev)
	}
	return evals, tracked, unpriced
}

// known 返回已在上次快照中的持仓；新持仓不写入快照，待下一轮可评估时再提醒
func known(positions, previous []models.Position) []models.Position {
	fresh := make(map[string]bool)
	for _, p := range snapshot.Diff(positions, previous) {
		fresh[p.Key()] = true
	}
	var out []models.Position
	for _, p := range positions {
		if !fresh[p.Key()] {
			out = append(out, p)
		}
	}
	return out
}

func (m *MonitorLoop) alertNewPosition(ctx context.Context, ev evaluation, res *CycleResult) {
	if d := m.deps.Gate.Check(ev.pos.Symbol); d != alert.Allow {
		m.suppressed(models.AlertNewPosition, ev, d, res)
		return
	}
	msg := notify.NewPositionMessage(ev.pos, ev.assessment.Side, ev.assessment.RiskPercent)
	m.dispatch(ctx, models.AlertNewPosition, ev, msg, res)
}

func (m *MonitorLoop) alertHighRisk(ctx context.Context, ev evaluation, res *CycleResult) {
	if d := m.deps.Gate.CheckRisk(ev.pos.Symbol, ev.assessment.RiskPercent); d != alert.Allow {
		m.suppressed(models.AlertHighRisk, ev, d, res)
		return
	}
	msg := notify.HighRiskMessage(ev.pos, ev.assessment.Side, ev.assessment.RiskPercent, m.opts.DangerThreshold)
	m.dispatch(ctx, models.AlertHighRisk, ev, msg, res)
}

func (m *MonitorLoop) suppressed(kind models.AlertKind, ev evaluation, d alert.Decision, res *CycleResult) {
	res.AlertsSuppressed++
	monitor.GetMetrics().IncAlertSuppressed(string(kind), string(d))
	logger.Debug().
		Str("symbol", ev.pos.Symbol).
		Str("kind", string(kind)).
		Str("reason", string(d)).
		Float64("risk_pct", ev.assessment.RiskPercent).
		Msg("alert suppressed")
}

func (m *MonitorLoop) dispatch(ctx context.Context, kind models.AlertKind, ev evaluation, msg string, res *CycleResult) {
	result := m.deps.Sender.Send(ctx, msg)
	monitor.GetMetrics().IncAlert(string(kind), result.String())

	if result.Degraded() {
		res.Degraded = true
	}
	if !result.Dispatched() {
		res.AlertsFailed++
		return
	}
	res.AlertsSent++

	m.audit(auditlog.KindAlert, string(kind)+" "+auditlog.FormatPosition(ev.pos, ev.assessment.Side, ev.assessment.RiskPercent))
	if err := m.deps.Gate.RecordSent(ctx, ev.pos.Symbol, ev.assessment.RiskPercent); err != nil {
		m.persistFailed("record alert", err)
	}

	if m.deps.Publisher != nil {
		event := &models.AlertEvent{
			Kind:             kind,
			Symbol:           ev.pos.Symbol,
			Side:             ev.assessment.Side,
			RiskPercent:      ev.assessment.RiskPercent,
			EntryPrice:       ev.pos.EntryPrice,
			MarkPrice:        ev.pos.MarkPrice,
			LiquidationPrice: ev.pos.LiquidationPrice,
			Leverage:         ev.pos.Leverage,
			Delivery:         result.String(),
			Timestamp:        m.now().UnixMilli(),
		}
		if err := m.deps.Publisher.PublishAlert(event); err != nil {
			logger.Warn().Err(err).Str("symbol", ev.pos.Symbol).Msg("publish alert event failed")
		}
	}
}

func (m *MonitorLoop) writeStatus(ctx context.Context, evals []evaluation, res *CycleResult) {
	if m.deps.Status == nil {
		return
	}

	report := models.StatusReport{
		GeneratedAt:     m.now().UTC(),
		DangerThreshold: m.opts.DangerThreshold,
		Positions:       make([]models.PositionStatus, 0, len(evals)),
		Skipped:         res.Skipped,
		Degraded:        res.Degraded,
	}
	for _, ev := range evals {
		report.Positions = append(report.Positions, models.PositionStatus{
			Symbol:           ev.pos.Symbol,
			Side:             ev.assessment.Side,
			PositionAmount:   ev.pos.PositionAmount,
			EntryPrice:       ev.pos.EntryPrice,
			MarkPrice:        ev.pos.MarkPrice,
			LiquidationPrice: ev.pos.LiquidationPrice,
			Leverage:         ev.pos.Leverage,
			RiskPercent:      ev.assessment.RiskPercent,
			InDanger:         ev.assessment.InDanger(m.opts.DangerThreshold),
		})
	}
	if err := m.deps.Status.Save(ctx, report); err != nil {
		m.persistFailed("write status", err)
	}
}

// isolate 单个持仓的错误与 panic 不影响其他持仓
func (m *MonitorLoop) isolate(symbol, step string, fn func() error) error {
	err := safe.Run(fn)
	var pe *safe.PanicError
	if errors.As(err, &pe) {
		logger.Error().Err(err).Str("symbol", symbol).Str("step", step).Msg("position handling panicked")
	}
	return err
}

func (m *MonitorLoop) persistFailed(op string, err error) {
	logger.Error().Err(err).Str("op", op).Msg("PERSISTENCE FAILURE: state not saved, next cycle may repeat alerts")
	monitor.GetMetrics().IncPersistenceError("write")
	m.audit(auditlog.KindError, op+": "+err.Error())
}

func (m *MonitorLoop) audit(kind, text string) {
	if m.deps.Audit == nil {
		return
	}
	if err := m.deps.Audit.Append(kind, text); err != nil {
		logger.Warn().Err(err).Msg("write audit log failed")
	}
}
