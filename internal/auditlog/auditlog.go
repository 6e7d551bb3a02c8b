package auditlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/utrading/utrading-liq-monitor/config"
	"github.com/utrading/utrading-liq-monitor/internal/models"
)

// 流水类型
const (
	KindEval           = "EVAL"
	KindAlert          = "ALERT"
	KindFallback       = "FALLBACK"
	KindDryRun         = "DRYRUN"
	KindDeliveryFailed = "DELIVERY_FAILED"
	KindError          = "ERROR"
)

// Log 只追加的告警流水
type Log struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// Open 按配置打开滚动文件
func Open(cfg config.Audit) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("auditlog: %w", err)
	}
	return New(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	}), nil
}

func New(w io.Writer) *Log {
	return &Log{w: w, now: time.Now}
}

// Append 写入一行：<RFC3339> <KIND> <text>，多行文本折叠为一行
func (l *Log) Append(kind, text string) error {
	text = strings.Join(strings.Fields(strings.ReplaceAll(text, "\n", " | ")), " ")

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintf(l.w, "%s %s %s\n", l.now().UTC().Format(time.RFC3339), kind, text)
	return err
}

// AppendPosition 单个持仓评估记录
func (l *Log) AppendPosition(kind string, p models.Position, side models.Side, risk float64) error {
	return l.Append(kind, FormatPosition(p, side, risk))
}

// FormatPosition SYMBOL | Side | Entry | Mark | Liq | Risk: x%
func FormatPosition(p models.Position, side models.Side, risk float64) string {
	return fmt.Sprintf("%s | %s | Entry: %s | Mark: %s | Liq: %s | Risk: %.2f%%",
		p.Symbol, side, price(p.EntryPrice), price(p.MarkPrice), price(p.LiquidationPrice), risk)
}

func price(v float64) string {
	switch {
	case v >= 1000:
		return fmt.Sprintf("%.2f", v)
	case v >= 1:
		return fmt.Sprintf("%.4f", v)
	}
	return fmt.Sprintf("%.6f", v)
}

// Close 关闭底层文件
func (l *Log) Close() error {
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
