package notify

import (
	"context"
	"net/http"

	"github.com/utrading/utrading-liq-monitor/config"
	"github.com/utrading/utrading-liq-monitor/internal/auditlog"
	"github.com/utrading/utrading-liq-monitor/pkg/logger"
)

// Result 一次发送的结果
type Result int

const (
	Delivered Result = iota // 已送达通知渠道
	DryRun                  // 仅记录日志
	Fallback                // 渠道未配置，写入本地流水，本轮降级
	Failed                  // 重试耗尽仍失败
)

func (r Result) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case DryRun:
		return "dry_run"
	case Fallback:
		return "fallback"
	}
	return "failed"
}

// Dispatched 是否视为已发出，用于更新节流状态
func (r Result) Dispatched() bool {
	return r != Failed
}

// Degraded 本轮是否处于降级模式
func (r Result) Degraded() bool {
	return r == Fallback
}

// Sender 通知发送，不返回错误，失败只记录日志
type Sender interface {
	Send(ctx context.Context, msg string) Result
}

// New 按凭据与 dry-run 选择发送方式
func New(cfg config.Telegram, dryRun bool, client *http.Client, audit *auditlog.Log) Sender {
	if !cfg.Configured() {
		logger.Warn().Msg("telegram credentials missing, alerts go to the local audit log")
		return NewLogSender(audit)
	}
	if dryRun {
		logger.Info().Msg("dry run enabled, alerts are logged only")
		return NewDryRunSender(audit)
	}

	tg, err := NewTelegram(cfg, client, audit)
	if err != nil {
		logger.Error().Err(err).Msg("telegram sender init failed, alerts go to the local audit log")
		return NewLogSender(audit)
	}
	return tg
}
