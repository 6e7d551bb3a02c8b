package notify

import (
	"context"

	"github.com/utrading/utrading-liq-monitor/internal/auditlog"
	"github.com/utrading/utrading-liq-monitor/internal/monitor"
	"github.com/utrading/utrading-liq-monitor/pkg/logger"
)

// LogSender 渠道未配置时写入本地流水
type LogSender struct {
	audit *auditlog.Log
}

func NewLogSender(audit *auditlog.Log) *LogSender {
	return &LogSender{audit: audit}
}

// Send 无告警流水时以 error 级别写入日志文件
func (s *LogSender) Send(_ context.Context, msg string) Result {
	if s.audit == nil {
		logger.Error().Str("kind", auditlog.KindFallback).Str("alert", msg).Msg("notification channel not configured, audit log unavailable")
		monitor.IncNotifyAttempt("fallback")
		return Fallback
	}

	logger.Warn().Str("alert", msg).Msg("notification channel not configured, alert logged locally")
	if err := s.audit.Append(auditlog.KindFallback, msg); err != nil {
		logger.Error().Err(err).Str("alert", msg).Msg("write fallback alert failed")
		monitor.IncNotifyAttempt("fallback_error")
		return Failed
	}
	monitor.IncNotifyAttempt("fallback")
	return Fallback
}

// DryRunSender 只记录不发送
type DryRunSender struct {
	audit *auditlog.Log
}

func NewDryRunSender(audit *auditlog.Log) *DryRunSender {
	return &DryRunSender{audit: audit}
}

func (s *DryRunSender) Send(_ context.Context, msg string) Result {
	logger.Info().Str("alert", msg).Msg("[dry run] notification")
	if s.audit != nil {
		if err := s.audit.Append(auditlog.KindDryRun, msg); err != nil {
			logger.Warn().Err(err).Msg("write dry run alert failed")
		}
	}
	monitor.IncNotifyAttempt("dry_run")
	return DryRun
}
