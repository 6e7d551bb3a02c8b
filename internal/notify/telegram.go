package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cast"

	"github.com/utrading/utrading-liq-monitor/config"
	"github.com/utrading/utrading-liq-monitor/internal/auditlog"
	"github.com/utrading/utrading-liq-monitor/internal/monitor"
	"github.com/utrading/utrading-liq-monitor/pkg/logger"
)

// MaxMessageLength Telegram 单条消息上限
const MaxMessageLength = 4096

// Telegram 带重试的 Telegram 发送
type Telegram struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	channel  string // @channel 形式的目标
	attempts uint
	initial  time.Duration
	audit    *auditlog.Log
}

func NewTelegram(cfg config.Telegram, client *http.Client, audit *auditlog.Log) (*Telegram, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	t := &Telegram{
		attempts: uint(max(cfg.MaxAttempts, 1)),
		initial:  cfg.InitialBackoff,
		audit:    audit,
	}
	if t.initial <= 0 {
		t.initial = time.Second
	}

	if strings.HasPrefix(cfg.ChatID, "@") {
		t.channel = cfg.ChatID
	} else {
		id, err := cast.ToInt64E(cfg.ChatID)
		if err != nil {
			return nil, fmt.Errorf("telegram chat id %q: %w", cfg.ChatID, err)
		}
		t.chatID = id
	}

	// 不在构造时调用 getMe，网络不可用也能启动
	bot := &tgbotapi.BotAPI{Token: cfg.BotToken, Client: client, Buffer: 100}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot.SetAPIEndpoint(endpoint)
	t.bot = bot

	return t, nil
}

func (t *Telegram) message(text string) tgbotapi.MessageConfig {
	var m tgbotapi.MessageConfig
	if t.channel != "" {
		m = tgbotapi.NewMessageToChannel(t.channel, text)
	} else {
		m = tgbotapi.NewMessage(t.chatID, text)
	}
	m.ParseMode = tgbotapi.ModeMarkdown
	m.DisableWebPagePreview = true
	return m
}

// Send 超长消息按行拆分，每段独立重试
func (t *Telegram) Send(ctx context.Context, msg string) Result {
	for i, part := range SplitMessage(msg, MaxMessageLength) {
		if err := t.sendPart(ctx, part); err != nil {
			logger.Error().Err(err).Int("part", i+1).Uint("attempts", t.attempts).Msg("telegram delivery failed")
			if t.audit != nil {
				_ = t.audit.Append(auditlog.KindDeliveryFailed, msg)
			}
			return Failed
		}
	}
	return Delivered
}

func (t *Telegram) sendPart(ctx context.Context, text string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = t.initial << 6

	cfg := t.message(text)
	_, err := backoff.Retry(ctx, func() (tgbotapi.Message, error) {
		m, err := t.bot.Send(cfg)
		if err == nil {
			monitor.IncNotifyAttempt("ok")
			return m, nil
		}
		monitor.IncNotifyAttempt("error")

		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.RetryAfter > 0:
				return m, backoff.RetryAfter(apiErr.RetryAfter)
			case permanent(apiErr.Code):
				return m, backoff.Permanent(err)
			}
		}
		return m, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(t.attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn().Err(err).Dur("retry_in", next).Msg("telegram send failed, retrying")
		}),
	)
	return err
}

// permanent 请求本身有误，重试无意义
func permanent(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
