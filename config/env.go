package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LookupFunc 与 os.LookupEnv 同签名，便于测试注入
type LookupFunc func(key string) (string, bool)

// LoadDotEnv 读取 .env 到进程环境变量，已存在的变量不会被覆盖
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv 用环境变量覆盖配置
func ApplyEnv(c *Config, lookup LookupFunc) error {
	o := overlay{lookup: lookup}

	o.str(&c.Binance.APIKey, "BINANCE_API_KEY")
	o.str(&c.Binance.SecretKey, "BINANCE_SECRET_KEY", "BINANCE_API_SECRET")
	o.str(&c.Binance.BaseURL, "BINANCE_BASE_URL")

	o.str(&c.Telegram.BotToken, "TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	o.str(&c.Telegram.ChatID, "CHAT_ID", "TELEGRAM_CHAT_ID")

	o.boolean(&c.Alert.DryRun, "DRY_RUN")
	o.float(&c.Alert.DangerThresholdPercent, "LIQ_DANGER_THRESHOLD")
	o.duration(&c.Alert.Cooldown, "ALERT_COOLDOWN")
	o.float(&c.Alert.SignificanceThreshold, "MIN_RISK_CHANGE")
	o.integer(&c.Alert.MaxPerHour, "MAX_ALERTS_PER_HOUR")

	o.duration(&c.Monitor.PollInterval, "POLL_INTERVAL")
	o.duration(&c.Monitor.CycleTimeout, "CYCLE_TIMEOUT")

	o.str(&c.Storage.Driver, "STORAGE_DRIVER")
	o.str(&c.Storage.DSN, "STORAGE_DSN")

	var proxy string
	o.str(&proxy, "HTTP_PROXY_ADDR")
	if proxy != "" {
		c.Binance.ProxyAddr = proxy
	}

	return o.err
}

type overlay struct {
	lookup LookupFunc
	err    error
}

func (o *overlay) get(keys ...string) (string, string, bool) {
	for _, k := range keys {
		if v, ok := o.lookup(k); ok && v != "" {
			return k, v, true
		}
	}
	return "", "", false
}

func (o *overlay) fail(key, raw string, err error) {
	if o.err == nil {
		o.err = fmt.Errorf("env %s=%q: %w", key, raw, err)
	}
}

func (o *overlay) str(dst *string, keys ...string) {
	if _, v, ok := o.get(keys...); ok {
		*dst = v
	}
}

func (o *overlay) boolean(dst *bool, keys ...string) {
	k, v, ok := o.get(keys...)
	if !ok {
		return
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		o.fail(k, v, err)
		return
	}
	*dst = b
}

func (o *overlay) float(dst *float64, keys ...string) {
	k, v, ok := o.get(keys...)
	if !ok {
		return
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		o.fail(k, v, err)
		return
	}
	*dst = f
}

func (o *overlay) integer(dst *int, keys ...string) {
	k, v, ok := o.get(keys...)
	if !ok {
		return
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		o.fail(k, v, err)
		return
	}
	*dst = n
}

// duration 支持 "10m" 形式，纯数字按分钟处理
func (o *overlay) duration(dst *time.Duration, keys ...string) {
	k, v, ok := o.get(keys...)
	if !ok {
		return
	}
	if n, err := cast.ToFloat64E(v); err == nil {
		*dst = time.Duration(n * float64(time.Minute))
		return
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		o.fail(k, v, err)
		return
	}
	*dst = d
}
