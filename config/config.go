package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Binance 交易所接入配置
type Binance struct {
	BaseURL           string        `toml:"base_url"`
	APIKey            string        `toml:"api_key"`
	SecretKey         string        `toml:"secret_key"`
	RecvWindow        int64         `toml:"recv_window"` // 毫秒
	Timeout           time.Duration `toml:"timeout"`
	ProxyAddr         string        `toml:"proxy_addr"` // SOCKS5，为空则直连
	TickerTTL         time.Duration `toml:"ticker_ttl"`
	TickerMinInterval time.Duration `toml:"ticker_min_interval"`
}

// Telegram 通知通道配置
type Telegram struct {
	BotToken       string        `toml:"bot_token"`
	ChatID         string        `toml:"chat_id"`
	APIEndpoint    string        `toml:"api_endpoint"` // 形如 https://api.telegram.org/bot%s/%s
	MaxAttempts    int           `toml:"max_attempts"`
	InitialBackoff time.Duration `toml:"initial_backoff"`
	Timeout        time.Duration `toml:"timeout"`
}

// Configured 凭据是否齐全
func (t Telegram) Configured() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Alert 告警策略
type Alert struct {
	DangerThresholdPercent float64       `toml:"danger_threshold_percent"`
	Cooldown               time.Duration `toml:"cooldown"`
	SignificanceThreshold  float64       `toml:"significance_threshold"` // 百分点
	MaxPerHour             int           `toml:"max_per_hour"`           // <=0 不限制
	DryRun                 bool          `toml:"dry_run"`
}

type Monitor struct {
	PollInterval     time.Duration `toml:"poll_interval"`
	CycleTimeout     time.Duration `toml:"cycle_timeout"`
	HealthServerAddr string        `toml:"health_server_addr"`
}

// Storage 状态存储，driver: file / sqlite / mysql / redis
type Storage struct {
	Driver        string `toml:"driver"`
	Dir           string `toml:"dir"`
	DSN           string `toml:"dsn"`
	ProxyAddr     string `toml:"proxy_addr"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	KeyPrefix     string `toml:"key_prefix"`
}

// Audit 告警流水日志
type Audit struct {
	Path       string `toml:"path"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
}

type NATS struct {
	Endpoint string `toml:"endpoint"` // 为空则不发布
	Subject  string `toml:"subject"`
}

type Logger struct {
	Level      string `toml:"level"`
	Dir        string `toml:"dir"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
}

type Config struct {
	Binance  Binance  `toml:"binance"`
	Telegram Telegram `toml:"telegram"`
	Alert    Alert    `toml:"alert"`
	Monitor  Monitor  `toml:"monitor"`
	Storage  Storage  `toml:"storage"`
	Audit    Audit    `toml:"audit"`
	NATS     NATS     `toml:"nats"`
	Logger   Logger   `toml:"log"`
}

func Default() *Config {
	return &Config{
		Binance: Binance{
			BaseURL:           "https://fapi.binance.com",
			RecvWindow:        5000,
			Timeout:           10 * time.Second,
			TickerTTL:         30 * time.Second,
			TickerMinInterval: 2 * time.Second,
		},
		Telegram: Telegram{
			APIEndpoint:    "https://api.telegram.org/bot%s/%s",
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			Timeout:        10 * time.Second,
		},
		Alert: Alert{
			DangerThresholdPercent: 10,
			Cooldown:               10 * time.Minute,
			SignificanceThreshold:  2,
			MaxPerHour:             5,
		},
		Monitor: Monitor{
			PollInterval: 5 * time.Minute,
			CycleTimeout: 2 * time.Minute,
		},
		Storage: Storage{
			Driver:    "file",
			Dir:       "data",
			KeyPrefix: "liq_monitor:",
		},
		Audit: Audit{
			Path:       "logs/alerts.log",
			MaxSize:    10,
			MaxBackups: 30,
			MaxAge:     30,
		},
		NATS: NATS{
			Subject: "liq_monitor.alert",
		},
		Logger: Logger{
			Level:      "info",
			Dir:        "logs",
			MaxSize:    10,
			MaxBackups: 60,
			MaxAge:     7,
			Compress:   false,
			Console:    true,
		},
	}
}

// Load 加载配置：默认值 -> TOML 文件 -> 环境变量
// path 为空或文件不存在时仅使用默认值与环境变量
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := ApplyEnv(c, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	switch {
	case math.IsNaN(c.Alert.DangerThresholdPercent) || math.IsInf(c.Alert.DangerThresholdPercent, 0):
		return fmt.Errorf("alert.danger_threshold_percent must be finite, got %v", c.Alert.DangerThresholdPercent)
	case math.IsNaN(c.Alert.SignificanceThreshold) || math.IsInf(c.Alert.SignificanceThreshold, 0):
		return fmt.Errorf("alert.significance_threshold must be finite, got %v", c.Alert.SignificanceThreshold)
	case c.Alert.DangerThresholdPercent < 0:
		return fmt.Errorf("alert.danger_threshold_percent must be >= 0, got %v", c.Alert.DangerThresholdPercent)
	case c.Alert.Cooldown < 0:
		return fmt.Errorf("alert.cooldown must be >= 0, got %s", c.Alert.Cooldown)
	case c.Alert.SignificanceThreshold < 0:
		return fmt.Errorf("alert.significance_threshold must be >= 0, got %v", c.Alert.SignificanceThreshold)
	case c.Monitor.PollInterval <= 0:
		return fmt.Errorf("monitor.poll_interval must be > 0, got %s", c.Monitor.PollInterval)
	case c.Telegram.MaxAttempts < 1:
		return fmt.Errorf("telegram.max_attempts must be >= 1, got %d", c.Telegram.MaxAttempts)
	case c.Binance.RecvWindow <= 0:
		return fmt.Errorf("binance.recv_window must be > 0, got %d", c.Binance.RecvWindow)
	}
	return nil
}
