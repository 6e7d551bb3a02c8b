package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, "https://fapi.binance.com", c.Binance.BaseURL)
	assert.Equal(t, int64(5000), c.Binance.RecvWindow)
	assert.Equal(t, 10.0, c.Alert.DangerThresholdPercent)
	assert.Equal(t, 10*time.Minute, c.Alert.Cooldown)
	assert.Equal(t, 2.0, c.Alert.SignificanceThreshold)
	assert.Equal(t, 5, c.Alert.MaxPerHour)
	assert.Equal(t, 3, c.Telegram.MaxAttempts)
	assert.Equal(t, time.Second, c.Telegram.InitialBackoff)
	assert.False(t, c.Telegram.Configured())
	require.NoError(t, c.Validate())
}

func TestLoad_TOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	content := `
[alert]
danger_threshold_percent = 15.5
cooldown = "30m"
dry_run = true

[storage]
driver = "sqlite"
dsn = "state.db"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15.5, c.Alert.DangerThresholdPercent)
	assert.Equal(t, 30*time.Minute, c.Alert.Cooldown)
	assert.True(t, c.Alert.DryRun)
	assert.Equal(t, "sqlite", c.Storage.Driver)
	// 未设置的字段保留默认值
	assert.Equal(t, 2.0, c.Alert.SignificanceThreshold)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Monitor.PollInterval, c.Monitor.PollInterval)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte("[alert\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	err := ApplyEnv(c, envOf(map[string]string{
		"BINANCE_API_KEY":      "key",
		"BINANCE_SECRET_KEY":   "secret",
		"TELEGRAM_BOT_TOKEN":   "123:abc",
		"TELEGRAM_CHAT_ID":     "-100200",
		"DRY_RUN":              "true",
		"LIQ_DANGER_THRESHOLD": "12.5",
		"ALERT_COOLDOWN":       "15",
		"MIN_RISK_CHANGE":      "3",
		"MAX_ALERTS_PER_HOUR":  "8",
		"POLL_INTERVAL":        "90s",
		"HTTP_PROXY_ADDR":      "127.0.0.1:1080",
	}))
	require.NoError(t, err)

	assert.Equal(t, "key", c.Binance.APIKey)
	assert.Equal(t, "secret", c.Binance.SecretKey)
	assert.True(t, c.Telegram.Configured())
	assert.True(t, c.Alert.DryRun)
	assert.Equal(t, 12.5, c.Alert.DangerThresholdPercent)
	assert.Equal(t, 15*time.Minute, c.Alert.Cooldown)
	assert.Equal(t, 3.0, c.Alert.SignificanceThreshold)
	assert.Equal(t, 8, c.Alert.MaxPerHour)
	assert.Equal(t, 90*time.Second, c.Monitor.PollInterval)
	assert.Equal(t, "127.0.0.1:1080", c.Binance.ProxyAddr)
}

func TestApplyEnv_FirstAliasWins(t *testing.T) {
	c := Default()
	require.NoError(t, ApplyEnv(c, envOf(map[string]string{
		"TELEGRAM_TOKEN":     "primary",
		"TELEGRAM_BOT_TOKEN": "secondary",
	})))
	assert.Equal(t, "primary", c.Telegram.BotToken)
}

func TestApplyEnv_BadValue(t *testing.T) {
	c := Default()
	err := ApplyEnv(c, envOf(map[string]string{"LIQ_DANGER_THRESHOLD": "ten"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIQ_DANGER_THRESHOLD")
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Monitor.PollInterval = 0
	assert.Error(t, c.Validate())

	c = Default()
	c.Alert.DangerThresholdPercent = -1
	assert.Error(t, c.Validate())

	c = Default()
	c.Telegram.MaxAttempts = 0
	assert.Error(t, c.Validate())
}

func TestValidate_NonFiniteThresholds(t *testing.T) {
	for _, raw := range []string{"NaN", "Inf", "-Inf"} {
		c := Default()
		require.NoError(t, ApplyEnv(c, envOf(map[string]string{"LIQ_DANGER_THRESHOLD": raw})), raw)
		assert.Error(t, c.Validate(), raw)

		c = Default()
		require.NoError(t, ApplyEnv(c, envOf(map[string]string{"MIN_RISK_CHANGE": raw})), raw)
		assert.Error(t, c.Validate(), raw)
	}
}
