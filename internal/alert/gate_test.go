package alert

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-liq-monitor/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newGate(t *testing.T, policy Policy) (*Gate, *clock, string) {
	t.Helper()
	dir := t.TempDir()
	blob, err := store.NewFileBlob(dir)
	require.NoError(t, err)

	c := &clock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	g := NewGate(policy, blob)
	g.SetClock(c.now)
	require.NoError(t, g.Load(context.Background()))
	return g, c, dir
}

var defaultPolicy = Policy{Cooldown: 10 * time.Minute, SignificantChange: 2, MaxPerHour: 5}

func TestGate_FirstAlertAllowed(t *testing.T) {
	g, _, _ := newGate(t, defaultPolicy)

	assert.True(t, g.CanSend("BTCUSDT"))
	assert.True(t, g.CanSendRisk("BTCUSDT", 8))
}

func TestGate_CooldownSuppresses(t *testing.T) {
	g, c, _ := newGate(t, defaultPolicy)
	ctx := context.Background()

	require.NoError(t, g.RecordSent(ctx, "BTCUSDT", 8))

	c.advance(5 * time.Minute)
	assert.Equal(t, DenyCooldown, g.CheckRisk("BTCUSDT", 8.5))
	// 冷却只作用于同一 symbol
	assert.True(t, g.CanSend("ETHUSDT"))

	// 冷却边界：now - last == cooldown 放行
	c.advance(5 * time.Minute)
	assert.True(t, g.CanSend("BTCUSDT"))
}

func TestGate_SignificanceGate(t *testing.T) {
	g, c, _ := newGate(t, defaultPolicy)
	ctx := context.Background()

	require.NoError(t, g.RecordSent(ctx, "BTCUSDT", 8))
	c.advance(11 * time.Minute)

	assert.Equal(t, DenyNoProgress, g.CheckRisk("BTCUSDT", 9.5))
	assert.Equal(t, DenyNoProgress, g.CheckRisk("BTCUSDT", 6.5))
	assert.Equal(t, Allow, g.CheckRisk("BTCUSDT", 6))
	assert.Equal(t, Allow, g.CheckRisk("BTCUSDT", 10))

	// 新仓告警不看风险变化
	assert.True(t, g.CanSend("BTCUSDT"))
}

func TestGate_HourlyCap(t *testing.T) {
	g, c, _ := newGate(t, Policy{Cooldown: time.Minute, SignificantChange: 2, MaxPerHour: 3})
	ctx := context.Background()

	for _, sym := range []string{"A", "B", "C"} {
		require.True(t, g.CanSend(sym))
		require.NoError(t, g.RecordSent(ctx, sym, 5))
		c.advance(time.Minute)
	}
	assert.Equal(t, DenyRateLimit, g.Check("D"))

	// 第一条滑出窗口
	c.advance(58 * time.Minute)
	assert.Equal(t, Allow, g.Check("D"))
}

func TestGate_UnlimitedWhenCapDisabled(t *testing.T) {
	g, c, _ := newGate(t, Policy{Cooldown: 0, MaxPerHour: 0})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, g.RecordSent(ctx, "BTCUSDT", float64(i*3)))
		c.advance(time.Second)
	}
	assert.True(t, g.CanSend("BTCUSDT"))
}

func TestGate_PersistsAcrossInstances(t *testing.T) {
	g, c, dir := newGate(t, defaultPolicy)
	ctx := context.Background()
	require.NoError(t, g.RecordSent(ctx, "BTCUSDT", 8))

	blob, err := store.NewFileBlob(dir)
	require.NoError(t, err)
	reloaded := NewGate(defaultPolicy, blob)
	reloaded.SetClock(c.now)
	require.NoError(t, reloaded.Load(ctx))

	rec, ok := reloaded.Records()["BTCUSDT"]
	require.True(t, ok)
	assert.Equal(t, 8.0, rec.LastRiskValue)
	assert.True(t, rec.LastAlertTimestamp.Equal(c.t))
	assert.False(t, reloaded.CanSend("BTCUSDT"))
	assert.Equal(t, 1, reloaded.Stats()["sent_last_hour"])
}

func TestGate_StateFileFormat(t *testing.T) {
	g, _, dir := newGate(t, defaultPolicy)
	require.NoError(t, g.RecordSent(context.Background(), "BTCUSDT", 8))

	data, err := os.ReadFile(filepath.Join(dir, KeyAlertState+".json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"BTCUSDT":{"lastAlertTimestamp":"2026-05-01T08:00:00Z","lastRiskValue":8}}`, string(data))
}

func TestGate_CorruptStateTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyAlertState+".json"), []byte("garbage"), 0o644))

	blob, err := store.NewFileBlob(dir)
	require.NoError(t, err)
	g := NewGate(defaultPolicy, blob)

	assert.Error(t, g.Load(context.Background()))
	assert.Empty(t, g.Records())
	assert.True(t, g.CanSend("BTCUSDT"))
}
