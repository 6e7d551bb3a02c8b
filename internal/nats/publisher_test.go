package nats

import (
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-liq-monitor/internal/models"
)

func runServer(t *testing.T) string {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s.ClientURL()
}

func TestNewPublisher_Unreachable(t *testing.T) {
	_, err := NewPublisher("nats://127.0.0.1:1", "")
	assert.Error(t, err)
}

func TestPublisher_PublishAlert(t *testing.T) {
	url := runServer(t)

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	msgs, err := sub.SubscribeSync(DefaultSubject)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	p, err := NewPublisher(url, "")
	require.NoError(t, err)
	assert.True(t, p.IsConnected())

	event := &models.AlertEvent{
		Kind:             models.AlertHighRisk,
		Symbol:           "BTCUSDT",
		Side:             models.SideLong,
		RiskPercent:      8.5,
		EntryPrice:       50000,
		MarkPrice:        45425,
		LiquidationPrice: 45000,
		Leverage:         20,
		Delivery:         "delivered",
		Timestamp:        1780000000000,
	}
	require.NoError(t, p.PublishAlert(event))
	require.NoError(t, p.Close())

	msg, err := msgs.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var got models.AlertEvent
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, *event, got)
}

func TestPublisher_Close(t *testing.T) {
	p, err := NewPublisher(runServer(t), "custom.subject")
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.False(t, p.IsConnected())
	// 重复关闭无副作用
	require.NoError(t, p.Close())
	assert.Error(t, p.PublishAlert(&models.AlertEvent{Symbol: "BTCUSDT"}))
}
