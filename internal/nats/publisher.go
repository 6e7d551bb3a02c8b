package nats

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/utrading/utrading-liq-monitor/internal/models"
	"github.com/utrading/utrading-liq-monitor/internal/monitor"
	"github.com/utrading/utrading-liq-monitor/pkg/logger"
)

const DefaultSubject = "liq_monitor.alert"

// Publisher NATS 告警事件发布器
type Publisher struct {
	*nats.Conn
	subject string
	mu      sync.RWMutex
	closed  bool
}

// NewPublisher 创建 NATS 发布器
func NewPublisher(url, subject string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("liq_monitor"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			monitor.SetNATSConnected(false)
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			monitor.SetNATSConnected(true)
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}

	if subject == "" {
		subject = DefaultSubject
	}

	monitor.SetNATSConnected(true)
	return &Publisher{Conn: conn, subject: subject}, nil
}

// PublishAlert 发布告警事件
func (p *Publisher) PublishAlert(event *models.AlertEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err = p.Publish(p.subject, data); err != nil {
		monitor.IncEventPublished("error")
		return err
	}
	monitor.IncEventPublished("ok")
	return nil
}

// IsConnected 检查发布器是否已连接
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed && p.Conn != nil && p.Conn.IsConnected()
}

// Close 先 flush 再关闭连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	monitor.SetNATSConnected(false)

	if p.Conn != nil {
		if err := p.Conn.FlushTimeout(2 * time.Second); err != nil {
			logger.Warn().Err(err).Msg("nats flush on close failed")
		}
		p.Conn.Close()
	}
	return nil
}
