package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utrading/utrading-liq-monitor/pkg/logger"
	"github.com/utrading/utrading-liq-monitor/pkg/safe"
)

// LoopRef 监控循环引用接口
type LoopRef interface {
	Healthy() bool
	Snapshot() any
}

// PublisherRef NATS发布器引用接口
type PublisherRef interface {
	IsConnected() bool
}

// HealthServer HTTP 健康检查和指标服务器
type HealthServer struct {
	addr      string
	loop      LoopRef
	publisher PublisherRef // 可为 nil
	server    *http.Server
	mu        sync.RWMutex
	stopping  bool
	startTime time.Time
}

// NewHealthServer 创建健康检查服务器
func NewHealthServer(addr string, loop LoopRef, publisher PublisherRef) *HealthServer {
	h := &HealthServer{
		addr:      addr,
		loop:      loop,
		publisher: publisher,
		startTime: time.Now(),
	}
	h.server = &http.Server{
		Addr:         addr,
		Handler:      h.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return h
}

// Handler 路由
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.healthHandler)
	mux.HandleFunc("/health/ready", h.readyHandler)
	mux.HandleFunc("/health/live", h.liveHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", h.statusHandler)
	return mux
}

// Start 启动HTTP服务器
func (h *HealthServer) Start() {
	logger.Info().Str("addr", h.addr).Msg("health server starting")
	safe.Go(func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("health server error")
		}
	}, func(err error) {
		logger.Error().Err(err).Msg("health server panic")
	})
}

// Stop 停止服务器
func (h *HealthServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.stopping = true
	h.mu.Unlock()
	return h.server.Shutdown(ctx)
}

// HealthStatus 健康状态结构
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Uptime  string `json:"uptime"`
	NATS    *bool  `json:"nats_connected,omitempty"`
}

func (h *HealthServer) getHealthStatus() HealthStatus {
	h.mu.RLock()
	stopping := h.stopping
	h.mu.RUnlock()

	s := HealthStatus{
		Healthy: !stopping && h.loop.Healthy(),
		Uptime:  time.Since(h.startTime).Truncate(time.Second).String(),
	}
	if h.publisher != nil {
		connected := h.publisher.IsConnected()
		s.NATS = &connected
	}
	return s
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// healthHandler 最近一轮失败时返回 503
func (h *HealthServer) healthHandler(w http.ResponseWriter, _ *http.Request) {
	status := h.getHealthStatus()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *HealthServer) readyHandler(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	stopping := h.stopping
	h.mu.RUnlock()

	if stopping {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *HealthServer) liveHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *HealthServer) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"health": h.getHealthStatus(),
		"loop":   h.loop.Snapshot(),
	})
}
