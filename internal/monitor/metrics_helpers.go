package monitor

// 便捷函数供外部调用，无需访问 Metrics 实例

// IncExchangeRequest 交易所请求计数
func IncExchangeRequest(endpoint, status string) {
	GetMetrics().IncExchangeRequest(endpoint, status)
}

// IncNotifyAttempt 通知发送尝试计数
func IncNotifyAttempt(status string) {
	GetMetrics().IncNotifyAttempt(status)
}

// IncCacheHit 增加缓存命中计数
func IncCacheHit(cacheType string) {
	GetMetrics().IncCacheHit(cacheType)
}

// IncCacheMiss 增加缓存未命中计数
func IncCacheMiss(cacheType string) {
	GetMetrics().IncCacheMiss(cacheType)
}

// SetNATSConnected NATS 连接状态
func SetNATSConnected(connected bool) {
	GetMetrics().SetNATSConnected(connected)
}

// IncEventPublished 事件发布计数
func IncEventPublished(status string) {
	GetMetrics().IncEventPublished(status)
}

// IncPersistenceError 状态存储错误计数
func IncPersistenceError(op string) {
	GetMetrics().IncPersistenceError(op)
}
