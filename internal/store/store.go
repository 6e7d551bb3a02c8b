package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/utrading/utrading-liq-monitor/config"
	"github.com/utrading/utrading-liq-monitor/pkg/logger"
)

// ErrNotFound key 不存在
var ErrNotFound = errors.New("store: key not found")

// Blob 按 key 存取字节的最小持久化接口
type Blob interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

// Open 按配置创建存储后端
func Open(cfg config.Storage) (Blob, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileBlob(cfg.Dir)
	case "sqlite", "mysql":
		return OpenSQL(cfg)
	case "redis":
		return OpenRedis(cfg)
	}
	return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
}

// OpenWithFallback 配置的后端不可用时依次退回本地文件、进程内存
// 返回的 error 为原后端的打开错误，blob 始终可用
func OpenWithFallback(cfg config.Storage) (Blob, error) {
	blob, err := Open(cfg)
	if err == nil {
		return blob, nil
	}
	logger.Error().Err(err).Str("driver", cfg.Driver).Msg("PERSISTENCE FAILURE: state store unavailable, falling back")

	if cfg.Driver != "" && cfg.Driver != "file" {
		fb, fileErr := NewFileBlob(cfg.Dir)
		if fileErr == nil {
			logger.Warn().Str("dir", cfg.Dir).Msg("using local file state store")
			return fb, err
		}
		logger.Error().Err(fileErr).Str("dir", cfg.Dir).Msg("local file state store unavailable")
	}

	logger.Warn().Msg("using in-memory state store, alert state will not survive restart")
	return NewMemoryBlob(), err
}
