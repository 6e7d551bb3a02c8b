package store

import (
	"context"

	"github.com/patrickmn/go-cache"
)

// MemoryBlob 进程内存储，仅在持久化后端都不可用时兜底，重启后状态丢失
type MemoryBlob struct {
	c *cache.Cache
}

func NewMemoryBlob() *MemoryBlob {
	return &MemoryBlob{c: cache.New(cache.NoExpiration, 0)}
}

func (m *MemoryBlob) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v.([]byte)...), nil
}

func (m *MemoryBlob) Put(_ context.Context, key string, data []byte) error {
	m.c.Set(key, append([]byte(nil), data...), cache.NoExpiration)
	return nil
}

func (m *MemoryBlob) Close() error {
	m.c.Flush()
	return nil
}
