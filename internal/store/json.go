package store

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON 以 JSON 编码存放单个值的类型化存储
type JSON[T any] struct {
	blob Blob
	key  string
	def  func() T
}

// NewJSON def 为 key 不存在或数据损坏时的默认值
func NewJSON[T any](blob Blob, key string, def func() T) *JSON[T] {
	return &JSON[T]{blob: blob, key: key, def: def}
}

func (s *JSON[T]) Key() string { return s.key }

// Load key 不存在返回默认值；读取或解码失败返回默认值和错误
func (s *JSON[T]) Load(ctx context.Context) (T, error) {
	data, err := s.blob.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return s.def(), nil
	}
	if err != nil {
		return s.def(), fmt.Errorf("store: read %s: %w", s.key, err)
	}

	v := s.def()
	if err = json.Unmarshal(data, &v); err != nil {
		return s.def(), fmt.Errorf("store: decode %s: %w", s.key, err)
	}
	return v, nil
}

func (s *JSON[T]) Save(ctx context.Context, v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", s.key, err)
	}
	if err = s.blob.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("store: write %s: %w", s.key, err)
	}
	return nil
}
