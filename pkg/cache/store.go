package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 键不存在或已过期
var ErrNotFound = errors.New("cache: key not found")

// Store 带 TTL 的键值存储。验证码等短生命周期数据走这里，
// redis 实现用于多实例部署，内存实现用于单进程部署（重启后数据丢失）
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
