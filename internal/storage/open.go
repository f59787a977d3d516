package storage

import (
	"fmt"
	"io"
	"strings"
)

// Backend 一个后端同时提供快照和执行记录
type Backend interface {
	BlobStore
	HistoryStore
	io.Closer
}

// Open 按驱动名创建后端；target 对 redis 是地址，对 postgres 是 DSN，对 sqlite 是文件路径
func Open(driver, target string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "redis":
		if target == "" {
			target = "localhost:6379"
		}
		return NewRedisStore(target), nil
	case "postgres", "postgresql":
		if target == "" {
			return nil, fmt.Errorf("postgres store requires a DSN")
		}
		return NewPostgresStore(target)
	case "sqlite":
		if target == "" {
			target = "hostingnews.db"
		}
		return NewSQLiteStore(target)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
