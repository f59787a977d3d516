package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisHistoryKey = "hostingnews:runs"
	redisHistoryMax = 200
)

// RedisStore 用 Redis 字符串保存快照，列表保存执行记录
type RedisStore struct {
	Redis *redis.Client
}

var (
	_ BlobStore    = (*RedisStore)(nil)
	_ HistoryStore = (*RedisStore)(nil)
)

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis ping failed", "addr", addr, "error", err)
	}

	return &RedisStore{Redis: rdb}
}

func (s *RedisStore) GetBlob(ctx context.Context, key string) ([]byte, error) {
	bs, err := s.Redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return bs, nil
}

// PutBlob 覆盖写入，不设过期
func (s *RedisStore) PutBlob(ctx context.Context, key string, body []byte) error {
	if err := s.Redis.Set(ctx, key, body, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// SaveRun 头插并截断，只保留最近 redisHistoryMax 条
func (s *RedisStore) SaveRun(ctx context.Context, rec RunRecord) error {
	bs, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	pipe := s.Redis.TxPipeline()
	pipe.LPush(ctx, redisHistoryKey, bs)
	pipe.LTrim(ctx, redisHistoryKey, 0, redisHistoryMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save run: %w", err)
	}
	return nil
}

func (s *RedisStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > redisHistoryMax {
		limit = 20
	}
	raw, err := s.Redis.LRange(ctx, redisHistoryKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list runs: %w", err)
	}
	out := make([]RunRecord, 0, len(raw))
	for _, r := range raw {
		var rec RunRecord
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.Redis.Close()
}
