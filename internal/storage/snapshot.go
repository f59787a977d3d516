package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/LJTian/hostingnews/internal/collector"
)

// ErrNotFound 指定 key 的快照不存在
var ErrNotFound = errors.New("snapshot not found")

// BlobStore 按 key 读写一整块 JSON，Put 总是整体覆盖
type BlobStore interface {
	GetBlob(ctx context.Context, key string) ([]byte, error)
	PutBlob(ctx context.Context, key string, body []byte) error
}

// SnapshotStore 编排层看到的快照读写接口
type SnapshotStore interface {
	Load(ctx context.Context, key string) ([]collector.Item, error)
	Save(ctx context.Context, key string, items []collector.Item) error
}

// RunRecord 一次执行的记录
type RunRecord struct {
	ID         string         `gorm:"primaryKey;size:36" json:"runId"`
	StartedAt  time.Time      `gorm:"index" json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	StatusCode int            `json:"statusCode"`
	Report     datatypes.JSON `gorm:"type:jsonb" json:"body"`
}

// HistoryStore 保存执行记录，ListRuns 按开始时间倒序
type HistoryStore interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// Snapshots 在 BlobStore 之上做快照的 JSON 编解码
type Snapshots struct {
	blobs  BlobStore
	prefix string
}

var _ SnapshotStore = (*Snapshots)(nil)

// NewSnapshots prefix 会拼在每个快照 key 前面，可为空
func NewSnapshots(blobs BlobStore, prefix string) *Snapshots {
	return &Snapshots{blobs: blobs, prefix: prefix}
}

// Load 快照不存在时返回 ErrNotFound
func (s *Snapshots) Load(ctx context.Context, key string) ([]collector.Item, error) {
	body, err := s.blobs.GetBlob(ctx, s.prefix+key)
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(body)
}

func (s *Snapshots) Save(ctx context.Context, key string, items []collector.Item) error {
	body, err := EncodeSnapshot(items)
	if err != nil {
		return err
	}
	return s.blobs.PutBlob(ctx, s.prefix+key, body)
}

// EncodeSnapshot 序列化为缩进两格的 JSON 数组；字段按名称排序，非 ASCII 字符不转义
func EncodeSnapshot(items []collector.Item) ([]byte, error) {
	if items == nil {
		items = []collector.Item{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeSnapshot null 字段解码为空字符串
func DecodeSnapshot(body []byte) ([]collector.Item, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []collector.Item{}, nil
	}
	var items []collector.Item
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if items == nil {
		items = []collector.Item{}
	}
	return items, nil
}
