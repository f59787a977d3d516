package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore 进程内存储，用于测试和 -dry-run
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	runs  []RunRecord
}

var (
	_ BlobStore    = (*MemoryStore)(nil)
	_ HistoryStore = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) GetBlob(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bs, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(bs))
	copy(out, bs)
	return out, nil
}

func (m *MemoryStore) PutBlob(_ context.Context, key string, body []byte) error {
	cp := make([]byte, len(body))
	copy(cp, body)
	m.mu.Lock()
	m.blobs[key] = cp
	m.mu.Unlock()
	return nil
}

// Keys 已保存的 key，按字典序
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryStore) SaveRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	m.runs = append(m.runs, rec)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.runs) {
		limit = len(m.runs)
	}
	out := make([]RunRecord, 0, limit)
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
