package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	_ "modernc.org/sqlite"
)

// 定长格式，保证按字符串排序即按时间排序
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	report      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// SQLiteStore 本地单文件存储，适合单机或开发环境
type SQLiteStore struct {
	DB *sql.DB
}

var (
	_ BlobStore    = (*SQLiteStore)(nil)
	_ HistoryStore = (*SQLiteStore)(nil)
)

// NewSQLiteStore path 可以是文件路径或 ":memory:"
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 单连接串行写，避免并发 worker 之间的锁冲突；":memory:" 也依赖同一连接
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{DB: db}, nil
}

func (s *SQLiteStore) GetBlob(ctx context.Context, key string) ([]byte, error) {
	var body string
	err := s.DB.QueryRowContext(ctx, `SELECT body FROM snapshots WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return []byte(body), nil
}

func (s *SQLiteStore) PutBlob(ctx context.Context, key string, body []byte) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO snapshots (key, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		key, string(body), time.Now().UTC().Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, rec RunRecord) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, status_code, report) VALUES (?, ?, ?, ?, ?)`,
		rec.ID,
		rec.StartedAt.UTC().Format(sqliteTimeLayout),
		rec.FinishedAt.UTC().Format(sqliteTimeLayout),
		rec.StatusCode,
		string(rec.Report),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status_code, report FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec               RunRecord
			started, finished string
			report            string
		)
		if err := rows.Scan(&rec.ID, &started, &finished, &rec.StatusCode, &report); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.StartedAt, _ = time.Parse(sqliteTimeLayout, started)
		rec.FinishedAt, _ = time.Parse(sqliteTimeLayout, finished)
		rec.Report = datatypes.JSON(json.RawMessage(report))
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.DB.Close()
}
