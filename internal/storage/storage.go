package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Snapshot 一个数据源最近一次抓取的完整结果
type Snapshot struct {
	Key       string         `gorm:"primaryKey;size:255" json:"key"`
	Body      datatypes.JSON `gorm:"type:jsonb" json:"body"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// PostgresStore 快照与执行记录都落在 Postgres
type PostgresStore struct {
	DB *gorm.DB
}

var (
	_ BlobStore    = (*PostgresStore)(nil)
	_ HistoryStore = (*PostgresStore)(nil)
)

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Snapshot{}, &RunRecord{}); err != nil {
		return nil, err
	}

	return &PostgresStore{DB: db}, nil
}

func (s *PostgresStore) GetBlob(ctx context.Context, key string) ([]byte, error) {
	var snap Snapshot
	// 首次运行时快照不存在属于正常情况，不打印 record not found
	silent := s.DB.Session(&gorm.Session{Logger: s.DB.Logger.LogMode(logger.Silent)})
	err := silent.WithContext(ctx).Where("key = ?", key).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return []byte(snap.Body), nil
}

// PutBlob 写入或整体替换
func (s *PostgresStore) PutBlob(ctx context.Context, key string, body []byte) error {
	snap := Snapshot{
		Key:       key,
		Body:      datatypes.JSON(body),
		UpdatedAt: time.Now(),
	}
	if err := s.DB.WithContext(ctx).Save(&snap).Error; err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, rec RunRecord) error {
	return s.DB.WithContext(ctx).Create(&rec).Error
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	var list []RunRecord
	err := s.DB.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&list).Error
	return list, err
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
