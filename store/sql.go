package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// kvRecord is the key/value row model.
type kvRecord struct {
	Key       string `gorm:"primaryKey;size:512"`
	Value     string
	UpdatedAt time.Time
}

func (kvRecord) TableName() string { return "agentkit_kv" }

// SQLStore persists values in a relational database through gorm. It is used
// with the pure-Go sqlite driver by default; any gorm dialector works.
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) a sqlite database at path and migrates
// the key/value table. Use ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	return NewSQLStore(db, logger)
}

// NewSQLStore wraps an existing gorm handle.
func NewSQLStore(db *gorm.DB, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&kvRecord{}); err != nil {
		return nil, fmt.Errorf("migrate kv table: %w", err)
	}
	return &SQLStore{
		db:     db,
		logger: logger.With(zap.String("component", "sql_store")),
	}, nil
}

func (s *SQLStore) GetString(ctx context.Context, key string) (string, error) {
	var rec kvRecord
	err := s.db.WithContext(ctx).First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		s.logger.Error("sql get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("sql get: %w", err)
	}
	return rec.Value, nil
}

func (s *SQLStore) SetString(ctx context.Context, key, value string) error {
	rec := kvRecord{Key: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Save(&rec).Error
	if err != nil {
		s.logger.Error("sql set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("sql set: %w", err)
	}
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&kvRecord{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("sql delete: %w", err)
	}
	return nil
}
