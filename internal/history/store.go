// Package history persists resolved exchanges so a driver can review what was
// sent and heard.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"

	DefaultLimit = 50
	MaxLimit     = 500
)

var ErrPathRequired = errors.New("history: path required")

// Entry is one resolved exchange.
type Entry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExchangeID string    `gorm:"size:64;index" json:"exchange_id"`
	Direction  string    `gorm:"size:16;index" json:"direction"`
	Peer       string    `gorm:"size:128;index" json:"peer"`
	Text       string    `gorm:"type:text" json:"text"`
	Outcome    string    `gorm:"size:32" json:"outcome"`
	Succeeded  bool      `json:"succeeded"`
	Reason     string    `gorm:"size:64" json:"reason,omitempty"`
	At         time.Time `gorm:"index" json:"at"`
}

func (Entry) TableName() string {
	return "exchange_history"
}

// Store is a gorm-backed history table.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at path and migrates it.
// ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrPathRequired
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: create dir for %s: %w", path, err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.ID = 0
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("history: record %s: %w", e.ExchangeID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit = ClampLimit(limit)
	var out []Entry
	err := s.db.WithContext(ctx).
		Order("at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ClampLimit maps non-positive limits to DefaultLimit and caps at MaxLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}
