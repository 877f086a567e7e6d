package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"suna-chat/internal/platform/gormlog"
)

// DSNForFile builds a go-sqlite3 DSN with WAL and a busy timeout, creating the parent dir.
func DSNForFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create sqlite dir failed: %w", err)
		}
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

// Open opens a plain database/sql handle for key-value style stores.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn, err := DSNForFile(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite failed: %w", err)
	}
	// go-sqlite3 serializes writers anyway; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite failed: %w", err)
	}
	return db, nil
}

// NewGorm opens a gorm handle on a SQLite file, used for single-node and dev deployments.
func NewGorm(ctx context.Context, path string, log *zap.Logger) (*gorm.DB, error) {
	dsn, err := DSNForFile(path)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: gormlog.New(log)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite gorm failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sqlite sql db failed: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping sqlite failed: %w", err)
	}
	return db, nil
}
