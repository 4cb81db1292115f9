package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/reelguard/reelguard/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultDBName = "reelguard.db"
	defaultDBDir  = ".config/reelguard"

	// The daemon writes while CLI commands read the same file
	busyTimeoutMillis = 5000
	slowQuery         = 200 * time.Millisecond
)

type DB struct {
	*gorm.DB
}

// Option configures Connect
type Option func(*gorm.Config)

// WithLogger sends gorm's warnings, errors and slow queries to l. Without it
// the database is silent.
func WithLogger(l *log.Logger) Option {
	return func(c *gorm.Config) {
		c.Logger = logger.New(l, logger.Config{
			SlowThreshold:             slowQuery,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}
}

func GetDefaultDBPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, defaultDBDir, defaultDBName), nil
}

// dsn enables WAL and a busy timeout so a reader never fails on the
// daemon's write lock
func dsn(path string) string {
	return fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL", path, busyTimeoutMillis)
}

// Connect opens the SQLite database at dbPath, or at the default location
// when it is empty, creating the parent directory as needed
func Connect(dbPath string, opts ...Option) (*DB, error) {
	if dbPath == "" {
		var err error
		dbPath, err = GetDefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := gorm.Open(sqlite.Open(dsn(dbPath)), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	return &DB{db}, nil
}

// Initialize migrates the schema
func (db *DB) Initialize() error {
	if err := db.AutoMigrate(&models.TrackedPackage{}, &models.ActionLog{}, &models.ErrorLog{}); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
