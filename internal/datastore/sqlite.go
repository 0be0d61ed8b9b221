package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/logbook/internal/conf"
	"github.com/tphakala/logbook/internal/logger"
)

// slowQueryThreshold is the duration after which a statement is logged at warn.
const slowQueryThreshold = 200 * time.Millisecond

// SQLiteStore implements Interface for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// memoryDSN is a shared in-memory database, used when the path is ":memory:".
const memoryDSN = "file::memory:?cache=shared"

// Open sets up the SQLite database connection
func (store *SQLiteStore) Open() error {
	dsn := store.dsn()
	if dsn != memoryDSN {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return dbError(fmt.Errorf("failed to create database directory: %w", err), "open", "")
		}
		// foreign keys and WAL for concurrent readers during a restore
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}

	gormLogger := logger.NewGormLoggerAdapter(GetLogger().Module("sqlite"), slowQueryThreshold)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return dbError(fmt.Errorf("failed to open SQLite database: %w", err), "open", "")
	}

	store.DB = db
	store.timeout = store.Settings.Datastore.Timeout

	if store.Settings.Datastore.AutoMigrate {
		if err := performAutoMigration(db, "SQLite", store.Settings.Backup.Enabled); err != nil {
			return err
		}
	}

	GetLogger().Info("SQLite database opened", logger.String("path", store.dsn()))
	return nil
}

func (store *SQLiteStore) dsn() string {
	path := store.Settings.Datastore.SQLite.Path
	if path == ":memory:" {
		return memoryDSN
	}
	return conf.ResolvePath(path)
}
