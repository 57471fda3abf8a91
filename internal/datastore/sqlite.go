package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteManager owns a file-backed SQLite database.
type SQLiteManager struct {
	db     *gorm.DB
	dbPath string
}

// NewSQLiteManager opens (creating if needed) the SQLite database at dbPath.
func NewSQLiteManager(dbPath string, gormCfg *gorm.Config) (*SQLiteManager, error) {
	if dbPath == "" {
		return nil, validationError(ErrNotInitialized, "database.sqlite.path", dbPath)
	}

	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, dbError(err, "create_database_dir", "", "path", dir)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON&_synchronous=NORMAL", dbPath)

	db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to open SQLite database: %w", err), "open", "", "path", dbPath)
	}

	return &SQLiteManager{db: db, dbPath: dbPath}, nil
}

// Initialize creates any missing tables.
func (m *SQLiteManager) Initialize() error {
	if err := m.db.AutoMigrate(models()...); err != nil {
		return dbError(fmt.Errorf("failed to migrate schema: %w", err), "auto_migrate", "high", "backend", "sqlite")
	}
	return nil
}

// DB returns the underlying GORM handle.
func (m *SQLiteManager) DB() *gorm.DB { return m.db }

// Path returns the database file path.
func (m *SQLiteManager) Path() string { return m.dbPath }

// IsMySQL returns false.
func (m *SQLiteManager) IsMySQL() bool { return false }

// Exists reports whether the database file is present.
func (m *SQLiteManager) Exists() bool {
	_, err := os.Stat(m.dbPath)
	return err == nil
}

// Close checkpoints the WAL and closes the connection.
func (m *SQLiteManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return dbError(err, "close", "")
	}
	_ = m.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error
	return sqlDB.Close()
}

// Delete closes the database and removes its files, including WAL and SHM.
func (m *SQLiteManager) Delete() error {
	if err := m.Close(); err != nil {
		return err
	}
	for _, path := range []string{m.dbPath, m.dbPath + "-wal", m.dbPath + "-shm"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return dbError(err, "delete", "", "path", path)
		}
	}
	return nil
}
