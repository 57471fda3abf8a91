package datastore

import (
	"fmt"
	"net"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLConfig holds MySQL connection settings.
type MySQLConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// DSN renders the driver connection string.
func (c MySQLConfig) DSN() string {
	cfg := mysqldriver.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, c.Port)
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// MySQLManager owns a connection pool to a MySQL database.
type MySQLManager struct {
	db       *gorm.DB
	config   MySQLConfig
	location string // host:port/database for display
}

// NewMySQLManager connects to the configured MySQL database.
func NewMySQLManager(cfg MySQLConfig, gormCfg *gorm.Config) (*MySQLManager, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return nil, validationError(ErrNotInitialized, "database.mysql", cfg.Host+"/"+cfg.Database)
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), gormCfg)
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to open MySQL database: %w", err), "open", "",
			"host", cfg.Host, "database", cfg.Database)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "get_sql_db", "")
	}
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &MySQLManager{
		db:       db,
		config:   cfg,
		location: fmt.Sprintf("%s/%s", net.JoinHostPort(cfg.Host, cfg.Port), cfg.Database),
	}, nil
}

// Initialize creates any missing tables.
func (m *MySQLManager) Initialize() error {
	if err := m.db.AutoMigrate(models()...); err != nil {
		return dbError(fmt.Errorf("failed to migrate schema: %w", err), "auto_migrate", "high", "backend", "mysql")
	}
	return nil
}

// DB returns the underlying GORM handle.
func (m *MySQLManager) DB() *gorm.DB { return m.db }

// Path returns host:port/database.
func (m *MySQLManager) Path() string { return m.location }

// IsMySQL returns true.
func (m *MySQLManager) IsMySQL() bool { return true }

// Exists reports whether the schema has been created.
func (m *MySQLManager) Exists() bool {
	return m.db.Migrator().HasTable(&Entry{})
}

// Close closes the connection pool.
func (m *MySQLManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return dbError(err, "close", "")
	}
	return sqlDB.Close()
}

// Delete drops every managed table, children first.
func (m *MySQLManager) Delete() error {
	all := models()
	for i := len(all) - 1; i >= 0; i-- {
		if err := m.db.Migrator().DropTable(all[i]); err != nil {
			return dbError(err, "drop_table", "", "backend", "mysql")
		}
	}
	return nil
}
