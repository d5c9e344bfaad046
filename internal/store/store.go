// Package store opens plotline's relational database and persists the
// writing assistant's per-book conversation history. SQLite (pure-Go
// modernc driver) is the default for single-host use; Postgres is selected
// with PLOTLINE_DB_DRIVER=postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/plotline-go/internal/logging"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the database connection settings.
type Config struct {
	// Driver is sqlite or postgres. Defaults to sqlite.
	Driver string

	// DSN is a file path (sqlite) or connection URL (postgres).
	// Use ":memory:" for an in-memory SQLite database in tests.
	DSN string

	// Logger receives GORM statement logs. Nil silences GORM.
	Logger *slog.Logger
}

// FromEnv returns a Config populated from PLOTLINE_DB_DRIVER and PLOTLINE_DB_DSN.
func FromEnv(log *slog.Logger) *Config {
	return &Config{
		Driver: os.Getenv("PLOTLINE_DB_DRIVER"),
		DSN:    os.Getenv("PLOTLINE_DB_DSN"),
		Logger: log,
	}
}

// DefaultDBPath returns the default SQLite database path, ~/.plotline/plotline.db,
// creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".plotline")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "plotline.db"), nil
}

// Open connects to the configured database and returns a GORM handle.
// Schema migration is left to the packages owning the models.
func Open(cfg *Config) (*gorm.DB, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	gormCfg := &gorm.Config{
		Logger:  logging.NewGormLogger(cfg.Logger),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			p, err := DefaultDBPath()
			if err != nil {
				return nil, err
			}
			dsn = p
		}
		return openSQLite(dsn, gormCfg)

	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store: postgres requires PLOTLINE_DB_DSN")
		}
		db, err := gorm.Open(postgres.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("store: unknown driver %q, valid values: sqlite, postgres", cfg.Driver)
	}
}

// openSQLite opens dsn with the modernc driver and hands the pool to GORM.
func openSQLite(dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	full := dsn + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	sqlDB, err := sql.Open("sqlite", full)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}
	// A single connection avoids SQLITE_BUSY and keeps ":memory:" databases coherent.
	sqlDB.SetMaxOpenConns(1)

	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", Conn: sqlDB}), gormCfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}
	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// Ping checks that the database answers within ctx.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}
