package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverLibSQL = "libsql"
	DriverSQLite = "sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Options holds configuration for embedded database connections
type Options struct {
	Driver       string // "libsql" (default) or "sqlite"
	DatabasePath string // Path to .db file or ":memory:"
	Logger       zerolog.Logger
}

// Connect opens the database at path with the default driver.
func Connect(path string) (*sql.DB, error) {
	return ConnectWithOptions(Options{DatabasePath: path, Logger: zerolog.Nop()})
}

// ConnectWithOptions opens and verifies an embedded database.
func ConnectWithOptions(opts Options) (*sql.DB, error) {
	if opts.Driver == "" {
		opts.Driver = DriverLibSQL
	}
	if opts.DatabasePath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if opts.DatabasePath != MemoryPath {
		dir := filepath.Dir(opts.DatabasePath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
		}
	}

	var (
		db  *sql.DB
		err error
	)
	switch opts.Driver {
	case DriverLibSQL:
		if opts.DatabasePath != MemoryPath {
			if err := ensureFile(opts.DatabasePath, opts.Logger); err != nil {
				return nil, err
			}
		}
		dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-64000&_temp_store=memory",
			opts.DatabasePath)
		opts.Logger.Info().Str("dsn", dsn).Msg("connecting to embedded libsql")
		db, err = sql.Open("libsql", dsn)
	case DriverSQLite:
		opts.Logger.Info().Str("path", opts.DatabasePath).Msg("connecting to sqlite")
		db, err = sql.Open("sqlite", opts.DatabasePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", opts.Driver, err)
	}

	// Each connection to :memory: is its own database.
	if opts.DatabasePath == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := verify(db, opts.Logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureFile(path string, logger zerolog.Logger) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info().Str("path", path).Msg("database not found, creating a new one")
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("could not create db at path %s: %w", path, err)
		}
		file.Close()
	}
	return nil
}

// verify checks connectivity and JSON1 support, which the metadata store relies on.
func verify(db *sql.DB, logger zerolog.Logger) error {
	ctx := context.Background()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}

	var jsonResult string
	if err := db.QueryRowContext(ctx, `SELECT json_extract('{"test":"value"}', '$.test')`).Scan(&jsonResult); err != nil {
		logger.Warn().Err(err).Msg("JSON1 test failed")
	} else if jsonResult != "value" {
		logger.Warn().Str("result", jsonResult).Msg("JSON1 test returned unexpected result")
	}
	return nil
}
