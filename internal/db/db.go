package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/arcana/internal/config"
	"github.com/hpungsan/arcana/internal/errors"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest database schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// RecordSchemaVersion tags every persisted record. Rows written by a newer
// build are rejected on read instead of being half-decoded.
const RecordSchemaVersion = 1

// FileName is the database file inside the base directory.
const FileName = "arcana.db"

// Init initializes the SQLite database at baseDir/arcana.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.arcana.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Best-effort, may not work on all platforms
	_ = os.Chmod(baseDir, 0700)

	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the connection string apply to every pooled connection
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS daily_cards (
		  owner          TEXT PRIMARY KEY,
		  date_key       TEXT NOT NULL,
		  record_json    TEXT NOT NULL,
		  schema_version INTEGER NOT NULL,
		  updated_at     INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS readings (
		  seq            INTEGER PRIMARY KEY AUTOINCREMENT,
		  id             TEXT NOT NULL UNIQUE,
		  owner          TEXT NOT NULL,
		  spread_id      INTEGER NOT NULL,
		  spread_name    TEXT NOT NULL,
		  question       TEXT,
		  cards_json     TEXT NOT NULL,
		  notes          TEXT NOT NULL DEFAULT '',
		  schema_version INTEGER NOT NULL,
		  created_at     INTEGER NOT NULL,
		  updated_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_readings_owner_seq
		ON readings(owner, seq DESC);

		CREATE INDEX IF NOT EXISTS idx_readings_owner_spread
		ON readings(owner, spread_id, seq DESC);

		CREATE TABLE IF NOT EXISTS journal_entries (
		  seq            INTEGER PRIMARY KEY AUTOINCREMENT,
		  id             TEXT NOT NULL UNIQUE,
		  owner          TEXT NOT NULL,
		  content        TEXT NOT NULL,
		  card_id        TEXT,
		  reading_id     TEXT,
		  schema_version INTEGER NOT NULL,
		  created_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_journal_owner_seq
		ON journal_entries(owner, seq DESC);

		CREATE INDEX IF NOT EXISTS idx_journal_owner_card
		ON journal_entries(owner, card_id, seq DESC)
		WHERE card_id IS NOT NULL;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// storageErr maps driver errors onto the error taxonomy: cancellation stays
// cancellation, everything else is a retryable storage failure.
func storageErr(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return errors.NewCancelled(op)
	}
	return errors.NewStorage(fmt.Errorf("%s: %w", op, err))
}

// ErrDuplicateID is returned when an insert reuses an existing record id.
var ErrDuplicateID = &errors.ArcanaError{
	Code:    "DUPLICATE_ID",
	Status:  409,
	Message: "record id already exists",
}
