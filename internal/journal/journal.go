// Package journal keeps a durable history of sync cycles in SQLite.
// The journal is observability, not state: the engine treats every
// write as best-effort, and change detection never depends on it.
package journal

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (cycles + outputs)
const currentSchemaVersion = 2

// timeLayout is the stored timestamp format. Fixed-width UTC so
// lexicographic comparison in SQL matches chronological order.
const timeLayout = time.RFC3339

// Status classifies how a cycle ended.
type Status string

const (
	// StatusOK means every source synchronized.
	StatusOK Status = "ok"

	// StatusPartial means at least one source synchronized and at
	// least one failed.
	StatusPartial Status = "partial"

	// StatusFailed means no source synchronized.
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// Output is one file a cycle made visible. The JSON tags shape the
// history command's structured output.
type Output struct {
	Entity  string `json:"entity"`
	Path    string `json:"path"`
	Records int    `json:"records"`
}

// Cycle is one journal row.
type Cycle struct {
	Token       string    `json:"token"`
	StartedUTC  time.Time `json:"started_utc"`
	FinishedUTC time.Time `json:"finished_utc"`
	Status      Status    `json:"status"`
	DryRun      bool      `json:"dry_run"`
	Sources     int       `json:"sources"`
	Added       int       `json:"added"`
	Modified    int       `json:"modified"`
	Removed     int       `json:"removed"`
	Unchanged   int       `json:"unchanged"`
	Dropped     int       `json:"dropped"`
	ParseErrors int       `json:"parse_errors"`
	Error       string    `json:"error,omitempty"`
	Outputs     []Output  `json:"outputs,omitempty"`
}

// Journal provides durable storage for cycle history.
// Uses SQLite with WAL mode so the history command can read while the
// daemon writes.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path, applying
// pragmas and schema migrations. Safe to call on an existing file.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// SQLite allows one writer; a single connection avoids
	// SQLITE_BUSY between the recorder and readers in-process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure journal: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("journal schema version %d is newer than this binary supports (%d)", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	// v1 predates the unchanged count; databases created at v1 need
	// the column added, databases created now get it from the schema.
	if version == 1 {
		if _, err := db.Exec("ALTER TABLE cycles ADD COLUMN unchanged INTEGER NOT NULL DEFAULT 0"); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored timestamp %q: %w", s, err)
	}
	return t, nil
}
