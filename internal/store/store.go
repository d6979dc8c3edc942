// Package store persists runs and everything the pipeline produced for them
// using SQLite. One run fans out into phase results, task results, and
// refinement attempts; GetRun reassembles the whole record.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"symphony/internal/logging"
	"symphony/internal/types"
)

// ErrNotFound is returned when the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// LocalStore implements types.RunStore on a single SQLite file.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

var _ types.RunStore = (*LocalStore)(nil)

// NewLocalStore opens (or creates) the SQLite database at the given path and
// initializes the schema.
func NewLocalStore(path string) (*LocalStore, error) {
	logging.Store("Initializing run store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable sqlite foreign_keys: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.StoreDebug("Run store schema ready")
	return store, nil
}

func (s *LocalStore) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		brief_id TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL,
		project_type TEXT NOT NULL DEFAULT 'general',
		status TEXT NOT NULL DEFAULT 'pending',
		project_name TEXT DEFAULT '',
		project_path TEXT DEFAULT '',
		download_url TEXT DEFAULT '',
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	phaseTable := `
	CREATE TABLE IF NOT EXISTS phase_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		phase TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL,
		artifacts TEXT,
		provider TEXT DEFAULT '',
		model TEXT DEFAULT '',
		latency_ms INTEGER DEFAULT 0,
		started_at DATETIME NOT NULL,
		completed_at DATETIME NOT NULL,
		error TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_phase_run ON phase_results(run_id);
	`

	taskTable := `
	CREATE TABLE IF NOT EXISTS agent_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		task_id INTEGER NOT NULL,
		agent TEXT NOT NULL,
		status TEXT NOT NULL,
		output TEXT,
		model_used TEXT DEFAULT '',
		latency_ms INTEGER DEFAULT 0,
		error TEXT DEFAULT '',
		UNIQUE(run_id, task_id)
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_run ON agent_tasks(run_id);
	`

	refinementTable := `
	CREATE TABLE IF NOT EXISTS refinement_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		iteration INTEGER NOT NULL,
		status TEXT NOT NULL,
		errors TEXT DEFAULT '[]',
		tasks_to_fix TEXT DEFAULT '[]',
		created_at DATETIME NOT NULL,
		UNIQUE(run_id, iteration)
	);
	CREATE INDEX IF NOT EXISTS idx_refinements_run ON refinement_attempts(run_id);
	`

	for _, table := range []string{runsTable, phaseTable, taskTable, refinementTable} {
		if _, err := s.db.Exec(table); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the database file path.
func (s *LocalStore) Path() string {
	return s.dbPath
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
