package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/hred-go/hred/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

// FromConfig opens the configured registry. It returns a nil registry and
// no error when no DSN is configured.
func FromConfig(cfg config.RegistryConfig, logger zerolog.Logger) (RunRegistry, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	r, err := OpenRegistry(cfg.DSN, logger)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// LibSQLRegistry is a RunRegistry backed by a libsql database.
type LibSQLRegistry struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenRegistry opens or creates the registry at dsn. A bare path is opened
// as a local file; "file:", "libsql://" and "http(s)://" URLs are passed
// through to the driver.
func OpenRegistry(dsn string, logger zerolog.Logger) (*LibSQLRegistry, error) {
	if dsn == "" {
		return nil, fmt.Errorf("invalid input: registry dsn cannot be empty")
	}
	url := dsn
	if !hasScheme(dsn) {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("could not create registry directory: %w", err)
		}
		url = "file:" + dsn
	}

	db, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry %s: %w", dsn, err)
	}
	r := &LibSQLRegistry{db: db, log: logger}
	if err := r.init(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug().Str("dsn", dsn).Msg("Checkpoint registry opened")
	return r, nil
}

func hasScheme(dsn string) bool {
	for _, p := range []string{"file:", "libsql://", "http://", "https://"} {
		if strings.HasPrefix(dsn, p) {
			return true
		}
	}
	return false
}

func (r *LibSQLRegistry) init() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY UNIQUE,
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		step INTEGER NOT NULL,
		valid_cost REAL NOT NULL,
		base TEXT NOT NULL,
		saved_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	_, err = r.db.Exec(`CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints (run_id, step)`)
	if err != nil {
		return fmt.Errorf("failed to create checkpoints index: %w", err)
	}
	return nil
}

// RecordCheckpoint inserts c.
func (r *LibSQLRegistry) RecordCheckpoint(c *Checkpoint) (uuid.UUID, error) {
	if err := c.validate(); err != nil {
		return uuid.Nil, err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(
		"INSERT INTO checkpoints (id, run_id, kind, step, valid_cost, base, saved_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.ID.String(), c.RunID, string(c.Kind), c.Step, c.ValidCost, c.Base, c.SavedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	r.log.Debug().Str("run", c.RunID).Str("kind", string(c.Kind)).Int("step", c.Step).Msg("Checkpoint recorded")
	return c.ID, nil
}

// Checkpoints lists the checkpoints of runID ordered by step.
func (r *LibSQLRegistry) Checkpoints(runID string) ([]Checkpoint, error) {
	rows, err := r.db.Query(
		"SELECT id, run_id, kind, step, valid_cost, base, saved_at FROM checkpoints WHERE run_id = ? ORDER BY step ASC, saved_at ASC",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		c, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during checkpoint iteration: %w", err)
	}
	return out, nil
}

// Best returns the lowest-cost checkpoint of runID.
func (r *LibSQLRegistry) Best(runID string) (*Checkpoint, error) {
	row := r.db.QueryRow(
		"SELECT id, run_id, kind, step, valid_cost, base, saved_at FROM checkpoints WHERE run_id = ? ORDER BY valid_cost ASC, step ASC LIMIT 1",
		runID,
	)
	c, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoints, runID)
	}
	return c, err
}

// Close closes the database.
func (r *LibSQLRegistry) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(s scanner) (*Checkpoint, error) {
	var (
		c       Checkpoint
		id      string
		kind    string
		savedAt string
	)
	if err := s.Scan(&id, &c.RunID, &kind, &c.Step, &c.ValidCost, &c.Base, &savedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint ID: %w", err)
	}
	if c.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint timestamp: %w", err)
	}
	c.Kind = Kind(kind)
	return &c, nil
}
