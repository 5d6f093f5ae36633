package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/depot/internal/plugin"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is a persisted discovery report.
type Run struct {
	ID         string       `json:"id"`
	Kind       string       `json:"kind"`
	Root       string       `json:"root"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Loaded     []string     `json:"loaded"`
	Skipped    []string     `json:"skipped"`
	Removed    []string     `json:"removed"`
	Failures   []RunFailure `json:"failures"`
}

// RunFailure is one candidate that failed during a run.
type RunFailure struct {
	Candidate string `json:"candidate"`
	Error     string `json:"error"`
}

// RunStore records discovery reports.
type RunStore struct {
	db *DB
}

// NewRunStore creates a RunStore backed by db.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// Record persists a report and its failures in one transaction.
func (s *RunStore) Record(ctx context.Context, r *plugin.Report) error {
	loaded, err := encodeNames(r.Loaded)
	if err != nil {
		return err
	}
	skipped, err := encodeNames(r.Skipped)
	if err != nil {
		return err
	}
	removed, err := encodeNames(r.Removed)
	if err != nil {
		return err
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", r.ID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO discovery_runs (id, kind, root, started_at, finished_at, loaded, skipped, removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.Root,
		r.StartedAt.UTC().Format(timeLayout),
		r.FinishedAt.UTC().Format(timeLayout),
		loaded, skipped, removed,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}

	for _, f := range r.Failures {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO discovery_failures (run_id, candidate, error) VALUES (?, ?, ?)",
			r.ID, f.Candidate, f.Error(),
		); err != nil {
			return fmt.Errorf("insert failure for run %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", r.ID, err)
	}
	s.db.log.Debug().
		Str("id", r.ID).
		Str("kind", string(r.Kind)).
		Int("failures", len(r.Failures)).
		Msg("discovery run recorded")
	return nil
}

// List returns the most recent runs, newest first. An empty kind matches
// every kind; limit <= 0 means no limit.
func (s *RunStore) List(ctx context.Context, kind string, limit int) ([]Run, error) {
	query := "SELECT id, kind, root, started_at, finished_at, loaded, skipped, removed FROM discovery_runs"
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range runs {
		failures, err := s.failures(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Failures = failures
	}
	return runs, nil
}

// Get returns a single run by ID.
func (s *RunStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.sql.QueryRowContext(ctx,
		"SELECT id, kind, root, started_at, finished_at, loaded, skipped, removed FROM discovery_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	run.Failures, err = s.failures(ctx, id)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Prune deletes all but the newest keep runs and returns how many were removed.
func (s *RunStore) Prune(ctx context.Context, keep int) (int64, error) {
	const stale = `SELECT id FROM discovery_runs WHERE id NOT IN (
		SELECT id FROM discovery_runs ORDER BY started_at DESC, rowid DESC LIMIT ?)`

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM discovery_failures WHERE run_id IN ("+stale+")", keep); err != nil {
		return 0, fmt.Errorf("prune failures: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM discovery_runs WHERE id IN ("+stale+")", keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (s *RunStore) failures(ctx context.Context, runID string) ([]RunFailure, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT candidate, error FROM discovery_failures WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("list failures for run %s: %w", runID, err)
	}
	defer rows.Close()

	out := []RunFailure{}
	for rows.Next() {
		var f RunFailure
		if err := rows.Scan(&f.Candidate, &f.Error); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run                      Run
		started, finished        string
		loaded, skipped, removed string
	)
	if err := sc.Scan(&run.ID, &run.Kind, &run.Root, &started, &finished, &loaded, &skipped, &removed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, fmt.Errorf("run not found: %w", err)
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt, _ = time.Parse(timeLayout, started)
	run.FinishedAt, _ = time.Parse(timeLayout, finished)
	for _, col := range []struct {
		raw string
		dst *[]string
	}{{loaded, &run.Loaded}, {skipped, &run.Skipped}, {removed, &run.Removed}} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return run, fmt.Errorf("decode run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

func encodeNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	return string(data), err
}
