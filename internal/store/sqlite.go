// Package store persists finished session results.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/signalsfoundry/study-session-simulator/model"
)

// ErrNoResults is returned by Latest on an empty store.
var ErrNoResults = errors.New("no session results")

// ResultStore is the read/write surface shared by the SQLite and in-memory
// stores.
type ResultStore interface {
	SaveSession(ctx context.Context, rec model.SessionRecord) error
	Latest(ctx context.Context) (model.SessionRecord, error)
	List(ctx context.Context, limit int) ([]model.SessionRecord, error)
	Close() error
}

// SQLiteResultStore keeps one row per finished session.
type SQLiteResultStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteResultStore opens (creating if needed) the database at path.
func NewSQLiteResultStore(path string) (*SQLiteResultStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteResultStore{db: db, path: path}, nil
}

// Path returns the database file.
func (s *SQLiteResultStore) Path() string { return s.path }

// SaveSession appends rec.
func (s *SQLiteResultStore) SaveSession(ctx context.Context, rec model.SessionRecord) error {
	endedAt := rec.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_results (
			session_id, ended_at, scenario_value, agents_processed, active_sites,
			avg_score, studied_count, left_unstudied_count, avg_secondary_spend
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		endedAt.UTC().Format(time.RFC3339Nano),
		rec.ScenarioValue,
		rec.AgentsProcessed,
		rec.ActiveSites,
		rec.AvgScore,
		rec.StudiedCount,
		rec.LeftUnstudiedCount,
		rec.AvgSecondarySpend,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", rec.SessionID, err)
	}
	return nil
}

// Latest returns the most recently saved record.
func (s *SQLiteResultStore) Latest(ctx context.Context) (model.SessionRecord, error) {
	recs, err := s.List(ctx, 1)
	if err != nil {
		return model.SessionRecord{}, err
	}
	if len(recs) == 0 {
		return model.SessionRecord{}, ErrNoResults
	}
	return recs[0], nil
}

// List returns up to limit records, newest first. A non-positive limit
// returns every record.
func (s *SQLiteResultStore) List(ctx context.Context, limit int) ([]model.SessionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, ended_at, scenario_value, agents_processed, active_sites,
		       avg_score, studied_count, left_unstudied_count, avg_secondary_spend
		FROM session_results
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session results: %w", err)
	}
	defer rows.Close()

	var out []model.SessionRecord
	for rows.Next() {
		var (
			rec     model.SessionRecord
			endedAt string
		)
		if err := rows.Scan(
			&rec.ID, &rec.SessionID, &endedAt, &rec.ScenarioValue, &rec.AgentsProcessed,
			&rec.ActiveSites, &rec.AvgScore, &rec.StudiedCount, &rec.LeftUnstudiedCount,
			&rec.AvgSecondarySpend,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session result: %w", err)
		}
		rec.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, fmt.Errorf("session %s has malformed ended_at %q: %w", rec.SessionID, endedAt, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteResultStore) Close() error {
	return s.db.Close()
}
