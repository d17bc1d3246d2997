package meetings

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps run history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and applies the schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	schema, err := schemaFS.ReadFile("schema/sqlite.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: read schema: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SaveRun implements Store.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO runs
		(started_at, finished_at, account, videos, addresses, markers, map_path, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Account, run.Videos, run.Addresses, run.Markers,
		run.MapPath, string(run.Status), run.Error,
	)
	if err != nil {
		return fmt.Errorf("store: save run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: run id: %w", err)
	}
	run.ID = id
	return nil
}

// SaveMarkers implements Store.
func (s *SQLiteStore) SaveMarkers(ctx context.Context, runID int64, markers []Marker) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sightings
		(run_id, address, lat, lng, meeting_date, meeting_type, video_url, agenda_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range sightingRows(markers) {
		if _, err := stmt.ExecContext(ctx, runID, r.Address, r.Location.Lat, r.Location.Lng,
			r.MeetingDate, r.MeetingType, r.VideoURL, r.AgendaURL); err != nil {
			return fmt.Errorf("store: save sighting: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// ListRuns implements Store. Most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, started_at, finished_at, account, videos, addresses,
		markers, COALESCE(map_path, ''), status, COALESCE(error, '')
		FROM runs ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished, status string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Account, &r.Videos, &r.Addresses,
			&r.Markers, &r.MapPath, &status, &r.Error); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		r.Status = RunStatus(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// AddressHistory implements Store. Matching is case-insensitive; newest runs first.
func (s *SQLiteStore) AddressHistory(ctx context.Context, address string) ([]Sighting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT s.run_id, s.address, s.lat, s.lng,
		COALESCE(s.meeting_date, ''), COALESCE(s.meeting_type, ''),
		COALESCE(s.video_url, ''), COALESCE(s.agenda_url, ''), r.started_at
		FROM sightings s JOIN runs r ON r.id = s.run_id
		WHERE s.address = ? COLLATE NOCASE
		ORDER BY s.run_id DESC, s.id ASC`, address)
	if err != nil {
		return nil, fmt.Errorf("store: address history: %w", err)
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var sg Sighting
		var recorded string
		if err := rows.Scan(&sg.RunID, &sg.Address, &sg.Location.Lat, &sg.Location.Lng,
			&sg.MeetingDate, &sg.MeetingType, &sg.VideoURL, &sg.AgendaURL, &recorded); err != nil {
			return nil, fmt.Errorf("store: scan sighting: %w", err)
		}
		sg.RecordedAt, _ = time.Parse(time.RFC3339Nano, recorded)
		out = append(out, sg)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }
