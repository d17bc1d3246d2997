package meetings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps run history in PostgreSQL, for deployments that share
// history between CI runs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgresStore creates a pgx pool and runs schema migrations.
func OpenPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	schema, err := schemaFS.ReadFile("schema/postgres.sql")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("read schema: %w", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// SaveRun implements Store.
func (s *PostgresStore) SaveRun(ctx context.Context, run *Run) error {
	err := s.pool.QueryRow(ctx, `INSERT INTO meetmap_runs
		(started_at, finished_at, account, videos, addresses, markers, map_path, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		run.StartedAt, run.FinishedAt, run.Account, run.Videos, run.Addresses, run.Markers,
		run.MapPath, string(run.Status), run.Error,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("store: save run: %w", err)
	}
	return nil
}

// SaveMarkers implements Store. Rows are sent in one batch.
func (s *PostgresStore) SaveMarkers(ctx context.Context, runID int64, markers []Marker) error {
	rows := sightingRows(markers)
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`INSERT INTO meetmap_sightings
			(run_id, address, lat, lng, meeting_date, meeting_type, video_url, agenda_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			runID, r.Address, r.Location.Lat, r.Location.Lng,
			r.MeetingDate, r.MeetingType, r.VideoURL, r.AgendaURL)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("store: save sightings: %w", err)
	}
	return nil
}

// ListRuns implements Store. Most recent first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, started_at, finished_at, account, videos, addresses,
		markers, COALESCE(map_path, ''), status, COALESCE(error, '')
		FROM meetmap_runs ORDER BY id DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var status string
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Account, &r.Videos, &r.Addresses,
			&r.Markers, &r.MapPath, &status, &r.Error); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		r.Status = RunStatus(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// AddressHistory implements Store.
func (s *PostgresStore) AddressHistory(ctx context.Context, address string) ([]Sighting, error) {
	rows, err := s.pool.Query(ctx, `SELECT s.run_id, s.address, s.lat, s.lng,
		COALESCE(s.meeting_date, ''), COALESCE(s.meeting_type, ''),
		COALESCE(s.video_url, ''), COALESCE(s.agenda_url, ''), r.started_at
		FROM meetmap_sightings s JOIN meetmap_runs r ON r.id = s.run_id
		WHERE lower(s.address) = lower($1)
		ORDER BY s.run_id DESC, s.id ASC`, address)
	if err != nil {
		return nil, fmt.Errorf("store: address history: %w", err)
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var sg Sighting
		if err := rows.Scan(&sg.RunID, &sg.Address, &sg.Location.Lat, &sg.Location.Lng,
			&sg.MeetingDate, &sg.MeetingType, &sg.VideoURL, &sg.AgendaURL, &sg.RecordedAt); err != nil {
			return nil, fmt.Errorf("store: scan sighting: %w", err)
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
