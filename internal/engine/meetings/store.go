package meetings

import (
	"context"
	"embed"
	"os"
	"path/filepath"
	"time"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// RunStatus is the outcome of a pipeline run.
type RunStatus string

const (
	RunOK     RunStatus = "ok"
	RunFailed RunStatus = "failed"
)

// Run summarizes one pipeline execution.
type Run struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Account    string    `json:"account"`
	Videos     int       `json:"videos"`
	Addresses  int       `json:"addresses"`
	Markers    int       `json:"markers"`
	MapPath    string    `json:"map_path,omitempty"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// Sighting is one reference to an address recorded by a run.
type Sighting struct {
	RunID       int64           `json:"run_id"`
	Address     string          `json:"address"`
	Location    engine.Location `json:"location"`
	MeetingDate string          `json:"meeting_date,omitempty"`
	MeetingType string          `json:"meeting_type,omitempty"`
	VideoURL    string          `json:"video_url,omitempty"`
	AgendaURL   string          `json:"agenda_url,omitempty"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// Store persists run history and the addresses each run mapped.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error // sets run.ID
	SaveMarkers(ctx context.Context, runID int64, markers []Marker) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	AddressHistory(ctx context.Context, address string) ([]Sighting, error)
	Close() error
}

// DefaultDBPath is the SQLite location used when MEETMAP_DB is unset.
func DefaultDBPath() string {
	return filepath.Join(os.Getenv("HOME"), ".go_meetmap", "meetmap.db")
}

// OpenStore opens PostgreSQL when databaseURL is set, otherwise SQLite at dbPath.
func OpenStore(ctx context.Context, databaseURL, dbPath string) (Store, error) {
	if databaseURL != "" {
		return OpenPostgresStore(ctx, databaseURL)
	}
	if dbPath == "" {
		dbPath = DefaultDBPath()
	}
	return OpenSQLiteStore(dbPath)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 20
	}
	return limit
}

// sightingRows flattens markers into one row per reference.
func sightingRows(markers []Marker) []Sighting {
	var rows []Sighting
	for _, m := range markers {
		for _, v := range m.Videos {
			rows = append(rows, Sighting{
				Address:     m.Address,
				Location:    m.Location,
				MeetingDate: v.Meeting.RawDate,
				MeetingType: v.Meeting.Type,
				VideoURL:    v.VideoURL,
				AgendaURL:   v.AgendaURL,
			})
		}
	}
	return rows
}
