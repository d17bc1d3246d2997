package meetings

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "meetmap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	start := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	first := &Run{StartedAt: start, FinishedAt: start.Add(time.Minute), Account: "anonymous", Videos: 2, Status: RunOK}
	second := &Run{StartedAt: start.Add(time.Hour), FinishedAt: start.Add(time.Hour), Account: "clerk", Status: RunFailed, Error: "fetch videos: boom"}
	require.NoError(t, s.SaveRun(ctx, first))
	require.NoError(t, s.SaveRun(ctx, second))
	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, RunFailed, runs[0].Status)
	assert.Equal(t, "fetch videos: boom", runs[0].Error)
	assert.True(t, start.Equal(runs[1].StartedAt))
	assert.Equal(t, 2, runs[1].Videos)

	runs, err = s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLiteStoreAddressHistory(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	run := &Run{StartedAt: time.Now(), FinishedAt: time.Now(), Status: RunOK}
	require.NoError(t, s.SaveRun(ctx, run))
	require.NoError(t, s.SaveMarkers(ctx, run.ID, []Marker{{
		Address:  "123 W Main St",
		Location: engine.Location{Lat: 39.93, Lng: -85.85},
		Videos: []VideoRef{
			{Meeting: Meeting{RawDate: "11/26/25", Type: "Plan Commission"}, VideoURL: "https://www.youtube.com/watch?v=abc123"},
			{Meeting: Meeting{Type: "Town Council"}, AgendaURL: "https://town.gov/a.pdf"},
		},
	}}))

	hist, err := s.AddressHistory(ctx, "123 w main st")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, run.ID, hist[0].RunID)
	assert.Equal(t, "11/26/25", hist[0].MeetingDate)
	assert.InDelta(t, 39.93, hist[0].Location.Lat, 1e-9)
	assert.Equal(t, "https://town.gov/a.pdf", hist[1].AgendaURL)

	none, err := s.AddressHistory(ctx, "9 Elm St")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0))
	assert.Equal(t, 20, clampLimit(500))
	assert.Equal(t, 5, clampLimit(5))
}
