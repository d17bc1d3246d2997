package mapserver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
	"github.com/anatolykoptev/go_meetmap/internal/engine/meetings"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pointGeocoder struct{}

func (pointGeocoder) Name() string { return "point" }

func (pointGeocoder) Geocode(_ context.Context, address string) (engine.Location, bool, error) {
	if address == "123 W Main St" {
		return engine.Location{Lat: 39.93, Lng: -85.85}, true, nil
	}
	return engine.Location{}, false, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	store, err := meetings.OpenSQLiteStore(filepath.Join(dir, "meetmap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &Server{
		Store:       store,
		BaseFileURL: "https://files.example.com/descriptions",
		PipelineFor: func(in BuildInput) (*meetings.Pipeline, error) {
			var src meetings.VideoSource = meetings.SeedVideos()
			if len(in.VideoIDs) > 0 {
				src = meetings.StaticSource{{ID: in.VideoIDs[0], Title: "01/05/26 - Town Council", Description: "Nothing mapped."}}
			}
			return &meetings.Pipeline{
				Videos:   src,
				Geocoder: pointGeocoder{},
				Store:    store,
				Opts: meetings.Options{
					MapOutput: filepath.Join(dir, "map.html"),
					Map:       meetings.DefaultMapOptions(),
				},
			}, nil
		},
		FetchVideos: func(_ context.Context, ids []string) []engine.Video {
			out := make([]engine.Video, 0, len(ids))
			for _, id := range ids {
				out = append(out, engine.Video{ID: id, Title: "11/26/25 - Plan Commission", Description: "Rezoning 45 Old Town Pkwy."})
			}
			return out
		},
	}
}

func TestAddressesDoesNotCachePartialFetch(t *testing.T) {
	engine.InitCache("", time.Minute, 100, time.Hour)
	s := newTestServer(t)
	calls := 0
	online := s.FetchVideos
	s.FetchVideos = func(ctx context.Context, ids []string) []engine.Video {
		calls++
		if calls == 1 {
			return nil
		}
		return online(ctx, ids)
	}
	in := AddressesInput{VideoIDs: []string{"pFetchBlip1"}}

	first, err := s.Addresses(context.Background(), in)
	require.NoError(t, err)
	assert.Zero(t, first.Videos)

	second, err := s.Addresses(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Videos)
	assert.Equal(t, 2, calls)

	_, err = s.Addresses(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "complete fetch is served from cache")
}

func TestRegisterTools(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "go_meetmap", Version: "test"}, nil)
	assert.NotPanics(t, func() { RegisterTools(server, &Server{}) })
}

func TestBuildAndHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	out, err := s.Build(ctx, BuildInput{})
	require.NoError(t, err)
	assert.NotZero(t, out.RunID)
	assert.Equal(t, 2, out.Videos)
	assert.Equal(t, 1, out.Markers)
	assert.FileExists(t, out.MapPath)

	runs, err := s.Runs(ctx, RunsInput{})
	require.NoError(t, err)
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, out.RunID, runs.Runs[0].ID)

	hist, err := s.AddressHistory(ctx, HistoryInput{Address: "  123 W Main St "})
	require.NoError(t, err)
	assert.Equal(t, "123 W Main St", hist.Address)
	require.Len(t, hist.Sightings, 1)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", hist.Sightings[0].VideoURL)

	empty, err := s.AddressHistory(ctx, HistoryInput{Address: "9 Elm St"})
	require.NoError(t, err)
	assert.NotNil(t, empty.Sightings)
	assert.Empty(t, empty.Sightings)
}

func TestBuildNormalizesVideoIDs(t *testing.T) {
	s := newTestServer(t)
	var seen []string
	next := s.PipelineFor
	s.PipelineFor = func(in BuildInput) (*meetings.Pipeline, error) {
		seen = in.VideoIDs
		return next(in)
	}
	out, err := s.Build(context.Background(), BuildInput{VideoIDs: []string{"https://youtu.be/abcdefghijk", "abcdefghijk", "junk"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"abcdefghijk"}, seen)
	assert.Zero(t, out.Markers)
}

func TestBuildRejectsConcurrent(t *testing.T) {
	s := newTestServer(t)
	s.building.Lock()
	defer s.building.Unlock()

	_, err := s.Build(context.Background(), BuildInput{})
	assert.ErrorIs(t, err, ErrBuildRunning)
}

func TestBuildNotConfigured(t *testing.T) {
	_, err := (&Server{}).Build(context.Background(), BuildInput{})
	assert.Error(t, err)
}

func TestAddresses(t *testing.T) {
	engine.InitCache("", time.Minute, 100, time.Hour)
	s := newTestServer(t)

	out, err := s.Addresses(context.Background(), AddressesInput{
		VideoIDs: []string{"https://www.youtube.com/watch?v=abcdefghijk"},
		Videos:   []VideoInput{{ID: "v2", Title: "12/15/25 - Town Council", Description: "Site plan for 45 Old Town Pkwy and 9 Elm St."}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Videos)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "45 Old Town Pkwy", out.Groups[0].Address)
	require.Len(t, out.Groups[0].Videos, 2)
	assert.Equal(t, "abcdefghijk", out.Groups[0].Videos[0].VideoID)
	assert.Equal(t, "https://files.example.com/descriptions/v2.txt", out.Groups[0].Videos[1].DescriptionFileURL)
	assert.Equal(t, "9 Elm St", out.Groups[1].Address)
}

func TestInputValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	_, err := s.Addresses(ctx, AddressesInput{VideoIDs: []string{"junk"}})
	assert.Error(t, err)

	_, err = s.AddressHistory(ctx, HistoryInput{Address: "   "})
	assert.Error(t, err)

	_, err = (&Server{}).Runs(ctx, RunsInput{})
	assert.Error(t, err)
}
