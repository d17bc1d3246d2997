// Package mapserver exposes the meeting-map pipeline and its run history as MCP tools.
package mapserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
	"github.com/anatolykoptev/go_meetmap/internal/engine/meetings"
	"github.com/anatolykoptev/go_meetmap/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrBuildRunning is returned when a map build is requested while another is in progress.
var ErrBuildRunning = errors.New("a map build is already running")

// Server holds what the tools need. PipelineFor and FetchVideos are injected
// by main so the tools never read configuration themselves.
type Server struct {
	Store       meetings.Store
	PipelineFor func(in BuildInput) (*meetings.Pipeline, error)
	FetchVideos func(ctx context.Context, ids []string) []engine.Video
	BaseFileURL string

	building sync.Mutex
}

// RegisterTools registers the meeting-map tools on server:
// meeting_map_build, meeting_addresses, meeting_runs, meeting_address_history.
func RegisterTools(server *mcp.Server, s *Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "meeting_map_build",
		Description: "Build the town meeting map: fetch recordings (and agendas when enabled), extract street addresses, geocode them, and write the Leaflet HTML map. Returns the map path, counts, and addresses that could not be located. Only one build runs at a time.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input BuildInput) (*mcp.CallToolResult, BuildOutput, error) {
		out, err := s.Build(ctx, input)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "meeting_addresses",
		Description: "Extract street addresses from meeting recordings and group the meetings by address, without geocoding. Pass video IDs/URLs to resolve, or inline videos with title and description.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input AddressesInput) (*mcp.CallToolResult, AddressesOutput, error) {
		out, err := s.Addresses(ctx, input)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "meeting_runs",
		Description: "List recent map builds, newest first, with counts, status, and the error of failed runs.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input RunsInput) (*mcp.CallToolResult, RunsOutput, error) {
		out, err := s.Runs(ctx, input)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "meeting_address_history",
		Description: "Show every recorded meeting that mentioned an address across past map builds (case-insensitive exact match), with coordinates and links.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
		out, err := s.AddressHistory(ctx, input)
		return nil, out, err
	})
}

// Build runs the pipeline once.
func (s *Server) Build(ctx context.Context, input BuildInput) (BuildOutput, error) {
	if s.PipelineFor == nil {
		return BuildOutput{}, errors.New("map builds are not configured")
	}
	if !s.building.TryLock() {
		return BuildOutput{}, ErrBuildRunning
	}
	defer s.building.Unlock()

	input.VideoIDs = toolutil.NormVideoIDs(input.VideoIDs)
	p, err := s.PipelineFor(input)
	if err != nil {
		return BuildOutput{}, err
	}
	res, err := p.Run(ctx)
	if err != nil {
		return BuildOutput{}, fmt.Errorf("build failed: %w", err)
	}
	slog.Info("meeting_map_build: done", slog.Int64("run", res.Run.ID), slog.Int("markers", res.Run.Markers))
	return BuildOutput{
		RunID:     res.Run.ID,
		MapPath:   res.Run.MapPath,
		Videos:    res.Run.Videos,
		Addresses: res.Run.Addresses,
		Markers:   res.Run.Markers,
		Skipped:   res.Skipped,
	}, nil
}

// Addresses groups videos by the addresses in their descriptions.
func (s *Server) Addresses(ctx context.Context, input AddressesInput) (AddressesOutput, error) {
	ids := toolutil.NormVideoIDs(input.VideoIDs)
	if len(ids) == 0 && len(input.Videos) == 0 {
		return AddressesOutput{}, errors.New("video_ids or videos is required")
	}

	videos := make([]engine.Video, 0, len(ids)+len(input.Videos))
	if len(ids) > 0 {
		if s.FetchVideos == nil {
			return AddressesOutput{}, errors.New("video lookup is not configured")
		}
		key := engine.CacheKey("meeting_addresses", strings.Join(ids, ","))
		// FetchVideos drops ids it could not resolve; only complete lists are cached.
		fetched, err := toolutil.CachedIf(ctx, key, func(ctx context.Context) ([]engine.Video, error) {
			return s.FetchVideos(ctx, ids), nil
		}, func(v []engine.Video) bool { return len(v) == len(ids) })
		if err != nil {
			return AddressesOutput{}, err
		}
		videos = append(videos, fetched...)
	}
	for _, v := range input.Videos {
		videos = append(videos, engine.Video{ID: v.ID, Title: v.Title, Description: v.Description})
	}

	groups := meetings.GroupByAddress(videos, s.BaseFileURL).Groups()
	return AddressesOutput{Videos: len(videos), Count: len(groups), Groups: groups}, nil
}

// Runs lists recent runs.
func (s *Server) Runs(ctx context.Context, input RunsInput) (RunsOutput, error) {
	if s.Store == nil {
		return RunsOutput{}, errors.New("run history is not configured")
	}
	runs, err := s.Store.ListRuns(ctx, toolutil.ClampLimit(input.Limit, 20, 200))
	if err != nil {
		return RunsOutput{}, err
	}
	if runs == nil {
		runs = []meetings.Run{}
	}
	return RunsOutput{Runs: runs}, nil
}

// AddressHistory returns every sighting of an address.
func (s *Server) AddressHistory(ctx context.Context, input HistoryInput) (HistoryOutput, error) {
	addr := strings.TrimSpace(input.Address)
	if addr == "" {
		return HistoryOutput{}, errors.New("address is required")
	}
	if s.Store == nil {
		return HistoryOutput{}, errors.New("run history is not configured")
	}
	sightings, err := s.Store.AddressHistory(ctx, addr)
	if err != nil {
		return HistoryOutput{}, err
	}
	if sightings == nil {
		sightings = []meetings.Sighting{}
	}
	return HistoryOutput{Address: addr, Sightings: sightings}, nil
}
