package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	PipelineRuns        atomic.Int64
	PipelineErrors      atomic.Int64
	YouTubeAPIRequests  atomic.Int64
	YouTubeVideoLookups atomic.Int64
	FetchRequests       atomic.Int64
	FetchErrors         atomic.Int64
	AgendasParsed       atomic.Int64
	GeocodeRequests     atomic.Int64
	GeocodeMisses       atomic.Int64
	MarkersRendered     atomic.Int64
}

var metricKeys = []string{
	"pipeline_runs", "pipeline_errors",
	"youtube_api_requests", "youtube_video_lookups",
	"fetch_requests", "fetch_errors", "agendas_parsed",
	"geocode_requests", "geocode_misses",
	"markers_rendered",
	"cache_hits", "cache_misses",
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"pipeline_runs":         metrics.PipelineRuns.Load(),
		"pipeline_errors":       metrics.PipelineErrors.Load(),
		"youtube_api_requests":  metrics.YouTubeAPIRequests.Load(),
		"youtube_video_lookups": metrics.YouTubeVideoLookups.Load(),
		"fetch_requests":        metrics.FetchRequests.Load(),
		"fetch_errors":          metrics.FetchErrors.Load(),
		"agendas_parsed":        metrics.AgendasParsed.Load(),
		"geocode_requests":      metrics.GeocodeRequests.Load(),
		"geocode_misses":        metrics.GeocodeMisses.Load(),
		"markers_rendered":      metrics.MarkersRendered.Load(),
		"cache_hits":            hits,
		"cache_misses":          misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sub-packages.
func IncrPipelineRuns()        { metrics.PipelineRuns.Add(1) }
func IncrPipelineErrors()      { metrics.PipelineErrors.Add(1) }
func IncrYouTubeAPI()          { metrics.YouTubeAPIRequests.Add(1) }
func IncrYouTubeVideoLookup()  { metrics.YouTubeVideoLookups.Add(1) }
func IncrAgendasParsed()       { metrics.AgendasParsed.Add(1) }
func IncrGeocodeRequests()     { metrics.GeocodeRequests.Add(1) }
func IncrGeocodeMisses()       { metrics.GeocodeMisses.Add(1) }
func AddMarkersRendered(n int) { metrics.MarkersRendered.Add(int64(n)) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	} else {
		slog.Debug("operation done", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
