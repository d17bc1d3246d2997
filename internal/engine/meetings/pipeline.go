package meetings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
	"github.com/anatolykoptev/go_meetmap/internal/engine/sources"
	"golang.org/x/sync/errgroup"
)

// geocodeWorkers bounds concurrent geocoding calls.
const geocodeWorkers = 4

// Options configures a pipeline run.
type Options struct {
	DescriptionsDir    string
	DescriptionBaseURL string
	MapOutput          string
	DefaultCity        string
	DefaultState       string
	Account            string
	Map                MapOptions
}

// Pipeline turns meeting recordings (and optionally agendas) into a map.
type Pipeline struct {
	Videos   VideoSource
	Agendas  AgendaSource // nil = recordings only
	Geocoder sources.Geocoder
	Store    Store // nil = history not recorded
	Opts     Options
}

// Result is everything a run produced.
type Result struct {
	Run     Run            `json:"run"`
	Groups  []AddressGroup `json:"groups"`
	Markers []Marker       `json:"markers"`
	Skipped []string       `json:"skipped,omitempty"` // addresses with no geocode result
}

// Run executes the pipeline: fetch recordings, save descriptions, group by
// address, merge agendas, geocode, render the map, record the run.
// Per-item failures (an agenda, an address) are logged and skipped; failures
// of a whole stage abort the run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	engine.IncrPipelineRuns()
	res := &Result{Run: Run{StartedAt: time.Now(), Account: p.Opts.Account, Status: RunOK}}

	err := engine.TrackOperation(ctx, "pipeline", func(ctx context.Context) error {
		return p.run(ctx, res)
	})
	res.Run.FinishedAt = time.Now()
	if err != nil {
		engine.IncrPipelineErrors()
		res.Run.Status = RunFailed
		res.Run.Error = err.Error()
	}

	if p.Store != nil {
		// Record with a fresh context so a cancelled run is still logged.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if serr := p.record(sctx, res); serr != nil {
			slog.Warn("pipeline: run not recorded", slog.Any("error", serr))
		}
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, res *Result) error {
	if p.Videos == nil || p.Geocoder == nil {
		return errors.New("pipeline: video source and geocoder are required")
	}

	videos, err := p.Videos.Videos(ctx)
	if err != nil {
		return fmt.Errorf("fetch videos: %w", err)
	}
	res.Run.Videos = len(videos)
	slog.Info("pipeline: videos loaded", slog.Int("count", len(videos)))

	if p.Opts.DescriptionsDir != "" {
		if err := SaveDescriptions(videos, p.Opts.DescriptionsDir); err != nil {
			return err
		}
	}

	grouping := GroupByAddress(videos, p.Opts.DescriptionBaseURL)
	if p.Agendas != nil {
		agendas, err := p.Agendas.Agendas(ctx)
		if err != nil {
			// Agendas enrich the map; recordings alone still make a useful one.
			slog.Warn("pipeline: agendas unavailable", slog.Any("error", err))
		} else {
			grouping.AddAgendas(agendas)
			slog.Info("pipeline: agendas merged", slog.Int("count", len(agendas)))
		}
	}
	res.Groups = grouping.Groups()
	res.Run.Addresses = len(res.Groups)

	markers, skipped, err := p.geocode(ctx, res.Groups)
	if err != nil {
		return err
	}
	res.Markers, res.Skipped = markers, skipped
	res.Run.Markers = len(markers)

	if p.Opts.MapOutput != "" {
		if err := SaveMap(p.Opts.MapOutput, markers, p.Opts.Map); err != nil {
			return err
		}
		res.Run.MapPath = p.Opts.MapOutput
		slog.Info("pipeline: map saved", slog.String("path", p.Opts.MapOutput), slog.Int("markers", len(markers)))
	}
	return nil
}

// geocode resolves every group concurrently while keeping first-seen order.
// A provider rejection (bad key, spent quota) fails the whole run; other
// per-address errors only skip that address.
func (p *Pipeline) geocode(ctx context.Context, groups []AddressGroup) ([]Marker, []string, error) {
	type outcome struct {
		loc   engine.Location
		found bool
	}
	outcomes := make([]outcome, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(geocodeWorkers)
	for i, grp := range groups {
		g.Go(func() error {
			query := QualifyAddress(grp.Address, p.Opts.DefaultCity, p.Opts.DefaultState)
			loc, found, err := p.Geocoder.Geocode(gctx, query)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, engine.ErrProviderRejected) {
					return err
				}
				slog.Warn("pipeline: geocode failed", slog.String("address", query), slog.Any("error", err))
				return nil
			}
			if !found {
				slog.Warn("pipeline: no location found", slog.String("address", query))
			}
			outcomes[i] = outcome{loc: loc, found: found}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("geocode: %w", err)
	}

	var markers []Marker
	var skipped []string
	for i, grp := range groups {
		if !outcomes[i].found {
			skipped = append(skipped, grp.Address)
			continue
		}
		markers = append(markers, Marker{Address: grp.Address, Location: outcomes[i].loc, Videos: grp.Videos})
	}
	return markers, skipped, nil
}

func (p *Pipeline) record(ctx context.Context, res *Result) error {
	if err := p.Store.SaveRun(ctx, &res.Run); err != nil {
		return err
	}
	if len(res.Markers) == 0 {
		return nil
	}
	return p.Store.SaveMarkers(ctx, res.Run.ID, res.Markers)
}
