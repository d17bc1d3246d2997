package meetings

import (
	"context"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
	"github.com/anatolykoptev/go_meetmap/internal/engine/sources"
)

// VideoSource supplies the recordings to map.
type VideoSource interface {
	Videos(ctx context.Context) ([]engine.Video, error)
}

// AgendaSource supplies agendas whose business sections are mapped alongside recordings.
type AgendaSource interface {
	Agendas(ctx context.Context) ([]engine.Agenda, error)
}

// ChannelSource lists a channel's uploads through the Data API.
type ChannelSource struct {
	ChannelID string
}

func (s ChannelSource) Videos(ctx context.Context) ([]engine.Video, error) {
	return sources.ListChannelVideos(ctx, s.ChannelID)
}

// IDSource resolves an explicit list of video IDs or URLs.
type IDSource struct {
	Fetcher *sources.VideoFetcher
	IDs     []string
}

func (s IDSource) Videos(ctx context.Context) ([]engine.Video, error) {
	return s.Fetcher.FetchVideos(ctx, s.IDs), nil
}

// StaticSource returns a fixed list, for dry runs and tests.
type StaticSource []engine.Video

func (s StaticSource) Videos(context.Context) ([]engine.Video, error) { return s, nil }

// SeedVideos is the built-in sample used when no channel or video IDs are configured.
func SeedVideos() StaticSource {
	return StaticSource{
		{
			ID:          "abc123",
			Title:       "11/26/25 - Fortville Plan Commission",
			Description: "Meeting agenda for Fortville Plan Commission. Address: 123 W Main St.",
		},
		{
			ID:          "def456",
			Title:       "12/15/25 - Fortville Town Council",
			Description: "Meeting agenda for Fortville Town Council. Address: 1500 W 1000 N.",
		},
	}
}

// PageAgendaSource scrapes agendas from a meetings page.
type PageAgendaSource struct {
	PageURL   string
	StaticDir string
}

func (s PageAgendaSource) Agendas(ctx context.Context) ([]engine.Agenda, error) {
	docs, err := sources.ScrapeAgendas(ctx, s.PageURL, s.StaticDir)
	if err != nil {
		return nil, err
	}
	return AgendasFromDocs(docs), nil
}

// AgendasFromDocs extracts business-section addresses from each agenda page.
// Agendas without any address are dropped.
func AgendasFromDocs(docs []sources.AgendaDoc) []engine.Agenda {
	var out []engine.Agenda
	for _, d := range docs {
		var addrs []string
		seen := make(map[string]bool)
		for _, page := range d.Pages {
			for _, a := range ExtractAgendaAddresses(page) {
				if !seen[a] {
					seen[a] = true
					addrs = append(addrs, a)
				}
			}
		}
		if len(addrs) == 0 {
			continue
		}
		out = append(out, engine.Agenda{Title: d.Title, URL: d.URL, Addresses: addrs})
	}
	return out
}
