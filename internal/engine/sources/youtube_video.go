package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
	"github.com/kkdai/youtube/v2"
)

// VideoFetcher resolves individual videos through the watch page, carrying the
// session cookies so consent and visitor cookies persist between lookups.
type VideoFetcher struct {
	client youtube.Client
}

// NewVideoFetcher creates a fetcher whose HTTP client uses jar for cookies.
// jar may be nil.
func NewVideoFetcher(jar http.CookieJar) *VideoFetcher {
	return &VideoFetcher{
		client: youtube.Client{
			HTTPClient: &http.Client{
				Timeout: 30 * time.Second,
				Jar:     jar,
			},
		},
	}
}

// FetchVideo returns metadata for a single video ID or URL.
func (f *VideoFetcher) FetchVideo(ctx context.Context, idOrURL string) (engine.Video, error) {
	engine.IncrYouTubeVideoLookup()
	id := ExtractVideoID(idOrURL)
	if id == "" {
		return engine.Video{}, fmt.Errorf("invalid video id or url: %q", idOrURL)
	}
	v, err := f.client.GetVideoContext(ctx, id)
	if err != nil {
		return engine.Video{}, fmt.Errorf("get video %s: %w", id, err)
	}
	return engine.Video{
		ID:          v.ID,
		Title:       v.Title,
		Description: v.Description,
		PublishedAt: v.PublishDate,
	}, nil
}

// FetchVideos resolves each id in order. Failures are logged and skipped so one
// private or removed recording does not sink the whole run.
func (f *VideoFetcher) FetchVideos(ctx context.Context, ids []string) []engine.Video {
	videos := make([]engine.Video, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		v, err := f.FetchVideo(ctx, id)
		if err != nil {
			slog.Warn("youtube: video lookup failed", slog.String("id", id), slog.Any("error", err))
			continue
		}
		videos = append(videos, v)
	}
	return videos
}
