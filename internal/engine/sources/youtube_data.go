package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
)

// ytDataAPIBase is a var so tests can point it at httptest servers.
var ytDataAPIBase = "https://www.googleapis.com/youtube/v3"

// ytMaxPages bounds pagination; 50 items per page.
const ytMaxPages = 40

type ytChannelResp struct {
	Items []struct {
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type ytPlaylistResp struct {
	Items []struct {
		Snippet struct {
			Title       string    `json:"title"`
			Description string    `json:"description"`
			PublishedAt time.Time `json:"publishedAt"`
			ResourceID  struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

type ytErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ListChannelVideos returns every video in the channel's uploads playlist,
// newest first, with full descriptions.
func ListChannelVideos(ctx context.Context, channelID string) ([]engine.Video, error) {
	if engine.Cfg.GoogleAPIKey == "" {
		return nil, engine.ErrMissingAPIKey
	}
	uploads, err := uploadsPlaylistID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("uploads playlist: %w", err)
	}

	var videos []engine.Video
	pageToken := ""
	for page := 0; page < ytMaxPages; page++ {
		params := url.Values{}
		params.Set("part", "snippet")
		params.Set("playlistId", uploads)
		params.Set("maxResults", "50")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var resp ytPlaylistResp
		if err := ytDataGet(ctx, "/playlistItems", params, &resp); err != nil {
			return nil, fmt.Errorf("playlist items: %w", err)
		}
		for _, item := range resp.Items {
			id := item.Snippet.ResourceID.VideoID
			if id == "" {
				continue
			}
			videos = append(videos, engine.Video{
				ID:          id,
				Title:       item.Snippet.Title,
				Description: item.Snippet.Description,
				PublishedAt: item.Snippet.PublishedAt,
			})
		}
		slog.Debug("youtube: playlist page", slog.Int("page", page+1), slog.Int("total", len(videos)))

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	slog.Info("youtube: channel videos listed", slog.String("channel", channelID), slog.Int("count", len(videos)))
	return videos, nil
}

func uploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	params := url.Values{}
	params.Set("part", "contentDetails")
	params.Set("id", channelID)

	var resp ytChannelResp
	if err := ytDataGet(ctx, "/channels", params, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails.RelatedPlaylists.Uploads == "" {
		return "", fmt.Errorf("channel %q not found", channelID)
	}
	return resp.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

// ytDataGet calls a Data API v3 endpoint and decodes the JSON body into out.
func ytDataGet(ctx context.Context, path string, params url.Values, out any) error {
	engine.IncrYouTubeAPI()
	apiURL := ytDataAPIBase + path + "?" + params.Encode()

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentBot)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Goog-Api-Key", engine.Cfg.GoogleAPIKey)
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return fmt.Errorf("youtube data API: %w", engine.RedactURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return fmt.Errorf("read youtube data API: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr ytErrorResp
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("youtube data API %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("youtube data API %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode youtube data API: %w", err)
	}
	return nil
}
