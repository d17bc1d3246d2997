package engine

import (
	"errors"
	"net/http"
	"time"
)

// ErrMissingAPIKey is returned when a Google API key is required but not configured.
var ErrMissingAPIKey = errors.New("GOOGLE_API_KEY environment variable is not set")

// Config holds all engine configuration, injected from main.
type Config struct {
	GoogleAPIKey         string
	YouTubeUsername      string
	YouTubePassword      string
	YouTubeChannelID     string
	YouTubeVideoIDs      []string
	CookiesFile          string
	DescriptionsDir      string
	DescriptionBaseURL   string
	MapOutput            string
	StaticDir            string
	MeetingsURL          string
	AgendasEnabled       bool
	Geocoder             string         // "google" or "nominatim"
	DefaultCity          string
	DefaultState         string
	MapCenterLat         float64
	MapCenterLng         float64
	MapZoom              int
	FetchTimeout         time.Duration
	CacheMaxEntries      int
	CacheCleanupInterval time.Duration
	DatabaseURL          string         // PostgreSQL; empty = SQLite at DBPath
	DBPath               string
	HTTPClient           *http.Client
	BrowserClient        *BrowserClient // nil = agenda pages fetched with plain HTTP
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (meetings, sources).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	cfg = c
	Cfg = &cfg
}

// Account returns the label recorded for runs: the YouTube username when both
// credentials are present, otherwise "anonymous".
func (c Config) Account() string {
	if c.YouTubeUsername != "" && c.YouTubePassword != "" {
		return c.YouTubeUsername
	}
	return "anonymous"
}

// Validate checks settings that must hold before a pipeline run.
func (c Config) Validate() error {
	if c.GoogleAPIKey == "" && c.Geocoder != "nominatim" {
		return ErrMissingAPIKey
	}
	if (c.YouTubeUsername == "") != (c.YouTubePassword == "") {
		return errors.New("YT_USERNAME and YT_PASSWORD must be set together")
	}
	switch c.Geocoder {
	case "", "google", "nominatim":
	default:
		return errors.New("GEOCODER must be google or nominatim")
	}
	return nil
}
