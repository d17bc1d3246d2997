package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
	"googlemaps.github.io/maps"
)

// GoogleGeocoder uses the Google Maps Geocoding API.
type GoogleGeocoder struct {
	client *maps.Client
}

// NewGoogleGeocoder creates a geocoder authenticated with apiKey.
// Extra client options (e.g. maps.WithBaseURL in tests) are applied last.
func NewGoogleGeocoder(apiKey string, hc *http.Client, opts ...maps.ClientOption) (*GoogleGeocoder, error) {
	if apiKey == "" {
		return nil, engine.ErrMissingAPIKey
	}
	all := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if hc != nil {
		all = append(all, maps.WithHTTPClient(hc))
	}
	all = append(all, opts...)
	c, err := maps.NewClient(all...)
	if err != nil {
		return nil, fmt.Errorf("google maps client: %w", err)
	}
	return &GoogleGeocoder{client: c}, nil
}

func (g *GoogleGeocoder) Name() string { return "google" }

// Geocode implements Geocoder. The first result wins.
func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (engine.Location, bool, error) {
	results, err := engine.RetryDo(ctx, engine.DefaultRetryConfig, func() ([]maps.GeocodingResult, error) {
		res, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
		return res, mapsStatusError(err)
	})
	if err != nil {
		var se *engine.ProviderStatusError
		if errors.As(err, &se) && se.Status == "ZERO_RESULTS" {
			return engine.Location{}, false, nil
		}
		// The client sends the key as a query parameter.
		return engine.Location{}, false, fmt.Errorf("google geocode: %w", engine.RedactURLError(err))
	}
	if len(results) == 0 {
		return engine.Location{}, false, nil
	}
	loc := results[0].Geometry.Location
	return engine.Location{Lat: loc.Lat, Lng: loc.Lng}, true, nil
}

// mapsStatusError turns the client's "maps: STATUS - message" errors into
// ProviderStatusError so callers can tell quota and auth failures from misses.
func mapsStatusError(err error) error {
	if err == nil {
		return nil
	}
	rest, ok := strings.CutPrefix(err.Error(), "maps: ")
	if !ok {
		return err
	}
	status, msg, _ := strings.Cut(rest, " - ")
	if status == "" || strings.ToUpper(status) != status || strings.ContainsAny(status, " :") {
		return err
	}
	return &engine.ProviderStatusError{Provider: "google", Status: status, Message: msg}
}
