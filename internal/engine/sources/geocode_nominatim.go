package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
	"golang.org/x/time/rate"
)

// nominatimBaseURL is a var so tests can point it at httptest servers.
var nominatimBaseURL = "https://nominatim.openstreetmap.org"

// NominatimGeocoder uses the OpenStreetMap Nominatim search API.
// The public instance allows one request per second, enforced by limiter.
type NominatimGeocoder struct {
	hc      *http.Client
	limiter *rate.Limiter
}

// NewNominatimGeocoder creates a rate-limited Nominatim geocoder.
func NewNominatimGeocoder(hc *http.Client) *NominatimGeocoder {
	if hc == nil {
		hc = &http.Client{Timeout: geocodeTimeout}
	}
	return &NominatimGeocoder{
		hc:      hc,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (n *NominatimGeocoder) Name() string { return "nominatim" }

type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode implements Geocoder.
func (n *NominatimGeocoder) Geocode(ctx context.Context, address string) (engine.Location, bool, error) {
	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")
	searchURL := nominatimBaseURL + "/search?" + params.Encode()

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		if err := n.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentGeocoder)
		req.Header.Set("Accept", "application/json")
		return n.hc.Do(req)
	})
	if err != nil {
		return engine.Location{}, false, fmt.Errorf("nominatim: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return engine.Location{}, false, fmt.Errorf("nominatim status %d", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return engine.Location{}, false, fmt.Errorf("decode nominatim: %w", err)
	}
	if len(places) == 0 {
		return engine.Location{}, false, nil
	}
	lat, err1 := strconv.ParseFloat(places[0].Lat, 64)
	lng, err2 := strconv.ParseFloat(places[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return engine.Location{}, false, fmt.Errorf("nominatim: bad coordinates %q,%q", places[0].Lat, places[0].Lon)
	}
	return engine.Location{Lat: lat, Lng: lng}, true, nil
}
