package sources

import (
	"context"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
)

// geocodeTimeout bounds a single lookup.
const geocodeTimeout = 20 * time.Second

// Geocoder resolves a street address to coordinates.
// found is false when the provider has no match; err is reserved for transport
// and provider failures.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, address string) (loc engine.Location, found bool, err error)
}

type cachedLookup struct {
	Location engine.Location `json:"location"`
	Found    bool            `json:"found"`
}

// CachedGeocoder memoizes lookups in the engine's tiered cache, including
// misses, so repeat runs do not spend provider quota on unknown addresses.
type CachedGeocoder struct {
	next Geocoder
}

// NewCachedGeocoder wraps g with the engine cache.
func NewCachedGeocoder(g Geocoder) *CachedGeocoder {
	return &CachedGeocoder{next: g}
}

func (c *CachedGeocoder) Name() string { return c.next.Name() }

// Geocode implements Geocoder.
func (c *CachedGeocoder) Geocode(ctx context.Context, address string) (engine.Location, bool, error) {
	key := engine.CacheKey("geocode", c.next.Name(), address)
	if hit, ok := engine.CacheLoadJSON[cachedLookup](ctx, key); ok {
		return hit.Location, hit.Found, nil
	}

	engine.IncrGeocodeRequests()
	lctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()
	loc, found, err := c.next.Geocode(lctx, address)
	if err != nil {
		return engine.Location{}, false, err
	}
	if !found {
		engine.IncrGeocodeMisses()
		slog.Debug("geocode: no match", slog.String("provider", c.next.Name()), slog.String("address", address))
	}
	engine.CacheStoreJSON(ctx, key, cachedLookup{Location: loc, Found: found})
	return loc, found, nil
}

// NewGeocoder builds the configured provider wrapped in the cache.
func NewGeocoder() (Geocoder, error) {
	var g Geocoder
	switch engine.Cfg.Geocoder {
	case "nominatim":
		g = NewNominatimGeocoder(engine.Cfg.HTTPClient)
	default:
		gg, err := NewGoogleGeocoder(engine.Cfg.GoogleAPIKey, engine.Cfg.HTTPClient)
		if err != nil {
			return nil, err
		}
		g = gg
	}
	return NewCachedGeocoder(g), nil
}
