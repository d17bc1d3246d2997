package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"
)

type countingGeocoder struct {
	calls int
	loc   engine.Location
	found bool
	err   error
}

func (c *countingGeocoder) Name() string { return "fake" }

func (c *countingGeocoder) Geocode(_ context.Context, _ string) (engine.Location, bool, error) {
	c.calls++
	return c.loc, c.found, c.err
}

func TestCachedGeocoder(t *testing.T) {
	engine.InitCache("", time.Minute, 100, time.Minute)
	ctx := context.Background()

	t.Run("hit is memoized", func(t *testing.T) {
		inner := &countingGeocoder{loc: engine.Location{Lat: 39.93, Lng: -85.85}, found: true}
		g := NewCachedGeocoder(inner)
		for i := 0; i < 3; i++ {
			loc, found, err := g.Geocode(ctx, "123 W Main St, Fortville, IN")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, 39.93, loc.Lat)
		}
		assert.Equal(t, 1, inner.calls)
	})

	t.Run("miss is memoized", func(t *testing.T) {
		inner := &countingGeocoder{}
		g := NewCachedGeocoder(inner)
		for i := 0; i < 2; i++ {
			_, found, err := g.Geocode(ctx, "1 Nowhere Ln")
			require.NoError(t, err)
			assert.False(t, found)
		}
		assert.Equal(t, 1, inner.calls)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		inner := &countingGeocoder{err: errors.New("timeout")}
		g := NewCachedGeocoder(inner)
		_, _, err := g.Geocode(ctx, "9 Error Ct")
		assert.Error(t, err)
		_, _, err = g.Geocode(ctx, "9 Error Ct")
		assert.Error(t, err)
		assert.Equal(t, 2, inner.calls)
	})
}

func TestNominatimGeocoder(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("q") == "1 Nowhere Ln" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"lat":"39.9317","lon":"-85.8483","display_name":"Main St"}]`))
	}))
	defer srv.Close()

	old := nominatimBaseURL
	nominatimBaseURL = srv.URL
	defer func() { nominatimBaseURL = old }()

	g := NewNominatimGeocoder(srv.Client())
	loc, found, err := g.Geocode(context.Background(), "123 W Main St, Fortville, IN")
	require.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 39.9317, loc.Lat, 1e-9)
	assert.InDelta(t, -85.8483, loc.Lng, 1e-9)
	assert.Equal(t, engine.UserAgentGeocoder, gotUA)

	g2 := NewNominatimGeocoder(srv.Client())
	_, found, err = g2.Geocode(context.Background(), "1 Nowhere Ln")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGoogleGeocoder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("address") == "1 Nowhere Ln" {
			w.Write([]byte(`{"results":[],"status":"ZERO_RESULTS"}`))
			return
		}
		w.Write([]byte(`{"results":[{"formatted_address":"123 W Main St","geometry":{"location":{"lat":39.93,"lng":-85.85}}}],"status":"OK"}`))
	}))
	defer srv.Close()

	g, err := NewGoogleGeocoder("test-key", srv.Client(), maps.WithBaseURL(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "google", g.Name())

	loc, found, err := g.Geocode(context.Background(), "123 W Main St")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, engine.Location{Lat: 39.93, Lng: -85.85}, loc)

	_, found, err = g.Geocode(context.Background(), "1 Nowhere Ln")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGoogleGeocoderRejectedKey(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[],"status":"REQUEST_DENIED","error_message":"The provided API key is invalid."}`))
	}))
	defer srv.Close()

	g, err := NewGoogleGeocoder("bad-key", srv.Client(), maps.WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, found, err := g.Geocode(context.Background(), "123 W Main St")
	require.Error(t, err)
	assert.False(t, found)
	assert.ErrorIs(t, err, engine.ErrProviderRejected)
	assert.Equal(t, 1, calls, "rejected keys are not retried")
}

func TestGoogleGeocoderRetriesQueryLimit(t *testing.T) {
	oldRetry := engine.DefaultRetryConfig
	engine.DefaultRetryConfig = engine.RetryConfig{MaxRetries: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}
	defer func() { engine.DefaultRetryConfig = oldRetry }()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			w.Write([]byte(`{"results":[],"status":"OVER_QUERY_LIMIT"}`))
			return
		}
		w.Write([]byte(`{"results":[{"geometry":{"location":{"lat":39.93,"lng":-85.85}}}],"status":"OK"}`))
	}))
	defer srv.Close()

	g, err := NewGoogleGeocoder("test-key", srv.Client(), maps.WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, found, err := g.Geocode(context.Background(), "123 W Main St")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, calls)
}

func TestGoogleGeocoderErrorOmitsKey(t *testing.T) {
	oldRetry := engine.DefaultRetryConfig
	engine.DefaultRetryConfig = engine.RetryConfig{MaxRetries: 0, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}
	defer func() { engine.DefaultRetryConfig = oldRetry }()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	g, err := NewGoogleGeocoder("AIzaSECRETKEY123", &http.Client{Timeout: time.Second}, maps.WithBaseURL(base))
	require.NoError(t, err)

	_, _, err = g.Geocode(context.Background(), "123 W Main St")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "AIzaSECRETKEY123")
	assert.NotErrorIs(t, err, engine.ErrProviderRejected)
}

func TestNewGoogleGeocoderRequiresKey(t *testing.T) {
	_, err := NewGoogleGeocoder("", nil)
	assert.ErrorIs(t, err, engine.ErrMissingAPIKey)
}
