// go_meetmap maps town-meeting recordings by the street addresses discussed in them.
//
// Modes:
//
//	run       build the map once (default; what the CI workflow does)
//	serve     MCP server exposing meeting_map_build, meeting_addresses,
//	          meeting_runs and meeting_address_history
//	validate  check a workflow file against the job's required structure
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/proxypool"
	"github.com/anatolykoptev/go_meetmap/internal/engine"
	"github.com/anatolykoptev/go_meetmap/internal/engine/meetings"
	"github.com/anatolykoptev/go_meetmap/internal/engine/sources"
	"github.com/anatolykoptev/go_meetmap/internal/mapserver"
	"github.com/anatolykoptev/go_meetmap/internal/workflow"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var version = "dev"

func main() {
	mode := flag.String("mode", "run", "run | serve | validate")
	wfPath := flag.String("workflow", ".github/workflows/meeting_map.yml", "workflow file for -mode validate")
	policy := flag.String("policy", "go", "workflow policy for -mode validate: go | python")
	flag.Parse()

	// A missing .env is normal in CI, where secrets arrive as env vars.
	_ = godotenv.Load()
	slog.SetDefault(newLogger(env.Str("LOG_LEVEL", "WARNING"), env.Str("LOG_FORMAT", "text")))

	var code int
	switch *mode {
	case "run":
		code = runOnce()
	case "serve":
		code = serve()
	case "validate":
		code = validate(*wfPath, *policy)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		code = 2
	}
	os.Exit(code)
}

func runOnce() int {
	c := initEngine()
	defer removeCookies(c.CookiesFile)

	if err := c.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}
	slog.Info("starting go_meetmap run",
		slog.String("account", c.Account()),
		slog.String("google_api_key", engine.RedactSecret(c.GoogleAPIKey)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jar := loadCookies(c.CookiesFile)
	store := openStore(ctx, c)
	if store != nil {
		defer store.Close()
	}

	p, err := newPipeline(c, jar, store, mapserver.BuildInput{
		ChannelID:      c.YouTubeChannelID,
		VideoIDs:       c.YouTubeVideoIDs,
		IncludeAgendas: c.AgendasEnabled,
	})
	if err != nil {
		slog.Error("pipeline setup failed", slog.Any("error", err))
		return 1
	}
	res, err := p.Run(ctx)
	saveCookies(jar, c.CookiesFile)
	if err != nil {
		slog.Error("run failed", slog.Any("error", err))
		return 1
	}

	fmt.Printf("map: %s (%d videos, %d addresses, %d markers)\n",
		res.Run.MapPath, res.Run.Videos, res.Run.Addresses, res.Run.Markers)
	for _, addr := range res.Skipped {
		fmt.Printf("not located: %s\n", addr)
	}
	return 0
}

func serve() int {
	c := initEngine()
	defer removeCookies(c.CookiesFile)
	if err := c.Validate(); err != nil {
		slog.Warn("map builds will fail until configuration is fixed", slog.Any("error", err))
	}

	port := env.Str("MCP_PORT", "8892")
	slog.Info("starting go_meetmap", slog.String("port", port))

	jar := loadCookies(c.CookiesFile)
	store := openStore(context.Background(), c)
	if store != nil {
		defer store.Close()
	}
	fetcher := sources.NewVideoFetcher(jar)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_meetmap",
		Version: version,
	}, nil)
	mapserver.RegisterTools(server, &mapserver.Server{
		Store:       store,
		BaseFileURL: c.DescriptionBaseURL,
		FetchVideos: fetcher.FetchVideos,
		PipelineFor: func(in mapserver.BuildInput) (*meetings.Pipeline, error) {
			if err := engine.Cfg.Validate(); err != nil {
				return nil, err
			}
			return newPipeline(*engine.Cfg, jar, store, in)
		},
	})
	slog.Info("tools registered", slog.Int("count", 4))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_meetmap",
		Version:      version,
		Port:         port,
		WriteTimeout: 600 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		return 1
	}
	return 0
}

func validate(path, policyName string) int {
	p, err := workflow.PolicyByName(policyName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	w, err := workflow.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	violations := workflow.Validate(w, p)
	for _, v := range violations {
		fmt.Fprintln(os.Stderr, v)
	}
	if len(violations) > 0 {
		return 1
	}
	fmt.Printf("%s: ok (%s policy)\n", path, p.Name)
	return 0
}

func initEngine() engine.Config {
	c := engine.Config{
		GoogleAPIKey:         env.Str("GOOGLE_API_KEY", ""),
		YouTubeUsername:      env.Str("YT_USERNAME", ""),
		YouTubePassword:      env.Str("YT_PASSWORD", ""),
		YouTubeChannelID:     env.Str("YOUTUBE_CHANNEL_ID", ""),
		YouTubeVideoIDs:      env.List("YOUTUBE_VIDEO_IDS", ""),
		CookiesFile:          env.Str("COOKIES_FILE", engine.DefaultCookiesFile),
		DescriptionsDir:      env.Str("DESCRIPTIONS_DIR", "descriptions"),
		DescriptionBaseURL:   env.Str("DESCRIPTION_BASE_URL", "https://your-file-hosting-service.com/descriptions"),
		MapOutput:            env.Str("MAP_OUTPUT", "map_with_meetings.html"),
		StaticDir:            env.Str("STATIC_DIR", "static"),
		MeetingsURL:          env.Str("MEETINGS_URL", ""),
		AgendasEnabled:       envBool("AGENDAS_ENABLED", false),
		Geocoder:             strings.ToLower(env.Str("GEOCODER", "google")),
		DefaultCity:          env.Str("DEFAULT_CITY", "Fortville"),
		DefaultState:         env.Str("DEFAULT_STATE", "IN"),
		MapCenterLat:         env.Float("MAP_CENTER_LAT", meetings.DefaultCenterLat),
		MapCenterLng:         env.Float("MAP_CENTER_LNG", meetings.DefaultCenterLng),
		MapZoom:              env.Int("MAP_ZOOM", meetings.DefaultZoom),
		FetchTimeout:         env.Duration("FETCH_TIMEOUT", 10*time.Second),
		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", 5000),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),
		DatabaseURL:          env.Str("DATABASE_URL", ""),
		DBPath:               env.Str("MEETMAP_DB", meetings.DefaultDBPath()),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}

	var opts []stealth.ClientOption
	opts = append(opts, stealth.WithTimeout(15))

	if apiKey := env.Str("WEBSHARE_API_KEY", ""); apiKey != "" {
		pool, err := proxypool.NewWebshare(apiKey)
		if err != nil {
			slog.Warn("proxy pool init failed, running without proxy", slog.Any("error", err))
		} else {
			opts = append(opts, stealth.WithProxyPool(pool))
			slog.Info("proxy pool initialized", slog.Int("proxies", pool.Len()))
		}
	}

	bc, err := stealth.NewClient(opts...)
	if err != nil {
		slog.Warn("stealth client init failed, agenda pages use plain HTTP", slog.Any("error", err))
	} else {
		c.BrowserClient = bc
	}

	engine.Init(c)

	cacheTTL := env.Duration("CACHE_TTL", 24*time.Hour)
	engine.InitCache(env.Str("REDIS_URL", ""), cacheTTL, c.CacheMaxEntries, c.CacheCleanupInterval)
	return *engine.Cfg
}

// newPipeline wires a pipeline for one build. Video source precedence:
// explicit IDs, then a channel, then the built-in sample.
func newPipeline(c engine.Config, jar *engine.CookieStore, store meetings.Store, in mapserver.BuildInput) (*meetings.Pipeline, error) {
	geo, err := sources.NewGeocoder()
	if err != nil {
		return nil, fmt.Errorf("geocoder: %w", err)
	}

	var videos meetings.VideoSource
	channel := in.ChannelID
	if channel == "" {
		channel = c.YouTubeChannelID
	}
	switch {
	case len(in.VideoIDs) > 0:
		videos = meetings.IDSource{Fetcher: sources.NewVideoFetcher(jar), IDs: in.VideoIDs}
	case channel != "":
		videos = meetings.ChannelSource{ChannelID: channel}
	default:
		slog.Warn("no YOUTUBE_CHANNEL_ID or YOUTUBE_VIDEO_IDS set, mapping the built-in sample videos")
		videos = meetings.SeedVideos()
	}

	var agendas meetings.AgendaSource
	switch {
	case !in.IncludeAgendas && !c.AgendasEnabled:
	case c.MeetingsURL == "":
		slog.Warn("agendas requested but MEETINGS_URL is not set, mapping recordings only")
	default:
		agendas = meetings.PageAgendaSource{PageURL: c.MeetingsURL, StaticDir: c.StaticDir}
	}

	return &meetings.Pipeline{
		Videos:   videos,
		Agendas:  agendas,
		Geocoder: geo,
		Store:    store,
		Opts: meetings.Options{
			DescriptionsDir:    c.DescriptionsDir,
			DescriptionBaseURL: c.DescriptionBaseURL,
			MapOutput:          c.MapOutput,
			DefaultCity:        c.DefaultCity,
			DefaultState:       c.DefaultState,
			Account:            c.Account(),
			Map: meetings.MapOptions{
				Title:     "Meeting Map",
				CenterLat: c.MapCenterLat,
				CenterLng: c.MapCenterLng,
				Zoom:      c.MapZoom,
			},
		},
	}, nil
}

func openStore(ctx context.Context, c engine.Config) meetings.Store {
	store, err := meetings.OpenStore(ctx, c.DatabaseURL, c.DBPath)
	if err != nil {
		slog.Warn("run history disabled", slog.Any("error", err))
		return nil
	}
	return store
}

func loadCookies(path string) *engine.CookieStore {
	jar, err := engine.LoadCookies(path)
	if err != nil {
		slog.Warn("cookies not loaded, starting a fresh session", slog.String("path", path), slog.Any("error", err))
		return engine.NewCookieStore()
	}
	return jar
}

func saveCookies(jar *engine.CookieStore, path string) {
	if jar.Len() == 0 {
		return
	}
	if err := jar.Save(path); err != nil {
		slog.Warn("cookies not saved", slog.Any("error", err))
	}
}

// removeCookies deletes the session file unless KEEP_COOKIES is set, so a
// local run leaves the same state the workflow's cleanup step does.
func removeCookies(path string) {
	if envBool("KEEP_COOKIES", false) {
		return
	}
	if err := engine.RemoveCookies(path); err != nil {
		slog.Warn("cookie cleanup failed", slog.String("path", path), slog.Any("error", err))
	}
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(env.Str(key, strconv.FormatBool(def))))
	if err != nil {
		return def
	}
	return v
}

// newLogger maps the LOG_LEVEL names (DEBUG, INFO, WARNING, ERROR) onto slog.
func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "ERROR", "CRITICAL":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
