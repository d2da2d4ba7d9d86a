// Package server wires every component together and builds the two HTTP
// listener surfaces: the miniserver-facing one and the app/admin one. Paths
// are identical on both; the app surface additionally exposes /metrics and
// is rate limited.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/msaudio/audioserver-go/internal/alerts"
	"github.com/msaudio/audioserver-go/internal/audit"
	"github.com/msaudio/audioserver-go/internal/backend"
	"github.com/msaudio/audioserver-go/internal/beolink"
	"github.com/msaudio/audioserver-go/internal/broadcast"
	"github.com/msaudio/audioserver-go/internal/command"
	"github.com/msaudio/audioserver-go/internal/config"
	"github.com/msaudio/audioserver-go/internal/content"
	"github.com/msaudio/audioserver-go/internal/db"
	"github.com/msaudio/audioserver-go/internal/favorites"
	"github.com/msaudio/audioserver-go/internal/groups"
	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/musicassistant"
	"github.com/msaudio/audioserver-go/internal/netutil"
	"github.com/msaudio/audioserver-go/internal/provider"
	"github.com/msaudio/audioserver-go/internal/recents"
	"github.com/msaudio/audioserver-go/internal/zone"
)

// Options controls server wiring.
type Options struct {
	// DisableWatcher skips config hot reload, so a test's zone set stays
	// exactly what its config file said at startup.
	DisableWatcher bool
}

// Handlers are the two listener surfaces.
type Handlers struct {
	App http.Handler
	MS  http.Handler
}

// NewHandlers builds the full runtime and returns the listener handlers plus
// a shutdown function. Config problems are fatal here; degraded components
// (unreachable provider, failed watch) only log.
func NewHandlers(cfg config.Config, options Options) (*Handlers, func(context.Context) error, error) {
	logger := log.WithComponent("server")

	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	alertsResolver, err := alerts.NewResolver(cfg.AlertsDir())
	if err != nil {
		_ = dbPair.Close()
		return nil, nil, fmt.Errorf("alerts root: %w", err)
	}

	zoneCfgs, err := config.LoadZones(cfg.ConfigFile)
	if err != nil {
		_ = dbPair.Close()
		return nil, nil, err
	}

	hub := broadcast.NewHub()
	log.SetBroadcastFunc(func(level, component, message string, ts time.Time) {
		hub.Publish(broadcast.EventLog, map[string]any{
			"level":     level,
			"component": component,
			"message":   message,
			"ts":        ts.UTC().Format(time.RFC3339),
		})
	})

	zones := zone.NewManager(hub, groups.NewTracker())

	auditRepo := audit.NewRepository(dbPair)
	auditWriter := audit.NewWriter(auditRepo)
	auditPruner := audit.NewPruner(auditRepo)
	if err := auditPruner.Start(); err != nil {
		logger.Warn().Err(err).Msg("audit prune schedule unavailable")
	}

	historyRepo := recents.NewRepository(dbPair)
	recorder := recents.NewRecorder(historyRepo)
	zones.SetHistoryRecorder(recorder)

	sweeper := alerts.NewSweeper(alertsResolver.CacheDir())
	if err := sweeper.Start(); err != nil {
		logger.Warn().Err(err).Msg("tts cache sweep schedule unavailable")
	}

	maSvc := musicassistant.NewService(&cfg)

	providers := provider.NewRegistry()
	providers.Register("musicassistant", func(*config.Config) (provider.MediaProvider, error) {
		return maSvc.NewProvider(), nil
	}, "ma", "music-assistant")

	activeProvider := func() (provider.MediaProvider, error) {
		return providers.Active(&cfg)
	}

	recentsSvc := recents.NewService(historyRepo, activeProvider)

	favStore := favorites.NewStore(cfg.FavoritesDir())
	favSvc := favorites.NewService(favStore, func() (favorites.Resolver, error) {
		p, err := providers.Active(&cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}, hub)

	backends := backend.NewRegistry()
	backends.Register("null", backend.NewNullDriver, nil)
	backends.Register("musicassistant", maSvc.NewDriver, maSvc.Probe)
	backends.Register("beolink", beolink.NewDriver, beolink.Probe)

	adapters := content.NewRegistry()
	adapters.Register("musicassistant", maSvc.NewContentAdapter)

	build := buildFunc(zones, backends, adapters)

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	shutdown := func(ctx context.Context) error {
		shutdownCancel()
		log.SetBroadcastFunc(nil)
		hub.Close()
		if err := zones.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("zone shutdown incomplete")
		}
		sweeper.Stop()
		auditPruner.Stop()
		auditWriter.Close()
		recorder.Close()
		_ = maSvc.Close()
		return dbPair.Close()
	}

	if err := zones.Reconcile(shutdownCtx, zoneCfgs, build); err != nil {
		_ = shutdown(context.Background())
		return nil, nil, fmt.Errorf("zone setup: %w", err)
	}

	if !options.DisableWatcher {
		watcher := config.NewZonesWatcher(cfg.ConfigFile, func(cfgs []config.ZoneConfig) {
			if err := zones.Reconcile(shutdownCtx, cfgs, build); err != nil {
				logger.Warn().Err(err).Msg("zone reload incomplete")
			}
		})
		if err := watcher.Start(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("config watch unavailable, zone changes need a restart")
		}
	}

	router := command.NewRouter(command.Options{
		Zones:     zones,
		Provider:  activeProvider,
		Favorites: favSvc,
		Recents:   recentsSvc,
		Alerts:    alertsResolver,
		AlertURL:  alertURLFunc(cfg),
		Events:    hub,
		Audit:     auditWriter,
		AuditLog:  auditRepo,
	})

	surf := &surface{
		router: router,
		hub:    hub,
		zones:  zones,
		alerts: alertsResolver,
		logger: log.WithComponent("surface"),
	}

	return &Handlers{
		App: surf.routes(true),
		MS:  surf.routes(false),
	}, shutdown, nil
}

// buildFunc assembles the per-zone stack: driver from the backend registry,
// the kind's capability matrix and an optional content adapter.
func buildFunc(zones *zone.Manager, backends *backend.Registry, adapters *content.Registry) zone.BuildFunc {
	return func(ctx context.Context, zcfg config.ZoneConfig) (backend.Driver, zone.Capabilities, content.Adapter, error) {
		kind := zcfg.Backend
		if kind == "" {
			kind = "null"
		}
		driver, err := backends.Create(kind, backend.Options{
			ZoneID:  zcfg.ID,
			Config:  zcfg,
			Runtime: zones,
		})
		if err != nil {
			return nil, zone.UnconfiguredCapabilities(), nil, err
		}
		adapter, err := adapters.Create(kind, zcfg)
		if err != nil {
			adapter = nil
		}
		return driver, capabilitiesFor(kind), adapter, nil
	}
}

// capabilitiesFor is the declarative support matrix per backend kind.
func capabilitiesFor(kind string) zone.Capabilities {
	switch kind {
	case "musicassistant":
		return zone.Capabilities{
			Control:  zone.CapNative,
			Content:  zone.CapAdapter,
			Grouping: zone.CapNative,
			Alerts:   zone.CapAdapter,
			TTS:      zone.CapAdapter,
		}
	case "beolink":
		return zone.Capabilities{
			Control:  zone.CapNative,
			Content:  zone.CapNone,
			Grouping: zone.CapNone,
			Alerts:   zone.CapNone,
			TTS:      zone.CapNone,
		}
	default:
		return zone.UnconfiguredCapabilities()
	}
}

// alertURLFunc renders the absolute URL the miniserver fetches alert media
// from. ALERTS_HOST overrides the autodetected address for hosts with more
// than one interface.
func alertURLFunc(cfg config.Config) command.AlertURLFunc {
	host := cfg.AlertsHost
	if host == "" {
		host = netutil.OutboundIP()
	}
	base := "http://" + net.JoinHostPort(host, cfg.AlertsPort) + "/alerts/"
	return func(rel string) string {
		return base + rel
	}
}
