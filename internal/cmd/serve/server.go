package serve

import (
	"context"
	"fmt"
	"net"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/chirino/chat-store/internal/config"
	"github.com/chirino/chat-store/internal/dataencryption"
	"github.com/chirino/chat-store/internal/monitoring"
	routesystem "github.com/chirino/chat-store/internal/plugin/route/system"
	storemetrics "github.com/chirino/chat-store/internal/plugin/store/metrics"
	registryencrypt "github.com/chirino/chat-store/internal/registry/encrypt"
	registrymigrate "github.com/chirino/chat-store/internal/registry/migrate"
	registryroute "github.com/chirino/chat-store/internal/registry/route"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
	"github.com/chirino/chat-store/internal/registry/streamguard"
	"github.com/chirino/chat-store/internal/service"
)

// Server holds the running subsystems.
type Server struct {
	Config     *config.Config
	Store      registrystore.ChatStore
	Encryption *dataencryption.Service
	Settings   *service.SettingsService
	Providers  *service.ProviderService
	Streams    *service.StreamCoordinator
	Sweeper    *service.RetentionSweeper
	Router     *gin.Engine
	// ManagementAddr is nil when the management server is disabled.
	ManagementAddr net.Addr

	guard           streamguard.Guard
	stopBackground  context.CancelFunc
	closeManagement func(context.Context) error
}

// Shutdown stops background work, the management server and the store.
func (s *Server) Shutdown(ctx context.Context) error {
	routesystem.MarkNotReady()
	if s.stopBackground != nil {
		s.stopBackground()
	}
	var firstErr error
	if s.closeManagement != nil {
		firstErr = s.closeManagement(ctx)
	}
	if s.guard != nil {
		if err := s.guard.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// StartServer initializes all subsystems. Use cfg.ManagementPort=0 for a
// random port; the bound address is Server.ManagementAddr.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := monitoring.ConfigureLogging(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	log.Info("Starting chat store",
		"db", cfg.DatastoreType,
		"kek", cfg.ResolvedKEKKind(),
		"streamGuard", cfg.StreamGuardType,
		"retentionDays", cfg.RetentionDays,
	)

	metricsLabels, err := monitoring.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	monitoring.InitMetrics(metricsLabels)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)
	srv := &Server{Config: cfg, Store: store}
	fail := func(err error) (*Server, error) {
		_ = srv.Shutdown(context.Background())
		return nil, err
	}

	kek, err := registryencrypt.Load(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize KEK provider: %w", err))
	}
	if kek == nil {
		log.Warn("No KEK configured; sensitive settings are stored in plaintext")
	}
	srv.Encryption = dataencryption.New(kek, store, nil)

	guardLoader, err := streamguard.Select(cfg.StreamGuardType)
	if err != nil {
		return fail(err)
	}
	srv.guard, err = guardLoader(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize stream guard: %w", err))
	}

	srv.Settings = service.NewSettingsService(store, srv.Encryption)
	srv.Providers = service.NewProviderService(store, srv.Encryption)
	srv.Streams = service.NewStreamCoordinator(store, srv.guard, cfg.StreamGuardTTL)
	srv.Sweeper = service.NewRetentionSweeper(store, cfg.RetentionDays, cfg.RetentionInterval, cfg.RetentionBatchSize)

	bgCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	srv.stopBackground = stop
	if cfg.RetentionEnabled() {
		go srv.Sweeper.Start(bgCtx)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(monitoring.AccessLogMiddleware())
	}
	router.Use(monitoring.MetricsMiddleware())
	for _, loader := range registryroute.Loaders() {
		if err := loader(router, registryroute.Deps{Store: store}); err != nil {
			return fail(fmt.Errorf("failed to load management routes: %w", err))
		}
	}
	srv.Router = router

	if cfg.ManagementPort >= 0 {
		srv.ManagementAddr, srv.closeManagement, err = startManagementServer(cfg, router)
		if err != nil {
			return fail(fmt.Errorf("failed to start management server: %w", err))
		}
	}

	routesystem.MarkReady()
	return srv, nil
}
