package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"

	"github.com/simp-lee/carhire/internal/catalog"
	"github.com/simp-lee/carhire/internal/config"
	"github.com/simp-lee/carhire/internal/middleware"
	"github.com/simp-lee/carhire/internal/module/rental"
	"github.com/simp-lee/carhire/internal/quote"
	"github.com/simp-lee/carhire/internal/rentalapi"
	"github.com/simp-lee/carhire/internal/scheduler"
	"github.com/simp-lee/carhire/internal/search"
	"github.com/simp-lee/carhire/internal/session"
)

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine    *gin.Engine
	storage   *config.Storage
	catalog   *catalog.Catalog
	sessions  *session.Registry
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
	cfg       *config.Config
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var newHTTPServer = func(addr string, handler http.Handler) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, storage, the rental backend client, the catalog cache,
// the session registry, background jobs, middleware and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}

	// 2. Setup the session store.
	storage, err := config.SetupStore(cfg, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup storage: %w", err)
	}
	defer func() {
		if success {
			return
		}
		if err := storage.Close(); err != nil {
			slog.Error("storage close error", slog.Any("error", err))
		}
	}()

	// 3. Manual dependency injection: backend → catalog → sessions → handler.
	api := rentalapi.New(cfg.Backend.BaseURL,
		rentalapi.WithTimeout(config.DurationOr(cfg.Backend.Timeout, rentalapi.DefaultTimeout)),
		rentalapi.WithLogger(log.Logger),
	)
	cat := catalog.New(api, config.DurationOr(cfg.Backend.CatalogTTL, catalog.DefaultTTL), log.Logger)
	defer func() {
		if !success {
			cat.Close()
		}
	}()
	sessions := session.NewRegistry(session.Options{
		API:             api,
		Locations:       cat,
		Store:           storage.Store,
		Surfaces:        buildSurfaces(cfg.Search.Surfaces),
		MatchPolicy:     search.MatchPolicy(cfg.Search.LocationMatch),
		Languages:       cfg.Backend.Languages,
		DefaultLanguage: cfg.Backend.DefaultLanguage,
		IdleTTL:         config.DurationOr(cfg.Search.SessionIdleTTL, 30*time.Minute),
		Logger:          log.Logger,
	})
	defer func() {
		if !success {
			sessions.Close()
		}
	}()
	corsConfig := resolveCORSConfig(cfg.Server.Mode, cfg.Server.CORS)
	handler := rental.NewHandler(sessions, cat, quote.NewService(api, log.Logger), log.Logger,
		rental.WithOriginCheck(middleware.CheckOrigin(corsConfig)),
	)

	// 4. Background jobs.
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs := scheduler.Jobs{Catalog: cat, Sessions: sessions}
		if storage.Pruner != nil {
			jobs.Store = storage.Pruner
		}
		sched, err = scheduler.New(scheduler.Config{
			LocationRefresh: cfg.Scheduler.LocationRefresh,
			SessionSweep:    cfg.Scheduler.SessionSweep,
			StorePrune:      cfg.Scheduler.StorePrune,
			StoreRetention:  config.DurationOr(cfg.Scheduler.StoreRetention, 0),
		}, jobs, log.Logger)
		if err != nil {
			return nil, fmt.Errorf("setup scheduler: %w", err)
		}
	}

	// 5. Create Gin engine with custom middleware (not gin.Default()).
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.Use(buildMiddleware(cfg, log.Logger)...)

	// 6. Register all routes.
	if err := RegisterRoutes(engine, &RouteDeps{
		Modules: []Module{rental.NewModule(handler)},
		Store:   storage.Store,
	}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine:    engine,
		storage:   storage,
		catalog:   cat,
		sessions:  sessions,
		scheduler: sched,
		logger:    log,
		cfg:       cfg,
	}, nil
}

// buildMiddleware returns the global middleware chain in order. The session
// is resolved after CORS and rate limiting so rejected and preflight
// requests never mint a session cookie.
func buildMiddleware(cfg *config.Config, log *slog.Logger) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{
		middleware.Recovery(log),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: false,
		}),
		middleware.Logger(log),
		middleware.CORSWithConfig(resolveCORSConfig(cfg.Server.Mode, cfg.Server.CORS)),
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		chain = append(chain, middleware.RateLimit(middleware.RateLimitConfig{
			RPS:   rl.RPS,
			Burst: rl.Burst,
		}))
	}

	sessionCfg := middleware.DefaultSessionConfig()
	if name := cfg.Server.Session.CookieName; name != "" {
		sessionCfg.CookieName = name
	}
	sessionCfg.MaxAge = config.DurationOr(cfg.Server.Session.MaxAge, sessionCfg.MaxAge)
	sessionCfg.Secure = cfg.Server.Session.Secure
	chain = append(chain, middleware.Session(sessionCfg))

	if d := config.DurationOr(cfg.Server.Timeout, 0); d > 0 {
		chain = append(chain, middleware.Timeout(d))
	}
	return chain
}

// buildSurfaces overlays configured surfaces on the built-in table. A zero
// page size or empty debounce keeps the built-in value.
func buildSurfaces(configured map[string]config.SurfaceConfig) map[string]session.Surface {
	surfaces := session.DefaultSurfaces()
	for name, sc := range configured {
		sf, ok := surfaces[name]
		if !ok {
			sf = session.Surface{PageSize: search.DefaultPageSize, Debounce: search.DefaultDebounce}
		}
		if sc.PageSize > 0 {
			sf.PageSize = sc.PageSize
		}
		if sc.Debounce != "" {
			sf.Debounce = config.DurationOr(sc.Debounce, sf.Debounce)
		}
		surfaces[name] = sf
	}
	return surfaces
}

func resolveCORSConfig(mode string, cfg config.CORSConfig) middleware.CORSConfig {
	corsConfig := middleware.DefaultCORSConfig()

	if len(cfg.AllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.AllowMethods
	}
	if len(cfg.AllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.AllowHeaders
	}
	corsConfig.AllowCredentials = cfg.AllowCredentials
	if d := config.DurationOr(cfg.MaxAge, 0); d > 0 {
		corsConfig.MaxAge = strconv.Itoa(int(d / time.Second))
	}

	if len(cfg.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowOrigins
		return corsConfig
	}

	if mode == gin.ReleaseMode {
		corsConfig.AllowOrigins = []string{}
	}

	return corsConfig
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

// Run starts the HTTP server and background jobs and blocks until a shutdown
// signal is received. It performs graceful shutdown with a 5-second timeout,
// then closes the coordinators and the store.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine)

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	// Start HTTP server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		a.log().Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		a.log().Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	if runErr == nil {
		// Graceful shutdown with 5-second deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log().Error("server shutdown error", slog.Any("error", err))
		}
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.sessions != nil {
		a.sessions.Close()
	}
	if a.catalog != nil {
		a.catalog.Close()
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.log().Error("storage close error", slog.Any("error", err))
		} else {
			a.log().Info("storage closed", slog.String("driver", a.storage.Driver))
		}
	}

	a.log().Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}

func (a *App) log() *slog.Logger {
	if a.logger != nil {
		return a.logger.Logger
	}
	return slog.Default()
}
