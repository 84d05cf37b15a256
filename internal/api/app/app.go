package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	httpapi "github.com/kiloOhm/kilo-zone/internal/api/http"
	"github.com/kiloOhm/kilo-zone/internal/api/service"
	"github.com/kiloOhm/kilo-zone/internal/api/store"
	"github.com/kiloOhm/kilo-zone/internal/api/store/drivers/bolt"
	"github.com/kiloOhm/kilo-zone/pkg/authflow"
	"github.com/kiloOhm/kilo-zone/pkg/cache"
	"github.com/kiloOhm/kilo-zone/pkg/cache/drivers/memory"
	"github.com/kiloOhm/kilo-zone/pkg/cache/drivers/redis"
	"github.com/kiloOhm/kilo-zone/pkg/cache/drivers/sqlite"
	"github.com/kiloOhm/kilo-zone/pkg/capability"
	"github.com/kiloOhm/kilo-zone/pkg/httpx"
	"github.com/kiloOhm/kilo-zone/pkg/idp"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
	"github.com/kiloOhm/kilo-zone/pkg/metrics"
	"github.com/kiloOhm/kilo-zone/pkg/session"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

// BuildVersion and Commit are overridden at build time via ldflags.
var (
	BuildVersion = "v0.1.0"
	Commit       = "unknown"
)

// Application wires the API server together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	cache   cache.Cache
	objects store.Store
	metrics *metrics.Metrics

	// Services
	idp                 *idp.Client
	verifier            *jwtx.Verifier
	controller          *authflow.Controller
	objectService       *service.ObjectService
	housekeepingService *service.HousekeepingService // only for caches that need sweeping

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "kilo-zone-api",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(BuildVersion, Commit),
	}

	c, err := OpenCache(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	app.cache = c
	app.logger.Info("cache ready", "driver", cfg.CacheDriver)

	objects, err := bolt.Open(cfg.ObjectsDatabaseFile, bolt.WithMaxSize(cfg.MaxFileSize))
	if err != nil {
		closeQuietly(app.cache)
		return nil, fmt.Errorf("failed to open object storage: %w", err)
	}
	app.objects = objects

	app.initServices()
	app.initHTTP()

	return app, nil
}

// OpenCache builds the cache driver selected by cfg.CacheDriver.
func OpenCache(ctx context.Context, cfg Config) (cache.Cache, error) {
	switch cfg.CacheDriver {
	case CacheRedis:
		c, err := redis.Open(ctx, cfg.RedisURL, redis.WithPrefix("kilozone:"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return c, nil
	case CacheSQLite:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", cfg.CacheDatabaseFile)
		c, err := sqlite.NewStore(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache database: %w", err)
		}
		if err := c.ApplyMigrations(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to apply cache migrations: %w", err)
		}
		return c, nil
	case CacheMemory, "":
		return memory.New(time.Minute), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.CacheDriver)
	}
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives.
func (app *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if app.housekeepingService != nil {
		app.housekeepingService.Start()
	}

	app.logger.Info("api starting", "port", app.cfg.Port, "version", BuildVersion, "dev", app.cfg.Dev)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutdown requested")
		return app.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down api...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.housekeepingService != nil {
		app.housekeepingService.Stop()
	}

	var errs []error
	if err := app.objects.Close(); err != nil {
		app.logger.Error("error closing object storage", "error", err)
		errs = append(errs, err)
	}
	if err := closeQuietly(app.cache); err != nil {
		app.logger.Error("error closing cache", "error", err)
		errs = append(errs, err)
	}

	app.logger.Info("api stopped")
	return errors.Join(errs...)
}

// Handler exposes the router for in-process tests.
func (app *Application) Handler() http.Handler { return app.router }

func (app *Application) initServices() {
	app.idp = idp.New(idp.Config{
		BaseURL:           app.cfg.AuthURL,
		ClientID:          app.cfg.ClientID,
		ClientSecret:      app.cfg.ClientSecret,
		RedirectURI:       app.cfg.RedirectURI,
		Audience:          app.cfg.APIAudience,
		RequestsPerSecond: app.cfg.IdPRequestsPerSecond,
	})

	app.verifier = jwtx.NewVerifier(
		jwtx.NewKeySource(app.cache, nil),
		app.idp.Issuer(),
		[]string{app.cfg.APIAudience},
		jwtx.WithIDTokenAudiences(app.cfg.ClientID),
		jwtx.WithIntrospector(app.idp),
	)

	var sessionOpts []session.Option
	if app.cfg.Dev {
		sessionOpts = append(sessionOpts, session.WithInsecure())
	}

	app.controller = authflow.New(authflow.Config{
		IdP:      app.idp,
		Verifier: app.verifier,
		Sessions: session.NewManager(app.cfg.AuthSecret, app.verifier, sessionOpts...),
		Cache:    app.cache,
		Hostname: app.cfg.Hostname,
		Dev:      app.cfg.Dev,
	})

	app.objectService = &service.ObjectService{
		Store:       app.objects,
		Issuer:      capability.NewIssuer(app.cfg.ObjectStorageSigningSecret, app.cfg.Hostname, app.cfg.Dev),
		MaxFileSize: app.cfg.MaxFileSize,
		LinkTTL:     app.cfg.ObjectLinkTTL,
	}

	if sw, ok := app.cache.(cache.Sweeper); ok {
		app.housekeepingService = service.NewHousekeepingService(sw, app.logger, app.cfg.HousekeepingInterval)
		app.housekeepingService.OnSwept = app.metrics.CacheSwept
	}
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.cache, app.objects, app.metrics, app.logger)

	router.Auth = app.controller
	router.Objects = app.objectService
	router.Cookie = app.cfg.SessionCookie
	router.RateLimit = httpx.RateLimitConfig{
		Anonymous:     httpx.Budget{Requests: app.cfg.RateLimitAnonRequests, Window: app.cfg.RateLimitWindow},
		Authenticated: httpx.Budget{Requests: app.cfg.RateLimitAuthRequests, Window: app.cfg.RateLimitWindow},
		SkipSecret:    app.cfg.RateLimitSkipSecret,
		Dev:           app.cfg.Dev,
		IPHeader:      app.cfg.RateLimitIPHeader,
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

func closeQuietly(v any) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
