// Package app is the composition root shared by the server and the CLI.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/auth"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/config"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/db"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/host"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/i18n"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/marketplace"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/metrics"
	mw "github.com/Exilon-Studios/exiloncms.fr-sub002/internal/middleware"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/plugin"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/surface"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/view"

	// Built-in plugins register their providers in init.
	_ "github.com/Exilon-Studios/exiloncms.fr-sub002/plugins/localmedia"
	_ "github.com/Exilon-Studios/exiloncms.fr-sub002/plugins/oidc"
	_ "github.com/Exilon-Studios/exiloncms.fr-sub002/plugins/webhook"
)

const pingTimeout = 3 * time.Second

type App struct {
	Config *config.Config
	Logger *zap.Logger

	Hooks      *hooks.Registry
	Surfaces   *surface.Registry
	Views      *view.Registry
	Translator *i18n.Translator
	Migrations *db.PluginMigrations
	Kernel     *host.Kernel
	Manager    *plugin.Manager
	Metrics    *metrics.Collector
	JWT        *auth.JWTService
	Updates    *marketplace.Checker
	Router     *mux.Router

	// DB and Store are nil when no database is configured or reachable.
	DB    *db.DB
	Store *plugin.Store
	Redis *redis.Client

	limiter *mw.RateLimiter
}

type options struct {
	mode    plugin.Mode
	catalog *plugin.Catalog
}

type Option func(*options)

// WithMode selects web (default) or CLI activation.
func WithMode(m plugin.Mode) Option {
	return func(o *options) { o.mode = m }
}

// WithCatalog replaces the catalog of compiled-in providers.
func WithCatalog(c *plugin.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// New wires every subsystem. Only configuration errors are fatal; an
// unreachable database or Redis degrades to running without it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{mode: plugin.ModeWeb}
	for _, opt := range opts {
		opt(&o)
	}

	hostVersion, err := semver.NewVersion(cfg.Server.HostVersion)
	if err != nil {
		return nil, fmt.Errorf("server.host_version: %w", err)
	}
	translator, err := i18n.NewTranslator(cfg.Server.FallbackLocale, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Translator: translator,
		Surfaces:   surface.NewRegistry(logger),
		Migrations: db.NewPluginMigrations(),
		Metrics:    metrics.NewCollector(logger),
		JWT:        auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Router:     mux.NewRouter(),
	}
	a.Hooks = hooks.NewRegistry(logger, hooks.WithFailureObserver(a.Metrics))
	a.Views = view.NewRegistry(logger, view.WithFuncs(host.ViewFuncs(translator)))
	a.Updates = marketplace.NewChecker(cfg.Marketplace.IndexURL, logger, marketplace.WithTimeout(cfg.Marketplace.Timeout))

	var limitOpts []mw.RateLimitOption
	if cfg.Server.TrustProxy {
		limitOpts = append(limitOpts, mw.TrustForwardedFor())
	}
	a.limiter = mw.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, limitOpts...)

	a.Kernel = host.NewKernel(a.Router, a.Views, a.Translator, a.Migrations, logger,
		host.WithGroup(host.GroupWeb, a.limiter.Middleware),
		host.WithGroup(host.GroupAuth, mw.AuthMiddleware(a.JWT)),
	)

	managerOpts := []plugin.ManagerOption{
		plugin.WithTTL(cfg.Plugins.ScanTTL),
		plugin.WithEnabled(cfg.Plugins.Enabled),
	}
	if a.connectDB(ctx) {
		a.Store = plugin.NewStore(a.DB.Pool)
		managerOpts = append(managerOpts, plugin.WithStateStore(a.Store))
	}
	if a.connectRedis(ctx) {
		managerOpts = append(managerOpts, plugin.WithScanCache(plugin.NewRedisScanCache(a.Redis, logger)))
	}

	activator := plugin.NewActivator(o.catalog, a.Kernel, a.Hooks, a.Surfaces, logger,
		plugin.WithMode(o.mode),
		plugin.WithHostVersion(hostVersion),
		plugin.WithSettings(cfg.Plugins.Settings),
		plugin.WithActivationObserver(a.Metrics),
	)
	a.Manager = plugin.NewManager(cfg.Plugins.Root, activator, logger, managerOpts...)

	a.routes()
	return a, nil
}

func (a *App) connectDB(ctx context.Context) bool {
	url := a.Config.Database.URL
	if url == "" {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	database, err := db.New(pingCtx, url)
	if err != nil {
		a.Logger.Warn("database unavailable, plugin state will not persist", zap.Error(err))
		return false
	}
	if err := db.RunMigrations(url, a.Config.Database.MigrationsPath); err != nil {
		a.Logger.Warn("host migrations failed", zap.Error(err))
	}
	a.DB = database
	return true
}

func (a *App) connectRedis(ctx context.Context) bool {
	if a.Config.Redis.Addr == "" {
		return false
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.Logger.Warn("redis unavailable, discovery cache disabled", zap.Error(err))
		client.Close() //nolint:errcheck
		return false
	}
	a.Redis = client
	return true
}

func (a *App) routes() {
	r := a.Router
	r.Use(a.limiter.Middleware)
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", a.Metrics.Handler()).Methods(http.MethodGet)

	admin := mw.Chain(mw.AuthMiddleware(a.JWT), mw.RequireRole(auth.RoleAdmin))
	plugin.NewHandlers(a.Manager, a.Hooks, a.Surfaces, a.Updates, admin).RegisterRoutes(r)
}

// Handler is the root HTTP handler: request logging and metrics around the
// router.
func (a *App) Handler() http.Handler {
	return mw.RequestLogger(a.Logger)(a.Metrics.Middleware(a.Router))
}

// Close releases connections and background goroutines.
func (a *App) Close() {
	a.limiter.Stop()
	if a.Redis != nil {
		a.Redis.Close() //nolint:errcheck
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"}) //nolint:errcheck
}
