package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	sqlassets "github.com/rmsphere/control-plane/database"
	platformshandler "github.com/rmsphere/control-plane/domains/platforms/be/handler"
	platformsrepo "github.com/rmsphere/control-plane/domains/platforms/be/repo"
	platformsservice "github.com/rmsphere/control-plane/domains/platforms/be/service"
	tenantshandler "github.com/rmsphere/control-plane/domains/tenants/be/handler"
	tenantsprov "github.com/rmsphere/control-plane/domains/tenants/be/provisioning"
	tenantsrepo "github.com/rmsphere/control-plane/domains/tenants/be/repo"
	tenantsservice "github.com/rmsphere/control-plane/domains/tenants/be/service"
	platformauth "github.com/rmsphere/control-plane/platform/go/auth"
	"github.com/rmsphere/control-plane/platform/go/identity"
	platformlogging "github.com/rmsphere/control-plane/platform/go/logging"
	platformmiddleware "github.com/rmsphere/control-plane/platform/go/middleware"
	"github.com/rmsphere/control-plane/platform/go/migrate"
	"github.com/rmsphere/control-plane/platform/go/persistence"
	"github.com/rmsphere/control-plane/platform/go/tenant"
	tenantmiddleware "github.com/rmsphere/control-plane/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	SentryDSN       string        `env:"SENTRY_DSN"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`

	// Control-plane database (tenant directory + platform catalog).
	DatabaseURL string `env:"DATABASE_URL,required"`
	// Maintenance connection with CREATEDB/CREATEROLE privileges.
	AdminDatabaseURL string `env:"ADMIN_DATABASE_URL,required"`

	// Identity provider admin API.
	IdentityBaseURL      string            `env:"IDENTITY_BASE_URL,required"`
	IdentityAdminRealm   string            `env:"IDENTITY_ADMIN_REALM" envDefault:"master"`
	IdentityClientID     string            `env:"IDENTITY_ADMIN_CLIENT_ID,required"`
	IdentityClientSecret string            `env:"IDENTITY_ADMIN_CLIENT_SECRET,required"`
	IdentityRPS          float64           `env:"IDENTITY_RPS" envDefault:"10"`
	LoginTheme           string            `env:"LOGIN_THEME" envDefault:"rmsphere"`
	BaselineFlow         string            `env:"BASELINE_FLOW" envDefault:"browser"`
	CustomAuthenticator  string            `env:"CUSTOM_AUTHENTICATOR" envDefault:"rms-db-authenticator"`
	AuthenticatorConfig  map[string]string `env:"AUTHENTICATOR_CONFIG"`

	// Tenant resolution.
	BaseDomain      string   `env:"BASE_DOMAIN" envDefault:"rmsphere.io"`
	BaseDomains     []string `env:"BASE_DOMAINS" envDefault:"rmsphere.io"`
	AdminHostMarker string   `env:"ADMIN_HOST_MARKER" envDefault:"gateway"`
	GatewayTenantID string   `env:"GATEWAY_TENANT_ID" envDefault:"gateway"`
	DefaultTenantID string   `env:"DEFAULT_TENANT_ID" envDefault:"master"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "control-plane-api",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			logger.Fatal("init sentry", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init control-plane pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if err := persistence.BootstrapControlPlane(ctx, pool); err != nil {
		logger.Fatal("bootstrap control-plane schema", zap.Error(err))
	}

	adminDB, err := persistence.NewAdminDB(ctx, persistence.AdminDBConfig{ConnString: cfg.AdminDatabaseURL})
	if err != nil {
		logger.Fatal("init admin database channel", zap.Error(err))
	}
	defer adminDB.Close()

	identityAdmin, err := identity.NewAdmin(ctx, identity.AdminConfig{
		BaseURL:           cfg.IdentityBaseURL,
		AdminRealm:        cfg.IdentityAdminRealm,
		ClientID:          cfg.IdentityClientID,
		ClientSecret:      cfg.IdentityClientSecret,
		RequestsPerSecond: cfg.IdentityRPS,
	})
	if err != nil {
		logger.Fatal("init identity admin client", zap.Error(err))
	}

	tenantDir := tenantsrepo.NewPostgresDirectory(pool)
	migrator := migrate.NewSQLMigrator(sqlassets.FullSchemaSQL)
	dbProv := tenantsprov.NewDBProvisioner(adminDB, migrator, logger)
	realmProv := tenantsprov.NewRealmProvisioner(identityAdmin, tenantsprov.RealmProvisionerConfig{
		BaseDomain:            cfg.BaseDomain,
		LoginTheme:            cfg.LoginTheme,
		BaselineFlowAlias:     cfg.BaselineFlow,
		CustomAuthenticator:   cfg.CustomAuthenticator,
		AuthenticatorSettings: cfg.AuthenticatorConfig,
	}, logger)

	// The router sources coordinates from the service, and the service owns
	// the router for cache invalidation. Break the cycle with a late-bound
	// adapter.
	var tenantService *tenantsservice.Service
	connRouter := persistence.NewRouter(persistence.CoordinateSourceFunc(
		func(ctx context.Context, tenantID string) (persistence.Coordinates, error) {
			return tenantService.DatabaseCoordinates(ctx, tenantID)
		}))
	defer connRouter.Close()
	tenantService = tenantsservice.New(tenantDir, dbProv, realmProv, connRouter, logger)
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	platformRepo := platformsrepo.NewPostgresRepository(pool)
	platformService := platformsservice.New(platformRepo)
	platformHTTPHandler := platformshandler.New(platformService, logger)

	resolver := tenant.NewResolver(tenant.ResolverConfig{
		GatewayTenantID: cfg.GatewayTenantID,
		DefaultTenantID: cfg.DefaultTenantID,
		AdminHostMarker: cfg.AdminHostMarker,
		BaseDomains:     cfg.BaseDomains,
	}, tenantService)

	clientSelector := identity.NewSelector(resolver, tenantService, cfg.IdentityBaseURL)
	verifiers := platformauth.NewVerifierCache(cfg.IdentityBaseURL)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	if cfg.SentryDSN != "" {
		rootRouter.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Per-request OIDC client registration for gateway and app shells.
	rootRouter.Get("/oidc/client", func(w http.ResponseWriter, r *http.Request) {
		reg, err := clientSelector.Select(r.Context(), tenant.RequestInfo{
			Host:         r.Host,
			TenantHeader: r.Header.Get(tenantmiddleware.TenantHeader),
			UserAgent:    r.UserAgent(),
		})
		if err != nil {
			logger.Warn("client selection failed", zap.Error(err))
			http.Error(w, "tenant identity unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reg)
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(tenantmiddleware.WithTenantID(resolver))
	apiRouter.Use(platformauth.RequireAuth(verifiers, tenantService, logger))
	apiRouter.Use(platformmiddleware.RequestTrace)
	apiRouter.Group(func(r chi.Router) {
		r.Use(platformauth.RequireRole("admin"))
		tenantHTTPHandler.Mount(r)
		platformHTTPHandler.Mount(r)
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting control-plane api", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
