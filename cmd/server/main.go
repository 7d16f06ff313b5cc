// Command server runs the MovieStar gateway: browser sessions, the
// catalog proxy and the admin back office over one HTTP listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alpyxn/moviestar/internal/auth"
	"github.com/alpyxn/moviestar/internal/client"
	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/constants"
	"github.com/alpyxn/moviestar/internal/handlers"
	"github.com/alpyxn/moviestar/internal/identity"
	"github.com/alpyxn/moviestar/internal/middleware"
	"github.com/alpyxn/moviestar/internal/redis"
	"github.com/alpyxn/moviestar/internal/upload"
	"github.com/alpyxn/moviestar/pkg/logger"
)

// discoveryTimeout bounds identity provider discovery at startup.
const discoveryTimeout = 10 * time.Second

// services groups the long-lived dependencies built at startup.
type services struct {
	store       redis.Store
	backend     string
	redisClient *goredis.Client
	api         *client.BaseClient
	sessions    auth.SessionService
	uploader    *upload.Client
	registry    *prometheus.Registry
}

func main() {
	if env := os.Getenv("GO_ENV"); env == "" || env == "development" {
		if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: could not read .env.local: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithConfig(&cfg.Logging)
	log.WithFields(logrus.Fields{
		"version":     handlers.Version,
		"addr":        cfg.ServerAddr(),
		"tls":         cfg.IsTLSEnabled(),
		"environment": cfg.Environment.Environment,
		"api":         cfg.API.BaseURL,
		"issuer":      cfg.Identity.IssuerURL,
	}).Info("Starting MovieStar gateway")

	svc, err := initializeServices(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize services")
	}
	defer closeStore(svc.store, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, setupServer(cfg, svc, log), cfg, log); err != nil {
		log.WithError(err).Error("Gateway stopped with an error")
		closeStore(svc.store, log)
		os.Exit(1)
	}
}

func initializeServices(cfg *config.Config, log *logrus.Logger) (*services, error) {
	svc := &services{registry: prometheus.NewRegistry()}
	svc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	redisStore, err := redis.NewClient(&cfg.Redis, log)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, using the in-memory session store; " +
			"sessions will not survive a restart and rate limiting is off")
		svc.store = redis.NewMemoryStore(log)
		svc.backend = "memory"
	} else {
		svc.store = redisStore
		svc.backend = "redis"
		svc.redisClient = redisStore.GetRedisClient()
	}

	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	defer cancel()

	idp, err := identity.NewClient(ctx, &cfg.Identity, log)
	if err != nil {
		closeStore(svc.store, log)
		return nil, fmt.Errorf("failed to create identity client: %w", err)
	}

	svc.api = client.NewBaseClient(cfg.API.BaseURL, cfg.API.Timeout, log)
	svc.sessions = auth.NewSessionService(
		cfg,
		svc.store,
		svc.backend,
		idp,
		svc.api,
		client.NewMetrics(svc.registry),
		log,
	)
	svc.uploader = upload.NewClient(cfg.Upload, log)

	if !svc.uploader.Enabled() {
		log.Warn("UPLOAD_API_KEY is not set, image uploads are disabled")
	}

	return svc, nil
}

func closeStore(store redis.Store, log *logrus.Logger) {
	if err := store.Close(); err != nil {
		log.WithError(err).Error("Failed to close session store")
	}
}

func setupServer(cfg *config.Config, svc *services, log *logrus.Logger) *http.Server {
	authHandler := handlers.NewAuthHandler(svc.sessions, cfg, log)
	catalogHandler := handlers.NewCatalogHandler(cfg, log)
	adminHandler := handlers.NewAdminHandler(svc.uploader, cfg.Upload.MaxBytes, log)
	healthHandler := handlers.NewHealthHandler(
		cfg,
		svc.store,
		svc.sessions,
		svc.api,
		handlers.NewHealthMetrics(svc.registry),
		log,
	)

	stack := middleware.NewStack(cfg, svc.sessions, svc.redisClient, log)

	router := mux.NewRouter()
	apiV1Router := router.PathPrefix(constants.APIPrefix).Subrouter()

	// Health and metrics need no session
	healthHandler.RegisterRoutes(apiV1Router)
	apiV1Router.Handle("/metrics", promhttp.HandlerFor(svc.registry, promhttp.HandlerOpts{})).
		Methods(http.MethodGet)

	// Everything else runs with the caller's session, anonymous or not
	sessionRouter := apiV1Router.NewRoute().Subrouter()
	sessionRouter.Use(stack.Session)

	authHandler.RegisterRoutes(sessionRouter.PathPrefix("/auth").Subrouter())
	catalogHandler.RegisterRoutes(sessionRouter, stack.RequireSession)

	adminRouter := sessionRouter.PathPrefix("/admin").Subrouter()
	adminRouter.Use(stack.RequireRealmRole(cfg.Identity.AdminRole))
	adminHandler.RegisterRoutes(adminRouter)

	handler := stack.Chain(
		router,
		stack.Recovery,
		stack.RequestLogger,
		stack.SecurityHeaders,
		stack.CORS,
		stack.RateLimit,
		stack.ContentType,
	)

	return &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

// serve runs server until ctx is cancelled and then drains in-flight
// requests for at most Server.ShutdownTimeout.
func serve(ctx context.Context, server *http.Server, cfg *config.Config, log *logrus.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", server.Addr).Info("Listening")
		var err error
		if cfg.IsTLSEnabled() {
			err = server.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", server.Addr, err)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		log.Info("Server exited gracefully")
		return nil
	})

	return g.Wait()
}
