package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/svenskhalsovard/storefront/api"
	"github.com/svenskhalsovard/storefront/api/middleware"
	"github.com/svenskhalsovard/storefront/config"
	"github.com/svenskhalsovard/storefront/core/catalog"
	"github.com/svenskhalsovard/storefront/core/storefront"
	"github.com/svenskhalsovard/storefront/gateway"
	"github.com/svenskhalsovard/storefront/rate"
	"github.com/svenskhalsovard/storefront/storage"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	const prefix = "STOREFRONT"
	var cfg config.Config
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(lvl)
	}
	if cfg.Log.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open the %s store: %w", cfg.Storage.Driver, err)
	}
	defer backend.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gw := gateway.New(
		cfg.Gateway,
		logger,
		gateway.WithMetrics(gateway.NewMetrics(reg)),
		gateway.WithRequestID(middleware.ContextRequestID),
	)

	src, err := catalogSource(cfg.Catalog, gw)
	if err != nil {
		return fmt.Errorf("failed to set up the catalog: %w", err)
	}

	cat := catalog.New(src, logger)
	if err := cat.Refresh(ctx); err != nil {
		if cfg.Catalog.Source == "static" {
			return fmt.Errorf("failed to load the catalog: %w", err)
		}
		logger.WithError(err).Warn("catalog unavailable, retrying in the background")
	}
	go refreshCatalog(ctx, cat, cfg.Catalog.RefreshInterval, logger)

	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.Session.Lifetime
	sessionManager.IdleTimeout = cfg.Session.IdleTimeout
	sessionManager.Cookie.Name = "storefront_session"
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	sessionManager.Cookie.Secure = cfg.Session.Secure

	registry := storefront.NewRegistry(backend, cat, gw, cfg.Storage.CartTTL, cfg.Session.IdleTimeout, logger)
	go registry.Run(ctx, time.Minute)

	limiter := rate.NewLimiter(cfg.Rate.Burst, cfg.Rate.Expiry, rate.Every(cfg.Rate.Every))
	defer limiter.Close()

	mux := api.APIMux(api.APIConfig{
		CorsOrigin: cfg.Cors.Origin,
		Log:        logger,
		Session:    sessionManager,
		Registry:   registry,
		Catalog:    cat,
		Limiter:    limiter,
		Gatherer:   reg,
	})

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)
		cancel()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}
	return nil
}

func catalogSource(cfg config.Catalog, gw *gateway.Client) (catalog.Source, error) {
	switch cfg.Source {
	case "static":
		return catalog.StaticSource{}, nil
	case "http":
		return catalog.HTTPSource{Lister: gw}, nil
	case "postgres":
		db, err := catalog.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return catalog.PostgresSource{DB: db}, nil
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Source)
	}
}

func refreshCatalog(ctx context.Context, cat *catalog.Catalog, every time.Duration, log logrus.FieldLogger) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cat.Refresh(ctx); err != nil {
				log.WithError(err).Warn("refreshing catalog")
			}
		}
	}
}
