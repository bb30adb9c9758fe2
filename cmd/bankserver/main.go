// Command bankserver runs the custodial ledger HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/bloxify/blxbank/internal/app"
	"github.com/bloxify/blxbank/internal/app/httpapi"
	"github.com/bloxify/blxbank/internal/app/storage/postgres"
	"github.com/bloxify/blxbank/internal/config"
	"github.com/bloxify/blxbank/internal/custody"
	"github.com/bloxify/blxbank/internal/logging"
	"github.com/bloxify/blxbank/internal/metrics"
	"github.com/bloxify/blxbank/internal/middleware"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Local .env is optional.
	_ = godotenv.Load()

	cfg := config.LoadOrDefault(*configPath)
	logging.SetLevel(cfg.LogLevel)
	log := logging.New("main")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("server exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logging.Logger) error {
	stores := app.Stores{}
	if cfg.DatabaseURL != "" {
		if err := runMigrations(cfg, log); err != nil {
			return err
		}
		store, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		stores = app.Stores{Bank: store, Locks: store, Transactions: store}
		log.Info("using postgres storage")
	} else {
		log.Warn("no database configured, ledger state is in memory only")
	}

	adapter, err := buildCustody(cfg)
	if err != nil {
		return err
	}

	application, err := app.New(app.Options{
		Stores:            stores,
		Custody:           adapter,
		Administrator:     cfg.Administrator,
		ReconcileSchedule: cfg.ReconcileSchedule,
	})
	if err != nil {
		return err
	}
	application.Start()
	defer application.Stop()

	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	httpapi.NewHandler(application.Bank, application.Bus).Register(router)

	auth := middleware.NewAuth(cfg.JWTSecret, "/healthz", "/metrics")
	limiter := middleware.NewRateLimiter(float64(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	handler := metrics.InstrumentHandler(auth.Handler(limiter.Handler(router)))

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("listening")
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func buildCustody(cfg *config.Config) (custody.Adapter, error) {
	switch cfg.Custody.Mode {
	case config.CustodyRPC:
		return custody.NewRPCAdapter(custody.RPCConfig{URL: cfg.Custody.RPCURL})
	default:
		return custody.NewVault(), nil
	}
}

func runMigrations(cfg *config.Config, log *logging.Logger) error {
	m, err := migrate.New("file://"+cfg.MigrationsDir, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	log.Info("migrations applied")
	return nil
}
