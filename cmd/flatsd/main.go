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

	"github.com/SherClockHolmes/webpush-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"

	"flats-rental-backend/config"
	"flats-rental-backend/internal/api"
	"flats-rental-backend/internal/audit"
	"flats-rental-backend/internal/db"
	"flats-rental-backend/internal/factory"
	"flats-rental-backend/internal/host"
	"flats-rental-backend/internal/ledger"
	"flats-rental-backend/internal/logging"
	"flats-rental-backend/internal/model"
	"flats-rental-backend/internal/notification"
)

func main() {
	logging.Init("flatsd", "")
	logger := logging.Logger

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logging.Init("flatsd", cfg.LogLevel)
	logger.Infof("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt := host.NewRuntime(gormDB)
	rt.Register(model.CodeFactory, factory.New(factory.Config{
		Fee:      cfg.Factory.Fee,
		Funding:  cfg.Factory.Funding,
		MaxRooms: cfg.Factory.MaxRooms,
	}))
	rt.Register(model.CodeHouseLedger, ledger.NewHouse())
	rt.Register(model.CodeFlatsLedger, ledger.NewFlatsWithMaxRooms(cfg.Factory.MaxRooms))

	if err := bootstrapFactory(ctx, rt, cfg.Factory); err != nil {
		logger.Fatalf("failed to bootstrap factory %s: %v", cfg.Factory.Account, err)
	}

	var stopRunner func(context.Context) error
	switch cfg.Host.Runner {
	case "river":
		pgPool, err := pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatalf("failed to open pgx pool: %v", err)
		}
		defer pgPool.Close()
		runner, err := host.NewRiverRunner(ctx, pgPool, rt, cfg.Host.WorkerPoolSize)
		if err != nil {
			logger.Fatalf("failed to create river runner: %v", err)
		}
		if err := runner.Start(ctx); err != nil {
			logger.Fatalf("failed to start river runner: %v", err)
		}
		rt.SetRunner(runner)
		stopRunner = runner.Stop
	default:
		pool := host.NewPool(cfg.Host.WorkerPoolSize, cfg.Host.QueueDepth, rt)
		pool.Start(ctx)
		rt.SetRunner(pool)
	}
	logger.Infof("chain runner %q started", cfg.Host.Runner)

	if n, err := rt.Recover(ctx); err != nil {
		logger.WithError(err).Error("failed to recover open chains")
	} else if n > 0 {
		logger.Infof("resubmitted %d open chains", n)
	}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Warn("VAPID keys are not configured; availability notifications are disabled")
	} else {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		notifier := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		notifier.Start(ctx)
		rt.Subscribe(notifier.OnEvent)
	}

	c := cron.New(cron.WithLocation(time.UTC))
	auditor := audit.New(rt, cfg.Audit.StaleAfter)
	if _, err := auditor.Schedule(c, cfg.Audit.Schedule, time.Minute); err != nil {
		logger.Fatalf("failed to schedule chain audit: %v", err)
	}
	c.Start()

	router := api.NewRouter(rt, gormDB, api.Options{
		Factory:         cfg.Factory.Account,
		JWTSecret:       []byte(cfg.Server.JWTSecret),
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		RequestIPHeader: cfg.Server.RequestIPHeader,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		Webpush:         webpushOptions,
	})
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Attached-Deposit"},
	}).Handler(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: corsHandler,
	}

	go func() {
		logger.Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server Shutdown: %v", err)
	}
	<-c.Stop().Done()
	if stopRunner != nil {
		if err := stopRunner(shutdownCtx); err != nil {
			logger.Errorf("chain runner Stop: %v", err)
		}
	}
	cancel()

	logger.Info("Server gracefully stopped")
}

// bootstrapFactory makes sure the factory account exists, runs the factory
// code and is initialized with the configured owner.
func bootstrapFactory(ctx context.Context, rt *host.Runtime, cfg config.FactoryConfig) error {
	created, err := rt.Accounts().Bootstrap(ctx, cfg.Account, model.CodeFactory, decimal.Zero)
	if err != nil {
		return err
	}
	call := host.Call{Predecessor: cfg.Owner, Signer: cfg.Owner}
	_, err = rt.Invoke(ctx, cfg.Account, factory.MethodNew, call, factory.InitArgs{Owner: cfg.Owner})
	if err != nil && !errors.Is(err, model.ErrAlreadyInitialized) {
		return err
	}
	if created {
		logging.Logger.WithField("account", cfg.Account).Info("factory account created")
	}
	return nil
}
