package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"panel-service/internal/broker"
	"panel-service/internal/cache"
	"panel-service/internal/config"
	"panel-service/internal/database"
	"panel-service/internal/repositories/kafkarepo"
	"panel-service/internal/repositories/postgresrepo"
	"panel-service/internal/repositories/redisrepo"
	"panel-service/internal/services"
	"panel-service/internal/transport/http/handler"
	"panel-service/internal/worker"

	log "github.com/sirupsen/logrus"
)

type App struct {
	cfg              *config.Config
	httpServer       *http.Server
	partitionManager *worker.PartitionManager
}

func New() (*App, error) {
	a := new(App)

	// Initialize config
	a.cfg = config.New()

	// Apply migrations
	if err := database.Migrate(a.cfg.Postgres.URL, a.cfg.Postgres.MigrationsDir); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	// Connect to database
	db, err := database.NewPostgres(a.cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("database connection error: %w", err)
	}

	// Connect to cache
	redis, err := cache.NewRedis(a.cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("cache connection error: %w", err)
	}

	// Connect to broker
	kafka, err := broker.NewKafkaWriter(a.cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("broker connection error: %w", err)
	}

	// Initialize repositories
	operationRepo := postgresrepo.NewOperationRepository(db)
	poolRepo := postgresrepo.NewPoolRepository(db)
	balanceCache := redisrepo.NewBalanceRepository(redis)
	limiter := redisrepo.NewRateLimitRepository(redis, a.cfg.RateLimit.Limit, a.cfg.RateLimit.Window)
	jobRepo := kafkarepo.NewJobRepository(kafka)

	// Initialize services
	operationService := services.NewOperationService(operationRepo, jobRepo, balanceCache, limiter)
	poolService := services.NewPoolService(poolRepo)
	reaperService := services.NewReaperService(operationService, operationRepo, a.cfg.Reaper.StaleAfter)

	// Initialize mux and handlers
	mux := http.NewServeMux()

	handler.NewOperation(mux, operationService)
	handler.NewAdmin(mux, poolService)
	handler.NewCron(mux, reaperService, a.cfg.Cron.Secret)

	// Initialize http server
	a.httpServer = &http.Server{
		Addr:         a.cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// Worker callback consumer
	a.partitionManager = worker.NewPartitionManager(a.cfg, operationService)

	return a, nil
}

func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("Received shutdown signal")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("HTTP server shutdown error")
		}
		cancel()
	}()

	go func() {
		if err := a.partitionManager.Start(ctx); err != nil {
			log.WithError(err).Error("Callback consumer error")
		}
	}()

	log.Infof("Starting HTTP server on port %s", a.cfg.Server.Port)
	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}
