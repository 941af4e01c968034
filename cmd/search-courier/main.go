// cmd/search-courier/main.go
package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"search-courier/internal/audit"
	"search-courier/internal/common/camunda"
	"search-courier/internal/common/config"
	"search-courier/internal/common/database"
	"search-courier/internal/common/errors"
	httpclient "search-courier/internal/common/http"
	"search-courier/internal/common/logger"
	"search-courier/internal/common/observability"
	"search-courier/internal/courier"
	"search-courier/internal/server"
	"search-courier/internal/settings"
	dss "search-courier/internal/workers/search/default-search-strategy"
)

var startupRetry = &camunda.RetryConfig{
	MaxRetries: 10,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting search courier",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name, zapLog)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Elasticsearch (primary) ---
	esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		zapLog.Fatal("elasticsearch client", zap.Error(err))
	}
	if err := camunda.Retry(ctx, startupRetry, "elasticsearch connection", esClient.Ping); err != nil {
		connErr := errors.NewElasticsearchConnectionFailedError(err)
		zapLog.Fatal("elasticsearch failed after retries",
			zap.String("code", string(connErr.Code)),
			zap.String("details", connErr.Details),
		)
	}
	zapLog.Info("elasticsearch connected")

	// --- Redis (settings store) ---
	redisClient := database.NewRedis(cfg.Database.Redis)
	defer redisClient.Close()
	if err := camunda.Retry(ctx, startupRetry, "redis connection", redisClient.Ping); err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	zapLog.Info("redis connected")

	settingsStore := settings.NewRedisStore(redisClient.Client, cfg.Courier.Settings.KeyPrefix, log)

	checks := []server.Check{
		{Name: "elasticsearch", Probe: esClient.Ping},
		{Name: "redis", Probe: redisClient.Ping},
	}

	deps := courier.Dependencies{
		Primary:       courier.NewPrimaryDispatcher(esClient.Client),
		Decider:       courier.NewRoutingDecider(cfg.Courier.Routing.ThresholdDays, cfg.Courier.Routing.EligibleHosts),
		Loading:       settingsStore,
		Observability: obs,
		Logger:        log,
	}

	if cfg.Courier.Secondary.Enabled {
		deps.Secondary = courier.NewSecondaryDispatcher(
			httpclient.NewClient(config.GetDuration(cfg.Courier.Secondary.Timeout)),
			cfg.Courier.Secondary.DefaultBaseURL,
			cfg.Courier.Secondary.Path,
			settingsStore,
			log,
		)
	}

	// --- Postgres (audit trail, optional) ---
	if cfg.Database.Postgres.Enabled {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			zapLog.Fatal("postgres client", zap.Error(err))
		}
		defer pg.Close()
		if err := camunda.Retry(ctx, startupRetry, "postgres connection", pg.Ping); err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}

		auditStore := audit.NewPostgresStore(pg.DB)
		if err := auditStore.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("audit schema", zap.Error(err))
		}
		deps.Audit = auditStore
		checks = append(checks, server.Check{Name: "postgres", Probe: pg.Ping})
		zapLog.Info("postgres connected, search audit enabled")
	}

	registry := courier.NewRegistry(courier.NewDefaultStrategy(deps), courier.NoOpStrategy{})
	executor := courier.NewExecutor(registry, courier.ExecutorDefaults{
		IncludeFrozen:              cfg.Courier.IncludeFrozen,
		MaxConcurrentShardRequests: cfg.Courier.MaxConcurrentShardRequests,
	}, log)

	// --- Zeebe job worker (optional) ---
	var (
		zeebe     *camunda.Client
		jobWorker worker.JobWorker
	)
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
			RetryConfig:            startupRetry,
		})
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		checks = append(checks, server.Check{Name: "zeebe", Probe: zeebe.HealthCheck})

		handler := dss.NewHandler(dss.LoadConfig(cfg), executor, log)
		jobWorker = camunda.StartWorker(zeebe.GetClient(), dss.TaskType, config.GetWorkerConfig(cfg, dss.TaskType), handler.Handle, log)
	}

	// --- HTTP API, health and metrics ---
	api := server.New(server.Options{
		Searcher:      executor,
		Settings:      settingsStore,
		Checks:        checks,
		SearchTimeout: config.GetDuration(cfg.Courier.SearchTimeout),
		Logger:        log,
	})
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.Router(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("http server listening", zap.String("addr", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			zapLog.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http shutdown", zap.Error(err))
	}
	if jobWorker != nil {
		jobWorker.Close()
		jobWorker.AwaitClose()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("error closing zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("search courier stopped")
}
