package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pennywise-app/nudge-engine/internal/broker"
	"github.com/pennywise-app/nudge-engine/internal/config"
	"github.com/pennywise-app/nudge-engine/internal/dispatch"
	"github.com/pennywise-app/nudge-engine/internal/engine"
	"github.com/pennywise-app/nudge-engine/internal/handler"
	"github.com/pennywise-app/nudge-engine/internal/logger"
	"github.com/pennywise-app/nudge-engine/internal/queue/sqs"
	"github.com/pennywise-app/nudge-engine/internal/repository/clickhouse"
	"github.com/pennywise-app/nudge-engine/internal/repository/sqlite"
	"github.com/pennywise-app/nudge-engine/internal/service"
	"github.com/pennywise-app/nudge-engine/internal/signal"
	"github.com/pennywise-app/nudge-engine/internal/suppression"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		err := log.Sync()
		if err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting API service",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Service.APIPort))

	ctx := context.Background()

	// Initialize SQS client
	sqsClient, err := sqs.NewClient(ctx, cfg.SQS, log)
	if err != nil {
		log.Fatal("Failed to create SQS client", zap.Error(err))
	}

	// Initialize ClickHouse client
	clickhouseClient, err := clickhouse.NewClient(ctx, &cfg.ClickHouse, log)
	if err != nil {
		log.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}
	defer func(clickhouseClient *clickhouse.Client) {
		if err := clickhouseClient.Close(); err != nil {
			log.Error("Failed to close ClickHouse client", zap.Error(err))
		}
	}(clickhouseClient)

	// Initialize snapshot repository
	snapshots := clickhouse.NewRepository(clickhouseClient, log)
	if err := snapshots.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize snapshot schema", zap.Error(err))
	}

	// Initialize nudge store
	store, err := sqlite.Open(cfg.SQLite.Path, log)
	if err != nil {
		log.Fatal("Failed to open nudge store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close nudge store", zap.Error(err))
		}
	}()

	if err := store.InitSchema(ctx); err != nil {
		log.Fatal("Failed to initialize nudge store schema", zap.Error(err))
	}
	log.Info("Database schemas initialized")

	// Initialize signal providers
	var providers []signal.Provider
	for name, url := range map[string]string{
		"spend":  cfg.Feeds.SpendURL,
		"budget": cfg.Feeds.BudgetURL,
		"goal":   cfg.Feeds.GoalURL,
	} {
		if url == "" {
			log.Warn("Signal feed not configured, skipping", zap.String("feed", name))
			continue
		}
		providers = append(providers, signal.NewHTTPFeed(name, url))
	}

	aggregator := signal.NewAggregator(providers, snapshots, log)

	// Initialize delivery path
	liveBroker := broker.New(log)
	ledger := suppression.NewLedger(store, log)
	dispatcher := dispatch.NewDispatcher(ledger, store, liveBroker, log)

	// Initialize batch engine
	batchEngine := engine.New(snapshots, store, aggregator, dispatcher, engine.Config{
		AggregationWorkers: cfg.Engine.AggregationWorkers,
		EvaluationWorkers:  cfg.Engine.EvaluationWorkers,
	}, log)

	// Initialize nudge service
	nudgeService := service.NewNudgeService(batchEngine, store, sqsClient, log)

	// Initialize handler
	h := handler.NewHandler(nudgeService, liveBroker, log)

	addr := fmt.Sprintf(":%s", cfg.Service.APIPort)
	log.Info("API server starting", zap.String("address", addr))

	if err := http.ListenAndServe(addr, h); err != nil {
		log.Fatal("Failed to start API server", zap.Error(err))
	}
}
