package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ponytojas/go-cr310-ingest/config"
	"github.com/ponytojas/go-cr310-ingest/internal/database"
	"github.com/ponytojas/go-cr310-ingest/internal/ingest"
	"github.com/ponytojas/go-cr310-ingest/internal/logger"
	"github.com/ponytojas/go-cr310-ingest/internal/metrics"
	"github.com/ponytojas/go-cr310-ingest/internal/mqtt"
	"github.com/ponytojas/go-cr310-ingest/internal/normalizer"
	"github.com/ponytojas/go-cr310-ingest/internal/server"
)

func main() {
	cfg, zlog, err := bootstrap(".")
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("Service stopped with error", zap.Error(err))
	}
}

// bootstrap loads the configuration found in dir and builds the logger.
// A missing config file falls back to defaults and environment variables; a
// malformed or invalid configuration is an error.
func bootstrap(dir string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, zlog, nil
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	zlog.Info("Starting CR310 ingest service", zap.String("storage", cfg.Storage.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			zlog.Warn("Error closing store", zap.Error(err))
		}
	}()

	policy, err := normalizer.ParsePolicy(cfg.Ingest.ConsistencyPolicy)
	if err != nil {
		return err
	}
	norm := normalizer.New(
		normalizer.WithThreshold(cfg.Ingest.ConsistencyThreshold),
		normalizer.WithPolicy(policy),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewPromRecorder(reg)

	pipeline := ingest.NewPipeline(store, norm, rec, zlog.With(zap.String("component", "pipeline")))
	queries := ingest.NewQueryService(store, rec, zlog.With(zap.String("component", "query")))

	if cfg.MQTT.Enabled {
		zlog.Info("Setting up MQTT client")
		mqttClient, err := mqtt.NewClient(cfg, pipeline, zlog)
		if err != nil {
			return fmt.Errorf("failed to create MQTT client: %w", err)
		}
		if err := mqttClient.Connect(); err != nil {
			return err
		}
		defer mqttClient.Disconnect()

		if err := mqttClient.Subscribe(ctx); err != nil {
			return err
		}
	}

	srv, err := server.NewServer(cfg,
		server.WithIngester(pipeline),
		server.WithQuerier(queries),
		server.WithHealthCheck(store),
		server.WithGatherer(reg),
		server.WithLogger(zlog),
	)
	if err != nil {
		return err
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	zlog.Info("Shutting down")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (ingest.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		zlog.Info("Connecting to TimescaleDB", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))
		db, err := database.OpenPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := database.NewPostgresStore(db, cfg.Timescale.TableName, cfg.Timescale.Hypertable, zlog)
		if err := store.InitializeTable(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil

	case config.DriverMongo:
		zlog.Info("Connecting to MongoDB", zap.String("database", cfg.Mongo.Database))
		client, err := database.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		store, err := database.NewMongoStore(ctx, client, cfg.Mongo, zlog)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return store, nil

	case config.DriverMemory:
		zlog.Warn("Using in-memory store; readings are lost on restart")
		return database.NewMemoryStore(), nil
	}
	return nil, errors.New("unknown storage driver " + cfg.Storage.Driver)
}
