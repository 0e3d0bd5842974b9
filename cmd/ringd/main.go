// Package main provides the entry point for the ringd node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/loopgrid/ringd/internal/clock"
	"github.com/loopgrid/ringd/internal/cluster"
	"github.com/loopgrid/ringd/internal/config"
	"github.com/loopgrid/ringd/internal/errors"
	"github.com/loopgrid/ringd/internal/handler"
	"github.com/loopgrid/ringd/internal/health"
	"github.com/loopgrid/ringd/internal/metrics"
	"github.com/loopgrid/ringd/internal/nearcache"
	"github.com/loopgrid/ringd/internal/replication"
	"github.com/loopgrid/ringd/internal/ringbuffer"
	"github.com/loopgrid/ringd/internal/serialization"
	"github.com/loopgrid/ringd/internal/server"
	"github.com/loopgrid/ringd/internal/service"
	"github.com/loopgrid/ringd/internal/util/workerpool"
)

func main() {
	logger, err := initLogger("info", "json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if configured, err := initLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		logger.Warn("Keeping default logging configuration", zap.Error(err))
	} else {
		logger = configured
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("node_id", cfg.Server.NodeID),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("ringbuffers", len(cfg.Ringbuffers)))

	// Initialize metrics on the default registry; the metrics server
	// exposes it via promhttp.
	m := metrics.NewMetrics(cfg.Server.NodeID)
	codec := serialization.NewMsgpackService()
	clk := clock.System{}

	defs := make([]ringbuffer.Config, 0, len(cfg.Ringbuffers))
	for _, def := range cfg.Ringbuffers {
		defs = append(defs, ringbuffer.Config{
			Name:              def.Name,
			Capacity:          def.Capacity,
			BackupCount:       def.BackupCount,
			AsyncBackupCount:  def.AsyncBackupCount,
			InMemoryFormat:    serialization.InMemoryFormat(def.InMemoryFormat),
			TimeToLiveSeconds: def.TimeToLiveSeconds,
		})
	}

	cacheExecutor := workerpool.New(workerpool.Config{
		Name:      "nearcache",
		Workers:   2,
		QueueSize: 256,
		Logger:    logger,
	})

	cache := nearcache.New(nearcache.Config{
		Enabled:    cfg.NearCache.Enabled,
		MaxEntries: cfg.NearCache.MaxEntries,
		TTL:        cfg.NearCache.TTL,
		Format:     serialization.InMemoryFormat(cfg.NearCache.InMemoryFormat),
	}, codec, clk, cacheExecutor, logger, m)

	svc, err := service.NewRingbufferService(defs, codec, clk, cache, cfg.Expiration.CleanupInterval, logger, m)
	if err != nil {
		logger.Fatal("Failed to initialize ringbuffer service", zap.Error(err))
	}

	// Cluster membership
	membership, err := cluster.New(cluster.Config{
		Enabled:        cfg.Gossip.Enabled,
		NodeID:         cfg.Server.NodeID,
		BindPort:       cfg.Gossip.BindPort,
		SeedNodes:      cfg.Gossip.SeedNodes,
		GossipInterval: cfg.Gossip.GossipInterval,
		ProbeTimeout:   cfg.Gossip.ProbeTimeout,
		ProbeInterval:  cfg.Gossip.ProbeInterval,
		DataAddr:       cfg.Server.AdvertiseAddr,
	}, logger, m)
	if err != nil {
		logger.Fatal("Failed to initialize cluster membership", zap.Error(err))
	}

	// Replication fan-out. The coordinator is handed to the service after
	// construction because it reads container snapshots from the service.
	transport := replication.NewHTTPTransport(cfg.Replication.SyncTimeout, logger)
	coordinator := replication.NewCoordinator(replication.Config{
		SyncTimeout:    cfg.Replication.SyncTimeout,
		AsyncWorkers:   cfg.Replication.AsyncWorkers,
		AsyncQueueSize: cfg.Replication.AsyncQueueSize,
	}, membership, transport, svc, logger, m)
	svc.SetReplicator(coordinator)
	membership.SetEvents(coordinator)

	checker := health.NewHealthChecker(health.Config{NodeID: cfg.Server.NodeID},
		membership, svc, coordinator.Pool(), logger, m)

	// HTTP surface
	errHandler := errors.NewHandler(logger)
	ringHandler := handler.NewRingbufferHandler(svc, errHandler, logger, cfg.Server.RequestTimeout)
	replHandler := handler.NewReplicationHandler(replication.NewApplier(svc, logger, m), errHandler, logger)
	dataServer := server.NewServer(cfg, ringHandler, replHandler, checker, m, logger)

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = server.NewMetricsServer(&server.MetricsServerConfig{
			Port: cfg.Metrics.Port,
			Path: cfg.Metrics.Path,
		}, logger)
		if err := metricsServer.Start(); err != nil {
			logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}

	errChan := make(chan error, 1)
	go func() {
		if err := dataServer.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("Node started",
		zap.String("node_id", cfg.Server.NodeID),
		zap.String("data_addr", cfg.Server.AdvertiseAddr),
		zap.Bool("gossip", cfg.Gossip.Enabled))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("Data server error", zap.Error(err))
	}

	logger.Info("Shutting down gracefully")

	// Fail readiness first so load balancers drain before listeners close.
	checker.SetReadiness(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := dataServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shut down data server", zap.Error(err))
	}
	if err := coordinator.Stop(cfg.Server.ShutdownTimeout); err != nil {
		logger.Warn("Replication fan-out did not drain", zap.Error(err))
	}
	svc.Stop()
	checker.Stop()
	if err := membership.Shutdown(); err != nil {
		logger.Warn("Failed to leave cluster", zap.Error(err))
	}
	if err := cacheExecutor.Stop(5 * time.Second); err != nil {
		logger.Warn("Near cache executor did not drain", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
}

// initLogger builds the zap logger for the given level and format.
func initLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info", "":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	var zapConfig zap.Config
	switch format {
	case "console":
		zapConfig = zap.NewDevelopmentConfig()
	case "json", "":
		zapConfig = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}

	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	return zapConfig.Build()
}
