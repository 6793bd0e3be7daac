package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MovieDHT/internal/ingest"
	"MovieDHT/internal/logger"
	zapfactory "MovieDHT/internal/logger/zap"
	"MovieDHT/internal/node/config"
	"MovieDHT/internal/node/overlay"
	"MovieDHT/internal/node/server"
	"MovieDHT/internal/node/telemetry"
)

var defaultConfigPath = "config/node/config.yaml"

func main() {
	// Parse command-line flags
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	protocol := flag.String("protocol", "", "override dht.protocol (ring | mesh | modulo)")
	nodes := flag.Int("nodes", -1, "override dht.bootstrap.nodes")
	dataset := flag.String("dataset", "", "override dataset.path")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	if *protocol != "" {
		cfg.DHT.Protocol = *protocol
	}
	if *nodes >= 0 {
		cfg.DHT.Bootstrap.Nodes = *nodes
	}
	if *dataset != "" {
		cfg.Dataset.Path = *dataset
	}

	// Validate configuration
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Initialize logger
	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewZapAdapter(zapLog)
	} else {
		lgr = &logger.NopLogger{}
	}

	cfg.LogConfig(lgr)

	// Build the overlay
	d, err := overlay.NewFromConfig(cfg.DHT, lgr)
	if err != nil {
		lgr.Error("failed to initialize overlay", logger.FErr(err))
		os.Exit(1)
	}

	// Initialize Telemetry
	instance := d.Space().NewIdFromString(fmt.Sprintf("%s-%d", cfg.DHT.Protocol, os.Getpid()))
	shutdown, err := telemetry.InitTracer(cfg.Telemetry, "MovieDHT-Node", instance)
	if err != nil {
		lgr.Error("failed to initialize tracing", logger.FErr(err))
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			lgr.Warn("tracer shutdown error", logger.FErr(err))
		}
	}()

	// Bootstrap members
	names := make([]string, cfg.DHT.Bootstrap.Nodes)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", cfg.DHT.Bootstrap.Prefix, i)
	}
	if _, err := d.JoinAll(names); err != nil {
		lgr.Error("failed to bootstrap overlay", logger.FErr(err))
		os.Exit(1)
	}
	lgr.Info("overlay bootstrapped",
		logger.F("protocol", d.Protocol()),
		logger.F("members", d.Len()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load dataset
	if cfg.Dataset.Path != "" {
		loader := ingest.NewLoader(
			ingest.WithLogger(lgr.Named("ingest")),
			ingest.WithBatchSize(cfg.Dataset.BatchSize),
			ingest.WithWorkers(cfg.Dataset.Workers),
		)
		if _, err := loader.LoadFile(ctx, cfg.Dataset.Path, d); err != nil {
			lgr.Error("failed to load dataset", logger.F("path", cfg.Dataset.Path), logger.FErr(err))
			os.Exit(1)
		}
	}

	// Start periodic hot key cleanup
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stale := d.CleanHotKeys(24 * time.Hour)
				lgr.Info("cleaned stale hot key entries", logger.F("count", stale))
			}
		}
	}()

	if !cfg.Server.Enabled {
		<-ctx.Done()
		lgr.Info("shutdown signal received")
		return
	}

	// Run HTTP server in background
	httpServer := server.NewHTTPServer(d, cfg.Server.HTTPPort, lgr.Named("http-server"))
	httpErr := make(chan error, 1)
	go func() { httpErr <- httpServer.Start() }()
	lgr.Debug("HTTP debug server started")

	// Wait for termination
	select {
	case <-ctx.Done():
		lgr.Info("shutdown signal received, stopping server gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			lgr.Warn("HTTP server shutdown error", logger.FErr(err))
		}

	case err := <-httpErr:
		if err != nil {
			lgr.Error("HTTP server terminated unexpectedly", logger.FErr(err))
			os.Exit(1)
		}
	}
}
