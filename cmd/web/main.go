package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/crossref-matcher/internal/audit"
	"github.com/crossref-matcher/internal/config"
	"github.com/crossref-matcher/internal/db"
	"github.com/crossref-matcher/internal/debug"
	"github.com/crossref-matcher/internal/match"
	"github.com/crossref-matcher/internal/matcher"
	"github.com/crossref-matcher/internal/web"
)

var version = "dev"

func main() {
	configPath := flag.String("config", config.GetEnv("CONFIG_PATH", ""), "YAML configuration file")
	flag.Parse()

	// Load environment configuration
	if _, err := config.LoadEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := debug.NewLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	debug.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	conn, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxConnections)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	tracker := audit.NewTracker(conn, logger)
	if err := tracker.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to prepare audit schema", zap.Error(err))
	}
	logger.Info("database connected", zap.String("driver", cfg.Database.Driver))

	engine, err := match.NewEngine(cfg.EngineConfig(), match.WithLogger(logger))
	if err != nil {
		logger.Fatal("invalid matching configuration", zap.Error(err))
	}

	web.Version = version
	server := web.NewServer(web.FromAppConfig(cfg), matcher.NewBatchProcessor(engine, tracker, logger), logger)
	if err := server.Start(ctx); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
