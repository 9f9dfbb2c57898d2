package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/m3rciful/tunebot/internal/buildinfo"
	"github.com/m3rciful/tunebot/internal/catalog"
	"github.com/m3rciful/tunebot/internal/config"
	"github.com/m3rciful/tunebot/internal/delivery"
	"github.com/m3rciful/tunebot/internal/health"
	"github.com/m3rciful/tunebot/internal/logger"
	"github.com/m3rciful/tunebot/internal/session"
	"github.com/m3rciful/tunebot/internal/store"
	"github.com/m3rciful/tunebot/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("tunebot: %v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	startedAt := time.Now()

	st, err := buildStore(cfg)
	if err != nil {
		return err
	}

	gateway := catalog.NewGateway(cfg.Catalog)

	bot, err := telegram.NewBot(cfg)
	if err != nil {
		return err
	}
	messenger := telegram.NewMessenger(bot)

	queue := delivery.NewQueue(delivery.QueueOptions{
		QueueSize:  cfg.Download.QueueSize,
		Workers:    cfg.Download.Workers,
		JobTimeout: gateway.FetchTimeout(),
	})
	defer queue.Close()

	orchestrator := delivery.NewOrchestrator(gateway, messenger, queue)

	machine := session.NewMachine(st, gateway, orchestrator, messenger, session.Options{
		SearchLimit: cfg.Catalog.SearchLimit,
	})

	handlers := telegram.NewHandlers(machine, cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go health.Serve(ctx, cfg.Health.Listen)

	logger.L.With("component", "app").Info("app ready",
		slog.String("event", "ready"),
		slog.String("version", buildinfo.Version),
		slog.String("commit", buildinfo.Commit),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	err = telegram.Run(ctx, bot, handlers, cfg)

	logger.L.With("component", "app").Info("shutting down...",
		slog.String("event", "shutdown"),
	)
	return err
}

func buildStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if err := store.RunMigrations(cfg.Storage.Database); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		db, err := store.Connect(cfg.Storage.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store.NewPostgresStore(db), nil
	default:
		return store.NewFileStore(cfg.Storage.FilePath), nil
	}
}
