package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryan-buckman/termread/internal/config"
	"github.com/bryan-buckman/termread/internal/database"
	"github.com/bryan-buckman/termread/internal/extract"
	"github.com/bryan-buckman/termread/internal/fetch"
	"github.com/bryan-buckman/termread/internal/llm"
	"github.com/bryan-buckman/termread/internal/logging"
	"github.com/bryan-buckman/termread/internal/rss"
	"github.com/bryan-buckman/termread/internal/server"
	"github.com/bryan-buckman/termread/internal/youtube"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "termread: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(logging.New(cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		slog.Info("snapshot store ready", slog.String("type", store.DatabaseType()))
	}

	limiter := fetch.NewHostLimiter(fetch.DefaultMaxPerHost, cfg.HostDelay)
	client := fetch.NewClient(cfg.FetchTimeout, cfg.UserAgent, limiter)
	extractClient := fetch.NewClient(cfg.ExtractTimeout, cfg.UserAgent, limiter)

	feeds := rss.NewFetcher(client, cfg.FetchTimeout)
	deps := server.Deps{
		Feeds:       feeds,
		Channels:    youtube.NewAdapter(feeds, client),
		Transcripts: youtube.NewTranscripts(client),
		Extractor:   extract.NewExtractor(extractClient, cfg.ExtractTimeout),
		LLM:         llm.NewClient(cfg.LLMBaseURL, cfg.DefaultModel, cfg.LLMTimeout),
	}
	if store != nil {
		deps.Store = store
		deps.Pruner = rss.NewPruner(store, cfg.SnapshotTTL, cfg.PruneInterval)
	}

	srv := server.New(deps, server.Options{
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		FetchConcurrency: cfg.FetchConcurrency,
	})

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(cfg.Addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		db, err := database.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, nil
	case config.DriverPostgres:
		db, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, nil
	case config.DriverRedis:
		rs, err := database.NewRedis(ctx, cfg.RedisURL, cfg.SnapshotTTL)
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		return rs, nil
	default:
		return nil, nil
	}
}
