// Command migrate-threads rewrites legacy inline comment markup in every
// stored document into thread records. It is safe to run repeatedly.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/promptgist/promptgist/internal/config"
	"github.com/promptgist/promptgist/internal/database"
	"github.com/promptgist/promptgist/internal/document/repository"
	"github.com/promptgist/promptgist/internal/document/service"
	"github.com/promptgist/promptgist/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.MongoDB.URI == "" {
		logger.Fatalf("MONGODB_URI is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 3, time.Second)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	repo := repository.NewMongoRepo(client.Database(cfg.MongoDB.Database))
	start := time.Now()
	res, err := service.MigrateLegacy(ctx, repo, func(id string, err error) {
		logger.Warnf("document %s: %v", id, err)
	})
	if err != nil {
		logger.Fatalf("migration aborted after %d documents: %v", res.Scanned, err)
	}
	logger.Infof("scanned=%d rewritten=%d threads=%d failed=%d in %s",
		res.Scanned, res.Rewritten, res.Threads, res.Failed, time.Since(start).Round(time.Millisecond))
	if res.Failed > 0 {
		return 1
	}
	return 0
}
