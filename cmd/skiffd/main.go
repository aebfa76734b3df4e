package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"skiff/internal/config"
	"skiff/internal/daemon"
	"skiff/internal/deps"
	"skiff/internal/logging"
	"skiff/internal/store"
	"skiff/internal/transport"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		if !status.Available {
			logger.Warn("external tool unavailable",
				logging.String("tool", status.Name), logging.String("detail", status.Detail))
		}
	}

	journal, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer journal.Close()

	telegram, err := transport.NewTelegram(cfg, logger)
	if err != nil {
		log.Fatalf("connect telegram: %v", err)
	}

	d, err := daemon.New(cfg, daemon.Deps{
		Store:     journal,
		Journal:   journal,
		Messenger: telegram,
		Files:     telegram,
		Updates:   telegram,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}
	logger.Info("skiffd running", logging.String("bot", telegram.Username()))

	<-ctx.Done()
	logger.Info("skiffd shutting down")
}
