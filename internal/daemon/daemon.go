package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"skiff/internal/bot"
	"skiff/internal/caption"
	"skiff/internal/config"
	"skiff/internal/fetch"
	"skiff/internal/logging"
	"skiff/internal/media/probe"
	"skiff/internal/pipeline"
	"skiff/internal/staging"
	"skiff/internal/standardize"
	"skiff/internal/tasks"
	"skiff/internal/thumbnail"
	"skiff/internal/tracks"
	"skiff/internal/transport"
	"skiff/internal/web"
)

// UpdateSource hands out the incoming update stream.
type UpdateSource interface {
	Updates() tgbotapi.UpdatesChannel
	Stop()
}

// Deps carries the external collaborators the daemon wires together.
type Deps struct {
	Store     bot.SubscriberStore
	Journal   pipeline.Journal
	Messenger transport.Messenger
	Files     bot.FileResolver
	Updates   UpdateSource
	Logger    *slog.Logger
}

// Daemon owns the background services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	bot      *bot.Bot
	registry *tasks.Registry
	updates  UpdateSource
	web      *web.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	ActiveTasks  int
	LockFilePath string
}

// New constructs a daemon with its full pipeline wired from configuration.
func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if cfg == nil || deps.Messenger == nil || deps.Updates == nil {
		return nil, errors.New("daemon requires config, messenger, and update source")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	registry := tasks.NewRegistry()
	prober := probe.New(cfg, logger)
	executor := standardize.NewExecutor(cfg, logger)
	thumbs := thumbnail.New(cfg, logger)
	captions := caption.NewEngine()
	negotiator := tracks.NewNegotiator(prober, cfg, logger)
	fetcher := fetch.New(cfg, logger)

	runner := pipeline.New(cfg, registry, prober, executor, thumbs, captions,
		deps.Messenger, deps.Journal, logger)

	b := bot.New(cfg, bot.Deps{
		Messenger:   deps.Messenger,
		Files:       deps.Files,
		Fetcher:     fetcher,
		Runner:      runner,
		Negotiator:  negotiator,
		Registry:    registry,
		Captions:    captions,
		Subscribers: deps.Store,
		Logger:      logger,
	})

	lockPath := filepath.Join(cfg.Paths.LogDir, "skiffd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		bot:      b,
		registry: registry,
		updates:  deps.Updates,
		web:      web.New(cfg, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another skiff instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.web.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return d.bot.Run(groupCtx, d.updates.Updates())
	})
	group.Go(func() error {
		return d.sweepLoop(groupCtx)
	})

	d.cancel = cancel
	d.group = group
	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.updates.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.group != nil {
		_ = d.group.Wait()
		d.group = nil
	}
	d.web.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon.
func (d *Daemon) Close() {
	d.Stop()
}

// Wait blocks until the background services exit.
func (d *Daemon) Wait() error {
	if d.group == nil {
		return nil
	}
	err := d.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Status reports the daemon's runtime state.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		ActiveTasks:  d.registry.Total(),
		LockFilePath: d.lockPath,
	}
}

func (d *Daemon) sweepLoop(ctx context.Context) error {
	interval := d.cfg.SweepInterval()
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result := staging.CleanStale(ctx, d.cfg.Paths.StagingDir, d.cfg.StagingRetention(), d.logger)
			if len(result.Removed) > 0 {
				d.logger.Info("staging sweep", logging.Int("removed", len(result.Removed)))
			}
			for _, failure := range result.Errors {
				d.logger.Warn("staging sweep failed",
					logging.String("path", failure.Path), logging.Error(failure.Error))
			}
		}
	}
}
