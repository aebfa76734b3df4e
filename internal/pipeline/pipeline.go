// Package pipeline orchestrates one file's journey from staging to delivery:
// standardize, thumbnail, caption, then send with retries. Standardization
// failure delivers the unmodified original instead, unless the run carries a
// committed track selection; then it aborts the operation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"skiff/internal/caption"
	"skiff/internal/config"
	"skiff/internal/logging"
	"skiff/internal/media/probe"
	"skiff/internal/services"
	"skiff/internal/staging"
	"skiff/internal/standardize"
	"skiff/internal/store"
	"skiff/internal/tasks"
	"skiff/internal/transport"
)

// Standardizer turns an input file into the standardized output.
type Standardizer interface {
	Execute(ctx context.Context, inPath, outPath string, selection []int) standardize.Result
}

// MediaProber reports container facts.
type MediaProber interface {
	Probe(ctx context.Context, path string) probe.Result
	HasAudioCodec(ctx context.Context, path, codec string) bool
}

// Thumbnailer captures a delivery thumbnail from a video.
type Thumbnailer interface {
	Capture(ctx context.Context, videoPath, outPath string) error
	CaptureAt(ctx context.Context, videoPath, outPath string, seconds int) error
}

// Journal records delivery outcomes.
type Journal interface {
	RecordDelivery(ctx context.Context, ownerID int64, fileName, status, diagnostic string) (int64, error)
}

// Options tune one pipeline run.
type Options struct {
	// TransportVideo marks inputs the transport already identified as video.
	TransportVideo bool
	// AudioSelection holds committed source stream indices from track
	// negotiation; empty means keep all streams.
	AudioSelection []int
	// ThumbPath points at an owner-configured thumbnail, used instead of
	// frame capture when set.
	ThumbPath string
	// ThumbSeconds overrides the configured frame-capture timestamp when
	// positive.
	ThumbSeconds int
	// CaptionOnly skips standardization and delivers the original bytes
	// with a freshly expanded caption.
	CaptionOnly bool
}

// Pipeline coordinates the delivery stages for every owner.
type Pipeline struct {
	cfg       *config.Config
	registry  *tasks.Registry
	prober    MediaProber
	executor  Standardizer
	thumbs    Thumbnailer
	captions  *caption.Engine
	messenger transport.Messenger
	journal   Journal
	logger    *slog.Logger
}

// New wires a Pipeline from its collaborators.
func New(cfg *config.Config, registry *tasks.Registry, prober MediaProber, executor Standardizer,
	thumbs Thumbnailer, captions *caption.Engine, messenger transport.Messenger,
	journal Journal, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		cfg:       cfg,
		registry:  registry,
		prober:    prober,
		executor:  executor,
		thumbs:    thumbs,
		captions:  captions,
		messenger: messenger,
		journal:   journal,
		logger:    logger.With(logging.String(logging.FieldComponent, "pipeline")),
	}
}

// Run processes one staged input and delivers the result to chatID. The
// workspace holding inputPath is removed on every exit path.
func (p *Pipeline) Run(ctx context.Context, ownerID, chatID int64, ws *staging.Workspace, inputPath, declaredName string, opts Options) error {
	token := p.registry.Register(ownerID)
	defer p.registry.Unregister(ownerID, token)
	defer ws.Remove()

	finalPath, finalName, err := p.standardizeStage(ctx, ws, inputPath, declaredName, opts)
	if err != nil {
		p.journalRun(ctx, ownerID, finalName, err)
		return err
	}

	thumbPath := p.thumbnailStage(ctx, ws, finalPath, finalName, opts)

	text := p.captionStage(ownerID, finalName)

	err = p.deliverStage(ctx, chatID, finalPath, finalName, text, thumbPath, token, opts)
	p.journalRun(ctx, ownerID, finalName, err)
	return err
}

func (p *Pipeline) standardizeStage(ctx context.Context, ws *staging.Workspace, inputPath, declaredName string, opts Options) (string, string, error) {
	declaredName = standardize.NormalizeName(declaredName)
	sourceExt := strings.ToLower(filepath.Ext(declaredName))

	if opts.CaptionOnly || !p.isVideo(sourceExt, opts) {
		name := standardize.OutputName(p.cfg.Naming.Brand, sourceExt)
		return inputPath, name, nil
	}

	hasDisallowed := p.prober.HasAudioCodec(ctx, inputPath, standardize.DisallowedCodec)
	targetExt := standardize.Plan(sourceExt, hasDisallowed)
	finalName := standardize.OutputName(p.cfg.Naming.Brand, targetExt)
	outPath := ws.File(finalName)

	result := p.executor.Execute(ctx, inputPath, outPath, opts.AudioSelection)
	if !result.OK {
		// The original still carries the tracks a committed selection was
		// meant to drop, so it must never stand in for that output.
		if len(opts.AudioSelection) > 0 {
			return "", finalName, services.Wrap(services.ErrExternalTool, "pipeline", "standardize",
				"remux with committed track selection failed: "+result.Diagnostic, nil)
		}
		p.logger.Warn("standardization failed, delivering original",
			logging.String("diagnostic", result.Diagnostic))
		return inputPath, standardize.OutputName(p.cfg.Naming.Brand, sourceExt), nil
	}
	return result.OutPath, finalName, nil
}

func (p *Pipeline) isVideo(sourceExt string, opts Options) bool {
	return opts.TransportVideo || standardize.IsVideoExt(sourceExt)
}

func (p *Pipeline) thumbnailStage(ctx context.Context, ws *staging.Workspace, finalPath, finalName string, opts Options) string {
	if opts.ThumbPath != "" {
		return opts.ThumbPath
	}
	if !standardize.IsVideoExt(filepath.Ext(finalName)) {
		return ""
	}
	thumbPath := ws.File("thumb.jpg")
	var err error
	if opts.ThumbSeconds > 0 {
		err = p.thumbs.CaptureAt(ctx, finalPath, thumbPath, opts.ThumbSeconds)
	} else {
		err = p.thumbs.Capture(ctx, finalPath, thumbPath)
	}
	if err != nil {
		p.logger.Warn("thumbnail capture failed", logging.Error(err))
		return ""
	}
	return thumbPath
}

func (p *Pipeline) captionStage(ownerID int64, finalName string) string {
	if template, ok := p.captions.Template(ownerID); ok {
		return p.captions.Expand(ownerID, template)
	}
	return finalName
}

func (p *Pipeline) deliverStage(ctx context.Context, chatID int64, path, name, text, thumbPath string, token *tasks.CancelToken, opts Options) error {
	if info, err := os.Stat(path); err == nil && p.cfg.Telegram.MaxUploadBytes > 0 && info.Size() > p.cfg.Telegram.MaxUploadBytes {
		return services.Wrap(services.ErrValidation, "pipeline", "deliver",
			fmt.Sprintf("file exceeds %d byte upload limit", p.cfg.Telegram.MaxUploadBytes), nil)
	}

	var lastErr error
	attempts := p.cfg.Delivery.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if token.Cancelled() {
			return services.Wrap(services.ErrCancelled, "pipeline", "deliver", "cancelled by owner", nil)
		}

		lastErr = p.send(ctx, chatID, path, name, text, thumbPath, opts)
		if lastErr == nil {
			return nil
		}
		p.logger.Warn("delivery attempt failed",
			logging.Int("attempt", attempt),
			logging.Error(lastErr))

		if attempt == attempts {
			break
		}
		wait := p.cfg.DeliveryBackoff() << (attempt - 1)
		select {
		case <-ctx.Done():
			return services.Wrap(services.ErrCancelled, "pipeline", "deliver", "shutting down", ctx.Err())
		case <-token.Done():
			return services.Wrap(services.ErrCancelled, "pipeline", "deliver", "cancelled by owner", nil)
		case <-time.After(wait):
		}
	}
	return services.Wrap(services.ErrTransient, "pipeline", "deliver",
		fmt.Sprintf("all %d attempts failed", attempts), lastErr)
}

func (p *Pipeline) send(ctx context.Context, chatID int64, path, name, text, thumbPath string, opts Options) error {
	if standardize.IsVideoExt(filepath.Ext(name)) && filepath.Ext(name) != standardize.SecondaryExt {
		facts := p.prober.Probe(ctx, path)
		return p.messenger.SendVideo(chatID, transport.Video{
			Path:      path,
			Caption:   text,
			ThumbPath: thumbPath,
			Duration:  facts.DurationSeconds,
			Width:     facts.WidthPx,
			Height:    facts.HeightPx,
		})
	}
	return p.messenger.SendDocument(chatID, transport.Document{
		Path:      path,
		Caption:   text,
		ThumbPath: thumbPath,
	})
}

func (p *Pipeline) journalRun(ctx context.Context, ownerID int64, fileName string, err error) {
	status := store.StatusDelivered
	diagnostic := ""
	switch {
	case err == nil:
	case errors.Is(err, services.ErrCancelled):
		status = store.StatusCancelled
		diagnostic = err.Error()
	default:
		status = store.StatusFailed
		diagnostic = err.Error()
	}
	if p.journal == nil {
		return
	}
	if id, jerr := p.journal.RecordDelivery(ctx, ownerID, fileName, status, diagnostic); jerr != nil {
		p.logger.Warn("journal write failed", logging.Error(jerr))
	} else {
		p.logger.Info("delivery journaled",
			logging.Int64(logging.FieldDelivery, id),
			logging.Int64(logging.FieldOwner, ownerID),
			logging.String("status", status))
	}
}
