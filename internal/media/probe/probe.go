package probe

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"skiff/internal/config"
	"skiff/internal/logging"
	"skiff/internal/media/ffprobe"
)

// Result carries the derived facts the pipeline needs for delivery metadata.
type Result struct {
	DurationSeconds int
	WidthPx         int
	HeightPx        int
	AudioTracks     int
}

// Track describes one audio stream in container order. SourceIndex is the
// container's own stream index and must be preserved verbatim for remap
// commands.
type Track struct {
	SourceIndex int
	Language    string
	Title       string
}

// Prober inspects media files.
type Prober struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// New constructs a Prober from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Prober {
	return &Prober{
		binary:  cfg.Standardize.FFprobeBinary,
		timeout: cfg.ProbeTimeout(),
		logger:  logging.NewComponentLogger(logger, "probe"),
	}
}

// Probe inspects path and never fails: ffprobe errors, and ffprobe runs that
// report zero dimensions, fall through to the built-in parser; if that also
// fails the zero Result is returned.
func (p *Prober) Probe(ctx context.Context, path string) Result {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result := Result{}
	inspected, err := ffprobe.Inspect(probeCtx, p.binary, path)
	if err == nil {
		result.DurationSeconds = inspected.DurationSeconds()
		result.AudioTracks = len(inspected.AudioStreams())
		if video, ok := inspected.FirstVideo(); ok {
			result.WidthPx = video.Width
			result.HeightPx = video.Height
		}
		if result.WidthPx > 0 && result.HeightPx > 0 {
			return result
		}
	}

	p.logger.Warn("primary probe incomplete, trying container parser",
		logging.String("path", path),
		logging.Error(err),
	)

	parsed, parseErr := parseContainer(path)
	if parseErr != nil {
		p.logger.Warn("container parser failed",
			logging.String("path", path),
			logging.Error(parseErr),
		)
		return result
	}

	if result.DurationSeconds == 0 {
		result.DurationSeconds = parsed.DurationSeconds
	}
	if result.WidthPx == 0 {
		result.WidthPx = parsed.WidthPx
	}
	if result.HeightPx == 0 {
		result.HeightPx = parsed.HeightPx
	}
	return result
}

// HasAudioCodec reports whether any audio stream uses the named codec.
func (p *Prober) HasAudioCodec(ctx context.Context, path, codec string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	inspected, err := ffprobe.InspectAudio(probeCtx, p.binary, path)
	if err != nil {
		p.logger.Warn("audio codec probe failed",
			logging.String("path", path),
			logging.Error(err),
		)
		return false
	}
	for _, stream := range inspected.Streams {
		if strings.EqualFold(stream.CodecName, codec) {
			return true
		}
	}
	return false
}

// ListAudioTracks returns the audio streams in container order.
func (p *Prober) ListAudioTracks(ctx context.Context, path string) ([]Track, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	inspected, err := ffprobe.Inspect(probeCtx, p.binary, path)
	if err != nil {
		return nil, err
	}

	streams := inspected.AudioStreams()
	tracks := make([]Track, 0, len(streams))
	for _, stream := range streams {
		tracks = append(tracks, Track{
			SourceIndex: stream.Index,
			Language:    stream.Language(),
			Title:       stream.Title(),
		})
	}
	return tracks, nil
}
