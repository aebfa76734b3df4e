// Package thumbnail produces the small JPEG preview attached to deliveries.
// A frame is captured from the video with ffmpeg, then scaled down so the
// longest edge fits the transport's 320 pixel limit.
package thumbnail

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/image/draw"

	"skiff/internal/config"
	"skiff/internal/logging"
	"skiff/internal/services"
)

// MaxDimension is the longest edge allowed for a delivery thumbnail.
const MaxDimension = 320

const jpegQuality = 85

// Generator captures and scales thumbnails.
type Generator struct {
	binary    string
	timestamp time.Duration
	logger    *slog.Logger
}

// New constructs a Generator from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{
		binary:    cfg.Standardize.FFmpegBinary,
		timestamp: cfg.ThumbnailTimestamp(),
		logger:    logger.With(logging.String(logging.FieldComponent, "thumbnail")),
	}
}

// Capture grabs one frame at the configured timestamp, fits it to
// MaxDimension, and writes a JPEG to outPath.
func (g *Generator) Capture(ctx context.Context, videoPath, outPath string) error {
	return g.captureFrame(ctx, videoPath, outPath, g.timestamp)
}

// CaptureAt is Capture with an explicit timestamp, for per-owner overrides.
func (g *Generator) CaptureAt(ctx context.Context, videoPath, outPath string, seconds int) error {
	return g.captureFrame(ctx, videoPath, outPath, time.Duration(seconds)*time.Second)
}

func (g *Generator) captureFrame(ctx context.Context, videoPath, outPath string, at time.Duration) error {
	framePath := outPath + ".frame.jpg"
	defer os.Remove(framePath)

	seconds := strconv.FormatFloat(at.Seconds(), 'f', -1, 64)
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", seconds,
		"-i", videoPath,
		"-vframes", "1",
		framePath,
	}
	cmd := exec.CommandContext(ctx, g.binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return services.Wrap(services.ErrExternalTool, "thumbnail", "capture", string(output), err)
	}

	if err := Fit(framePath, outPath, MaxDimension); err != nil {
		return err
	}
	g.logger.Debug("thumbnail captured", logging.String("path", outPath))
	return nil
}

// Fit decodes the image at srcPath, scales it down so neither edge exceeds
// maxDim while preserving aspect ratio, and writes a JPEG to dstPath.
// Images already within bounds are re-encoded unchanged.
func Fit(srcPath, dstPath string, maxDim int) error {
	src, err := decode(srcPath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "thumbnail", "fit", "decoding image", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width > maxDim || height > maxDim {
		if width >= height {
			height = height * maxDim / width
			width = maxDim
		} else {
			width = width * maxDim / height
			height = maxDim
		}
		if width < 1 {
			width = 1
		}
		if height < 1 {
			height = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, bounds, draw.Over, nil)
		src = scaled
	}

	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("thumbnail: create %s: %w", dstPath, err)
	}
	defer out.Close()
	if err := jpeg.Encode(out, src, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("thumbnail: encode: %w", err)
	}
	return nil
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
