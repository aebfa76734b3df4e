package standardize

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"skiff/internal/config"
	"skiff/internal/logging"
)

// Result holds the outcome of a standardization attempt.
type Result struct {
	OK         bool
	OutPath    string
	Diagnostic string
}

// Executor drives the external transcode tool.
type Executor struct {
	binary        string
	audioTitle    string
	remuxTimeout  time.Duration
	encodeTimeout time.Duration
	logger        *slog.Logger
}

// NewExecutor constructs an Executor from configuration.
func NewExecutor(cfg *config.Config, logger *slog.Logger) *Executor {
	return &Executor{
		binary:        cfg.Standardize.FFmpegBinary,
		audioTitle:    cfg.Naming.AudioTitleTag,
		remuxTimeout:  cfg.RemuxTimeout(),
		encodeTimeout: cfg.EncodeTimeout(),
		logger:        logging.NewComponentLogger(logger, "standardize"),
	}
}

// Execute remuxes inPath into outPath. Phase A stream-copies; on failure
// phase B re-encodes video, except when an explicit selection is present.
// Both phases run under hard wall-clock timeouts. The returned Result never
// carries an error: ok=false leaves the fallback decision to the caller.
func (e *Executor) Execute(ctx context.Context, inPath, outPath string, selection []int) Result {
	diag, err := e.runPhase(ctx, buildCopyArgs(inPath, outPath, e.audioTitle, selection), e.remuxTimeout, outPath)
	if err == nil {
		return Result{OK: true, OutPath: outPath}
	}

	// Phase B maps every stream, so it cannot honor an explicit selection;
	// a failed selection remux is reported instead of re-encoded.
	if len(selection) > 0 {
		e.logger.Error("selection remux failed",
			logging.String("input", inPath),
			logging.String("diagnostic", diag),
			logging.Error(err),
		)
		_ = os.Remove(outPath)
		return Result{OK: false, Diagnostic: diag}
	}

	e.logger.Warn("stream copy failed, trying re-encode",
		logging.String("input", inPath),
		logging.String("diagnostic", diag),
		logging.Error(err),
	)
	_ = os.Remove(outPath)

	diag, err = e.runPhase(ctx, buildEncodeArgs(inPath, outPath, e.audioTitle), e.encodeTimeout, outPath)
	if err == nil {
		return Result{OK: true, OutPath: outPath}
	}

	e.logger.Error("re-encode fallback failed",
		logging.String("input", inPath),
		logging.String("diagnostic", diag),
		logging.Error(err),
	)
	_ = os.Remove(outPath)
	return Result{OK: false, Diagnostic: diag}
}

// runPhase runs one ffmpeg invocation and verifies it produced a non-empty
// output file. Stderr is captured for retry diagnostics; a deadline hit
// counts as failure.
func (e *Executor) runPhase(ctx context.Context, args []string, timeout time.Duration, outPath string) (string, error) {
	phaseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(phaseCtx, e.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	diag := truncate(stderr.String(), 300)
	if err != nil {
		if phaseCtx.Err() == context.DeadlineExceeded {
			return diag, context.DeadlineExceeded
		}
		return diag, err
	}

	info, statErr := os.Stat(outPath)
	if statErr != nil || info.Size() == 0 {
		return diag, errors.New("transcode produced no output")
	}
	return diag, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
