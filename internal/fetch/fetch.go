// Package fetch downloads remote files into staging. It streams in fixed
// chunks so an owner cancel takes effect mid-transfer, enforces the transport
// upload cap, and knows the Google Drive public-file confirm dance.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"skiff/internal/config"
	"skiff/internal/logging"
	"skiff/internal/services"
	"skiff/internal/standardize"
	"skiff/internal/tasks"
)

const chunkSize = 1 << 20

var (
	driveIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`id=([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`open\?id=([a-zA-Z0-9_-]+)`),
	}
	confirmTokenRe = regexp.MustCompile(`confirm=([0-9A-Za-z_-]+)`)
	unsafeCharRe   = regexp.MustCompile(`[\\/*?"<>|:]`)
)

// Fetcher downloads URLs with cancellation and size enforcement.
type Fetcher struct {
	client    *http.Client
	baseURL   string
	maxBytes  int64
	userAgent string
	logger    *slog.Logger
}

// New constructs a Fetcher from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	// Drive's confirm flow hands the token back via cookie + page body, so
	// the client must carry cookies between the two requests.
	jar, _ := cookiejar.New(nil)
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.FetchTimeout(),
			Jar:     jar,
		},
		baseURL:   "https://drive.google.com",
		maxBytes:  cfg.Fetch.MaxBytes,
		userAgent: cfg.Fetch.UserAgent,
		logger:    logger.With(logging.String(logging.FieldComponent, "fetch")),
	}
}

// Download fetches url into outPath, routing Drive links through the
// confirm-token flow. The token may be nil when cancellation is not needed.
func (f *Fetcher) Download(ctx context.Context, url, outPath string, token *tasks.CancelToken) error {
	if IsDriveURL(url) {
		id, ok := ExtractDriveID(url)
		if !ok {
			return services.Wrap(services.ErrValidation, "fetch", "download", "drive id not found in url", nil)
		}
		return f.downloadDrive(ctx, id, outPath, token)
	}
	return f.downloadGeneric(ctx, url, outPath, token)
}

func (f *Fetcher) downloadGeneric(ctx context.Context, url, outPath string, token *tasks.CancelToken) error {
	resp, err := f.get(ctx, url)
	if err != nil {
		return services.Wrap(services.ErrTransient, "fetch", "download", "requesting url", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrTransient, "fetch", "download",
			fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}
	return f.writeBody(resp, outPath, token)
}

func (f *Fetcher) downloadDrive(ctx context.Context, fileID, outPath string, token *tasks.CancelToken) error {
	base := fmt.Sprintf("%s/uc?export=download&id=%s", f.baseURL, fileID)
	resp, err := f.get(ctx, base)
	if err != nil {
		return services.Wrap(services.ErrTransient, "fetch", "drive", "requesting file", err)
	}

	if resp.StatusCode == http.StatusOK && resp.Header.Get("Content-Disposition") != "" {
		defer resp.Body.Close()
		return f.writeBody(resp, outPath, token)
	}

	// Large or scan-exempt files answer with an interstitial page carrying a
	// confirm token instead of the payload.
	page, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	match := confirmTokenRe.FindSubmatch(page)
	if match == nil {
		return services.Wrap(services.ErrValidation, "fetch", "drive", "file is not public or does not exist", nil)
	}

	confirmed := fmt.Sprintf("%s/uc?export=download&confirm=%s&id=%s", f.baseURL, match[1], fileID)
	resp2, err := f.get(ctx, confirmed)
	if err != nil {
		return services.Wrap(services.ErrTransient, "fetch", "drive", "requesting confirmed url", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrTransient, "fetch", "drive",
			fmt.Sprintf("HTTP %d", resp2.StatusCode), nil)
	}
	return f.writeBody(resp2, outPath, token)
}

func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	return f.client.Do(req)
}

func (f *Fetcher) writeBody(resp *http.Response, outPath string, token *tasks.CancelToken) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("fetch: create %s: %w", outPath, err)
	}
	defer out.Close()

	start := time.Now()
	buf := make([]byte, chunkSize)
	var total int64
	for {
		if token != nil && token.Cancelled() {
			return services.Wrap(services.ErrCancelled, "fetch", "download", "cancelled by owner", nil)
		}
		n, err := resp.Body.Read(buf)
		if n > 0 {
			total += int64(n)
			if f.maxBytes > 0 && total > f.maxBytes {
				return services.Wrap(services.ErrValidation, "fetch", "download",
					fmt.Sprintf("file exceeds %d byte limit", f.maxBytes), nil)
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("fetch: write: %w", werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return services.Wrap(services.ErrTransient, "fetch", "download", "reading body", err)
		}
	}

	f.logger.Info("download complete",
		logging.String("path", outPath),
		logging.Int64("bytes", total),
		logging.Duration("elapsed", time.Since(start)))
	return nil
}

// IsDriveURL reports whether the URL points at Google Drive.
func IsDriveURL(url string) bool {
	return strings.Contains(url, "drive.google.com") || strings.Contains(url, "docs.google.com")
}

// ExtractDriveID pulls the file id out of any of Drive's URL shapes.
func ExtractDriveID(url string) (string, bool) {
	for _, pattern := range driveIDPatterns {
		if match := pattern.FindStringSubmatch(url); match != nil {
			return match[1], true
		}
	}
	return "", false
}

// FilenameFromURL derives a safe local filename from a URL: last path
// segment, query stripped, unsafe characters replaced, and a default video
// extension when none of the known ones is present.
func FilenameFromURL(url string) string {
	name := url
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	name = unsafeCharRe.ReplaceAllString(name, "_")
	if name == "" {
		name = fmt.Sprintf("dl_%d", time.Now().Unix())
	}
	if !standardize.IsVideoExt(filepath.Ext(name)) {
		name += standardize.PrimaryExt
	}
	return name
}
