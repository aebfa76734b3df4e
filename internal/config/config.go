package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	WebBind    string `toml:"web_bind"`
}

// Telegram contains transport credentials and the operator allow-list.
type Telegram struct {
	BotToken       string `toml:"bot_token"`
	AdminID        int64  `toml:"admin_id"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
}

// Naming contains the standardized output naming convention.
type Naming struct {
	Brand         string `toml:"brand"`
	AudioTitleTag string `toml:"audio_title_tag"`
}

// Standardize contains settings for the probe and remux tool invocations.
type Standardize struct {
	FFmpegBinary       string `toml:"ffmpeg_binary"`
	FFprobeBinary      string `toml:"ffprobe_binary"`
	ProbeTimeout       int    `toml:"probe_timeout"`
	RemuxTimeout       int    `toml:"remux_timeout"`
	EncodeTimeout      int    `toml:"encode_timeout"`
	ThumbnailTimestamp int    `toml:"thumbnail_timestamp"`
}

// Tracks contains audio track selection settings.
type Tracks struct {
	// SubsetMinTracks is the track count at or above which a reply may
	// reference a strict subset of the listed tracks.
	SubsetMinTracks int `toml:"subset_min_tracks"`
}

// Delivery contains retry behavior for outbound sends.
type Delivery struct {
	Attempts       int `toml:"attempts"`
	BackoffSeconds int `toml:"backoff_seconds"`
}

// Staging contains retention settings for the shared staging directory.
type Staging struct {
	RetentionHours     int `toml:"retention_hours"`
	SweepIntervalHours int `toml:"sweep_interval_hours"`
}

// Fetch contains settings for remote URL downloads.
type Fetch struct {
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxBytes       int64  `toml:"max_bytes"`
	UserAgent      string `toml:"user_agent"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Skiff.
type Config struct {
	Paths       Paths       `toml:"paths"`
	Telegram    Telegram    `toml:"telegram"`
	Naming      Naming      `toml:"naming"`
	Standardize Standardize `toml:"standardize"`
	Tracks      Tracks      `toml:"tracks"`
	Delivery    Delivery    `toml:"delivery"`
	Staging     Staging     `toml:"staging"`
	Fetch       Fetch       `toml:"fetch"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/skiff/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. Secrets may be supplied through
// the SKIFF_BOT_TOKEN and SKIFF_ADMIN_ID environment variables.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func applyEnvOverrides(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv("SKIFF_BOT_TOKEN")); token != "" {
		cfg.Telegram.BotToken = token
	}
	if raw := strings.TrimSpace(os.Getenv("SKIFF_ADMIN_ID")); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cfg.Telegram.AdminID = id
		}
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Naming.Brand = strings.TrimSpace(c.Naming.Brand)
	c.Naming.AudioTitleTag = strings.TrimSpace(c.Naming.AudioTitleTag)
	if c.Naming.AudioTitleTag == "" {
		c.Naming.AudioTitleTag = c.Naming.Brand
	}
	return nil
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// ProbeTimeout returns the ffprobe call timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Standardize.ProbeTimeout) * time.Second
}

// RemuxTimeout returns the wall-clock limit for the stream-copy phase.
func (c *Config) RemuxTimeout() time.Duration {
	return time.Duration(c.Standardize.RemuxTimeout) * time.Second
}

// EncodeTimeout returns the wall-clock limit for the re-encode fallback phase.
func (c *Config) EncodeTimeout() time.Duration {
	return time.Duration(c.Standardize.EncodeTimeout) * time.Second
}

// ThumbnailTimestamp returns the frame-capture offset as a duration.
func (c *Config) ThumbnailTimestamp() time.Duration {
	return time.Duration(c.Standardize.ThumbnailTimestamp) * time.Second
}

// DeliveryBackoff returns the exponential backoff base for delivery retries.
func (c *Config) DeliveryBackoff() time.Duration {
	return time.Duration(c.Delivery.BackoffSeconds) * time.Second
}

// StagingRetention returns how long staged files may linger before the sweep
// removes them.
func (c *Config) StagingRetention() time.Duration {
	return time.Duration(c.Staging.RetentionHours) * time.Hour
}

// SweepInterval returns the period of the staging cleanup sweep.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Staging.SweepIntervalHours) * time.Hour
}

// FetchTimeout returns the overall remote download deadline.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		usr, err := user.Current()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return usr.HomeDir, nil
		}
		return filepath.Join(usr.HomeDir, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", trimmed, err)
	}
	return abs, nil
}
