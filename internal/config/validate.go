package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStandardize(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateStaging(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTelegram() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/skiff/config.toml"
		}
		return fmt.Errorf("telegram.bot_token is required. Set SKIFF_BOT_TOKEN env var or edit %s (create with 'skiff config init')", defaultPath)
	}
	if c.Telegram.AdminID == 0 {
		return errors.New("telegram.admin_id must be set to the operator account id")
	}
	if c.Telegram.MaxUploadBytes <= 0 {
		return errors.New("telegram.max_upload_bytes must be positive")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StagingDir == "" {
		return errors.New("paths.staging_dir must be set")
	}
	return nil
}

func (c *Config) validateStandardize() error {
	if strings.TrimSpace(c.Standardize.FFmpegBinary) == "" {
		return errors.New("standardize.ffmpeg_binary must be set")
	}
	if strings.TrimSpace(c.Standardize.FFprobeBinary) == "" {
		return errors.New("standardize.ffprobe_binary must be set")
	}
	if c.Standardize.RemuxTimeout <= 0 || c.Standardize.EncodeTimeout <= 0 {
		return errors.New("standardize timeouts must be positive")
	}
	if c.Standardize.ThumbnailTimestamp < 0 {
		return errors.New("standardize.thumbnail_timestamp must not be negative")
	}
	if c.Naming.Brand == "" {
		return errors.New("naming.brand must be set")
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Delivery.Attempts < 1 {
		return errors.New("delivery.attempts must be at least 1")
	}
	if c.Delivery.BackoffSeconds < 0 {
		return errors.New("delivery.backoff_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateStaging() error {
	if c.Staging.RetentionHours <= 0 {
		return errors.New("staging.retention_hours must be positive")
	}
	if c.Staging.SweepIntervalHours <= 0 {
		return errors.New("staging.sweep_interval_hours must be positive")
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.MaxBytes <= 0 {
		return errors.New("fetch.max_bytes must be positive")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return errors.New("fetch.timeout_seconds must be positive")
	}
	return nil
}
