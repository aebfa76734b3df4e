package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skiff/internal/config"
)

func validConfigTOML() string {
	return `
[telegram]
bot_token = "123:abc"
admin_id = 42
`
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(validConfigTOML()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be reported as existing")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %s, got %s", path, resolved)
	}
	if cfg.Delivery.Attempts != 3 {
		t.Fatalf("expected default delivery attempts 3, got %d", cfg.Delivery.Attempts)
	}
	if cfg.Standardize.FFmpegBinary != "ffmpeg" {
		t.Fatalf("expected default ffmpeg binary, got %q", cfg.Standardize.FFmpegBinary)
	}
	if cfg.Naming.AudioTitleTag != cfg.Naming.Brand {
		t.Fatalf("expected audio title tag to default to brand, got %q", cfg.Naming.AudioTitleTag)
	}
}

func TestLoadRejectsMissingToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[telegram]\nadmin_id = 42\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "bot_token") {
		t.Fatalf("expected bot_token error, got %v", err)
	}
}

func TestLoadEnvOverrideSuppliesToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[telegram]\nadmin_id = 42\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SKIFF_BOT_TOKEN", "456:def")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Telegram.BotToken != "456:def" {
		t.Fatalf("expected env token, got %q", cfg.Telegram.BotToken)
	}
}

func TestValidateRejectsBadDurations(t *testing.T) {
	cfg := config.Default()
	cfg.Telegram.BotToken = "123:abc"
	cfg.Telegram.AdminID = 42
	cfg.Standardize.RemuxTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero remux timeout")
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error writing sample over existing config")
	}
}
