package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestApplyEnvOverrides verifies env values win over persisted settings.
func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvFFmpegPath, "/custom/ffmpeg")
	t.Setenv(EnvPort, "23456")
	t.Setenv(EnvBufferRoot, "/fast-disk")
	t.Setenv(EnvExportDir, "")

	cfg := ApplyEnv(DefaultSettings())

	if cfg.FFmpegPath != "/custom/ffmpeg" {
		t.Fatalf("ffmpeg = %q", cfg.FFmpegPath)
	}
	if cfg.DeliveryPort != 23456 {
		t.Fatalf("port = %d, want 23456", cfg.DeliveryPort)
	}
	if cfg.BufferRoot != "/fast-disk" {
		t.Fatalf("buffer root = %q", cfg.BufferRoot)
	}
	if cfg.ExportDir != DefaultSettings().ExportDir {
		t.Fatalf("empty env should not override export dir, got %q", cfg.ExportDir)
	}
}

// TestApplyEnvIgnoresBadPort verifies invalid ports fall back.
func TestApplyEnvIgnoresBadPort(t *testing.T) {
	t.Setenv(EnvPort, "not-a-port")
	if got := ApplyEnv(DefaultSettings()).DeliveryPort; got != DefaultDeliveryPort {
		t.Fatalf("port = %d, want %d", got, DefaultDeliveryPort)
	}

	t.Setenv(EnvPort, "70000")
	if got := ApplyEnv(DefaultSettings()).DeliveryPort; got != DefaultDeliveryPort {
		t.Fatalf("port = %d, want %d", got, DefaultDeliveryPort)
	}
}

// TestLoadEnvReadsFile verifies .env values reach the environment.
func TestLoadEnvReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CLIPPER_TEST_VALUE=from-file\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CLIPPER_TEST_VALUE", "")
	os.Unsetenv("CLIPPER_TEST_VALUE")

	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := GetEnv("CLIPPER_TEST_VALUE", "fallback"); got != "from-file" {
		t.Fatalf("value = %q, want from-file", got)
	}
	if got := GetEnvInt("CLIPPER_TEST_MISSING", 7); got != 7 {
		t.Fatalf("int fallback = %d, want 7", got)
	}
}
