package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"stream-clipper/internal/domain"
)

// Environment variables that override persisted settings.
const (
	EnvFFmpegPath = "CLIPPER_FFMPEG"
	EnvPort       = "CLIPPER_PORT"
	EnvBufferRoot = "CLIPPER_BUFFER_ROOT"
	EnvExportDir  = "CLIPPER_EXPORT_DIR"
	EnvLogLevel   = "LOG_LEVEL"
	EnvLogFormat  = "LOG_FORMAT"
)

// LoadEnv reads .env files into the process environment. A missing file is
// reported but callers may ignore it and use system env or defaults.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// ApplyEnv overlays environment overrides on cfg. Overrides are not
// persisted; they apply to the running process only.
func ApplyEnv(cfg domain.Settings) domain.Settings {
	cfg.FFmpegPath = GetEnv(EnvFFmpegPath, cfg.FFmpegPath)
	cfg.BufferRoot = GetEnv(EnvBufferRoot, cfg.BufferRoot)
	cfg.ExportDir = GetEnv(EnvExportDir, cfg.ExportDir)
	if port := GetEnvInt(EnvPort, cfg.DeliveryPort); port > 0 && port <= 65535 {
		cfg.DeliveryPort = port
	}
	return cfg
}
