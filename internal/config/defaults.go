package config

import (
	"os"
	"path/filepath"

	"stream-clipper/internal/domain"
)

// Defaults for first launch and for fields missing from an older settings file.
const (
	DefaultDeliveryPort             = 12345
	DefaultSegmentSeconds           = 2
	DefaultRetainedMinutes          = 120
	DefaultStartupTimeoutSeconds    = 15
	DefaultExtractThreads           = 2
	DefaultMaxConcurrentExtractions = 2
	DefaultClipNamePrefix           = "Clip"
)

// AppDirName is the per-user settings directory under the home directory.
const AppDirName = ".stream-clipper"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		FFmpegPath:               "ffmpeg",
		ExportDir:                filepath.Join(homeDir, "Downloads"),
		BufferRoot:               os.TempDir(),
		DeliveryPort:             DefaultDeliveryPort,
		SegmentSeconds:           DefaultSegmentSeconds,
		RetainedMinutes:          DefaultRetainedMinutes,
		StartupTimeoutSeconds:    DefaultStartupTimeoutSeconds,
		ExtractThreads:           DefaultExtractThreads,
		MaxConcurrentExtractions: DefaultMaxConcurrentExtractions,
		ClipNamePrefix:           DefaultClipNamePrefix,
	}
}

// SettingsPath returns the settings file location for the current user.
func SettingsPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, AppDirName, "settings.json")
}

// Normalize fills empty or out-of-range fields from defaults.
func Normalize(cfg domain.Settings) domain.Settings {
	def := DefaultSettings()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = def.ExportDir
	}
	if cfg.BufferRoot == "" {
		cfg.BufferRoot = def.BufferRoot
	}
	if cfg.DeliveryPort <= 0 || cfg.DeliveryPort > 65535 {
		cfg.DeliveryPort = def.DeliveryPort
	}
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = def.SegmentSeconds
	}
	if cfg.RetainedMinutes <= 0 {
		cfg.RetainedMinutes = def.RetainedMinutes
	}
	if cfg.StartupTimeoutSeconds <= 0 {
		cfg.StartupTimeoutSeconds = def.StartupTimeoutSeconds
	}
	if cfg.ExtractThreads <= 0 {
		cfg.ExtractThreads = def.ExtractThreads
	}
	if cfg.MaxConcurrentExtractions <= 0 {
		cfg.MaxConcurrentExtractions = def.MaxConcurrentExtractions
	}
	if cfg.ClipNamePrefix == "" {
		cfg.ClipNamePrefix = def.ClipNamePrefix
	}
	cfg.RecentURLs = TrimRecent(cfg.RecentURLs)
	return cfg
}
