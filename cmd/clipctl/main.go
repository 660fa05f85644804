package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"stream-clipper/internal/config"
	"stream-clipper/internal/domain"
	"stream-clipper/internal/platform/logger"
)

var (
	settingsPath string
	logLevel     string
	logFormat    string
	overrides    domain.Settings
)

var rootCmd = &cobra.Command{
	Use:           "clipctl",
	Short:         "Headless stream capture and clip export",
	Long:          `clipctl buffers a live stream to disk as HLS and cuts MP4 clips out of it without the desktop UI`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	_ = config.LoadEnv()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&settingsPath, "settings", config.SettingsPath(), "Path to the settings file")
	flags.StringVar(&logLevel, "log-level", config.GetEnv(config.EnvLogLevel, "info"), "Log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", config.GetEnv(config.EnvLogFormat, "text"), "Log format (text, json)")
	flags.StringVar(&overrides.FFmpegPath, "ffmpeg", "", "Path to the ffmpeg binary")
	flags.StringVar(&overrides.BufferRoot, "buffer-root", "", "Directory that holds rolling buffers")
	flags.IntVar(&overrides.DeliveryPort, "port", 0, "Local delivery server port")

	rootCmd.AddCommand(newCaptureCmd(), newExtractCmd(), newDiagnoseCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadSettings reads persisted settings, then env, then explicit flags.
func loadSettings(cmd *cobra.Command) (domain.Settings, error) {
	settings, err := config.NewJSONStore(settingsPath).Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.ApplyEnv(settings)

	flags := cmd.Flags()
	if flags.Changed("ffmpeg") {
		settings.FFmpegPath = overrides.FFmpegPath
	}
	if flags.Changed("buffer-root") {
		settings.BufferRoot = overrides.BufferRoot
	}
	if flags.Changed("port") {
		settings.DeliveryPort = overrides.DeliveryPort
	}
	return config.Normalize(settings), nil
}

func newLogger() *slog.Logger {
	return logger.New(logLevel, logFormat)
}

// logChangedFlags records every flag set on the command line.
func logChangedFlags(log *slog.Logger, cmd *cobra.Command) {
	cmd.Flags().Visit(func(f *pflag.Flag) {
		log.Debug("flag", "name", f.Name, "value", f.Value.String())
	})
}
