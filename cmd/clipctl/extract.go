package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stream-clipper/internal/clip"
	"stream-clipper/internal/domain"
	"stream-clipper/internal/extract"
	"stream-clipper/internal/platform/metrics"
	"stream-clipper/internal/transcode"
)

func newExtractCmd() *cobra.Command {
	var (
		inputURL string
		start    float64
		duration float64
		out      string
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Cut one clip out of a running buffer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			log := newLogger()
			logChangedFlags(log, cmd)

			if strings.TrimSpace(inputURL) == "" {
				inputURL = fmt.Sprintf("http://localhost:%d/stream/stream.m3u8", settings.DeliveryPort)
			}
			if strings.TrimSpace(out) == "" {
				out = filepath.Join(settings.ExportDir, clip.FileName(clip.OutputName(settings.ClipNamePrefix, time.Now())))
			}

			engine := extract.NewEngine(extract.Config{
				FFmpegPath:    settings.FFmpegPath,
				Threads:       settings.ExtractThreads,
				MaxConcurrent: 1,
			}, transcode.NewExecRunner(), log, metrics.New())

			path, err := engine.Extract(cmd.Context(), domain.ClipRequest{
				StartSeconds:    start,
				DurationSeconds: duration,
			}, inputURL, out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&inputURL, "url", "", "Playlist URL (default: the local delivery server)")
	cmd.Flags().Float64Var(&start, "start", 0, "Start offset in seconds from the oldest retained segment")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Clip length in seconds")
	cmd.Flags().StringVar(&out, "out", "", "Output file (default: timestamped name in the export directory)")
	_ = cmd.MarkFlagRequired("duration")
	return cmd
}
