package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"stream-clipper/internal/buffer"
	"stream-clipper/internal/capture"
	"stream-clipper/internal/delivery"
	"stream-clipper/internal/platform/metrics"
	"stream-clipper/internal/session"
	"stream-clipper/internal/transcode"
)

const shutdownTimeout = 10 * time.Second

func newCaptureCmd() *cobra.Command {
	var (
		discard        bool
		windowMinutes  int
		startupTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "capture <source-url>",
		Short: "Buffer a live source and serve it over local HLS until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			log := newLogger()
			logChangedFlags(log, cmd)

			if windowMinutes > 0 {
				settings.RetainedMinutes = windowMinutes
			}
			if startupTimeout <= 0 {
				startupTimeout = time.Duration(settings.StartupTimeoutSeconds) * time.Second
			}

			met := metrics.New()
			events := session.NewEventBus(0)
			events.OnPublish(func(e session.Event) {
				switch e.Type {
				case session.EventTypeError:
					log.Error(e.Message, "session", e.SessionID)
				case session.EventTypeLog:
					log.Warn(e.Message, "session", e.SessionID, "exit_code", e.ExitCode)
				default:
					log.Info(e.Message, "session", e.SessionID, "status", e.Status)
				}
			})

			registry := delivery.NewRegistry()
			server := delivery.NewServer(delivery.DefaultHost, settings.DeliveryPort, registry, log, met)
			if err := server.Start(); err != nil {
				return err
			}

			buffers := buffer.NewManager(settings.BufferRoot, log)
			supervisor := capture.NewSupervisor(capture.Config{
				FFmpegPath: settings.FFmpegPath,
				Window: buffer.Window{
					SegmentDuration: time.Duration(settings.SegmentSeconds) * time.Second,
					Retained:        time.Duration(settings.RetainedMinutes) * time.Minute,
				},
				StartupTimeout: startupTimeout,
				DeliveryURL:    server.ManifestURL(),
			}, transcode.NewExecRunner(), buffers, registry, session.NewManager(events), log, met)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				sess, err := supervisor.Start(gctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), sess.DeliveryURL)
				log.Info("capturing, press Ctrl+C to stop", "buffer", sess.BufferDir)
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				supervisor.Shutdown()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			if discard {
				buffers.Discard(buffers.Current())
			} else if dir := buffers.Current(); dir != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "buffer kept at %s\n", dir)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, capture.ErrStartCancelled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&discard, "discard", false, "Delete the buffer directory on exit")
	cmd.Flags().IntVar(&windowMinutes, "window", 0, "Minutes of media to retain (default from settings)")
	cmd.Flags().DurationVar(&startupTimeout, "startup-timeout", 0, "How long to wait for the first playlist (default from settings)")
	return cmd
}
