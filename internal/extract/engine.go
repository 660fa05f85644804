package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"stream-clipper/internal/domain"
	"stream-clipper/internal/platform/metrics"
	"stream-clipper/internal/transcode"
)

// DefaultMaxConcurrent bounds simultaneous encodes so exports cannot starve
// the capture process.
const DefaultMaxConcurrent = 2

var (
	// ErrInvalidClip is returned for a negative start, non-positive duration,
	// or missing input or destination.
	ErrInvalidClip = errors.New("invalid clip request")
	// ErrEncode is matched by every *EncodeError.
	ErrEncode = errors.New("clip encode failed")
)

// EncodeError is a failed extraction with the command that produced it.
type EncodeError struct {
	Message    string               `json:"message"`
	CommandLog transcode.CommandLog `json:"commandLog"`
	Err        error                `json:"-"`
}

// Error formats encode failures for logs and UI.
func (e *EncodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", ErrEncode, e.Message)
	}
	return fmt.Sprintf("%s: %s (cmd=%s exit=%d)", ErrEncode, e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
}

// Unwrap exposes ErrEncode and the underlying cause.
func (e *EncodeError) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{ErrEncode}
	}
	return []error{ErrEncode, e.Err}
}

// Config holds encoder settings; zero values fall back to transcode defaults.
type Config struct {
	FFmpegPath       string
	Threads          int
	Preset           string
	CRF              int
	AudioBitrate     string
	KeyframeInterval int
	MaxConcurrent    int
}

// Engine runs clip extractions. It never touches the capture process.
type Engine struct {
	cfg     Config
	runner  transcode.Runner
	sem     *semaphore.Weighted
	log     *slog.Logger
	metrics *metrics.Metrics

	stat     func(name string) (os.FileInfo, error)
	mkdirAll func(path string, perm os.FileMode) error
	remove   func(name string) error
}

// NewEngine constructs the engine with OS dependencies. Metrics may be nil.
func NewEngine(cfg Config, runner transcode.Runner, log *slog.Logger, m *metrics.Metrics) *Engine {
	if strings.TrimSpace(cfg.FFmpegPath) == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		runner:   runner,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		log:      log,
		metrics:  m,
		stat:     os.Stat,
		mkdirAll: os.MkdirAll,
		remove:   os.Remove,
	}
}

// Extract encodes [StartSeconds, StartSeconds+DurationSeconds) of the
// playlist at inputURL into dest and returns dest. Offsets are relative to
// the oldest segment still listed. On failure no partial file is left behind.
func (e *Engine) Extract(ctx context.Context, req domain.ClipRequest, inputURL, dest string) (string, error) {
	if err := validate(req, inputURL, dest); err != nil {
		return "", err
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", &EncodeError{Message: "cancelled while waiting for an encoder slot", Err: err}
	}
	defer e.sem.Release(1)

	if err := e.mkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", &EncodeError{Message: fmt.Sprintf("cannot create output directory: %s", filepath.Dir(dest)), Err: err}
	}

	cmd := transcode.ExtractCommand{
		Input:            inputURL,
		StartSeconds:     req.StartSeconds,
		DurationSeconds:  req.DurationSeconds,
		Threads:          e.cfg.Threads,
		Preset:           e.cfg.Preset,
		CRF:              e.cfg.CRF,
		AudioBitrate:     e.cfg.AudioBitrate,
		KeyframeInterval: e.cfg.KeyframeInterval,
		Output:           dest,
	}
	args := cmd.Args()

	log := e.log.With("dest", dest, "start", req.StartSeconds, "duration", req.DurationSeconds)
	log.Info("extracting clip")
	began := time.Now()

	res, runErr := e.runner.Run(ctx, e.cfg.FFmpegPath, args...)
	cmdLog := transcode.NewCommandLog(e.cfg.FFmpegPath, args, res)
	if runErr != nil {
		e.discardPartial(dest)
		err := &EncodeError{Message: "ffmpeg clip encode failed", CommandLog: cmdLog, Err: runErr}
		e.metrics.ObserveClipExport(time.Since(began), err)
		log.Error("clip extraction failed", "exit_code", res.ExitCode, "stderr", res.Stderr, "error", runErr)
		return "", err
	}

	if _, err := e.stat(dest); err != nil {
		err := &EncodeError{Message: "ffmpeg completed but clip file is missing", CommandLog: cmdLog, Err: err}
		e.metrics.ObserveClipExport(time.Since(began), err)
		log.Error("clip extraction produced no file")
		return "", err
	}

	e.metrics.ObserveClipExport(time.Since(began), nil)
	log.Info("clip exported", "elapsed", time.Since(began).Round(time.Millisecond))
	return dest, nil
}

func (e *Engine) discardPartial(dest string) {
	if err := e.remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.log.Warn("partial clip cleanup failed", "dest", dest, "error", err)
	}
}

func validate(req domain.ClipRequest, inputURL, dest string) error {
	switch {
	case req.StartSeconds < 0:
		return fmt.Errorf("%w: start %.3f is negative", ErrInvalidClip, req.StartSeconds)
	case req.DurationSeconds <= 0:
		return fmt.Errorf("%w: duration %.3f must be positive", ErrInvalidClip, req.DurationSeconds)
	case strings.TrimSpace(inputURL) == "":
		return fmt.Errorf("%w: no stream to read from", ErrInvalidClip)
	case strings.TrimSpace(dest) == "":
		return fmt.Errorf("%w: destination is required", ErrInvalidClip)
	}
	return nil
}
