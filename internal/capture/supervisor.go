package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stream-clipper/internal/buffer"
	"stream-clipper/internal/delivery"
	"stream-clipper/internal/domain"
	"stream-clipper/internal/platform/metrics"
	"stream-clipper/internal/session"
	"stream-clipper/internal/transcode"
)

const (
	// DefaultStartupTimeout bounds how long a start waits for the manifest.
	DefaultStartupTimeout = 15 * time.Second
	// DefaultExitWait bounds how long a killed or interrupted process may
	// take to be reaped.
	DefaultExitWait = 5 * time.Second
	// DefaultStopGrace is how long Stop lets ffmpeg finalize before killing it.
	DefaultStopGrace = 10 * time.Second
)

// Config holds the supervisor's tunables.
type Config struct {
	FFmpegPath     string
	Window         buffer.Window
	StartupTimeout time.Duration
	PollInterval   time.Duration
	ExitWait       time.Duration
	StopGrace      time.Duration
	// DeliveryURL is the playlist URL the delivery server exposes.
	DeliveryURL string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.FFmpegPath) == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.Window.Validate() != nil {
		c.Window = buffer.DefaultWindow()
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = buffer.DefaultPollInterval
	}
	if c.ExitWait <= 0 {
		c.ExitWait = DefaultExitWait
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	return c
}

// Supervisor owns the capture subprocess. At most one process is alive at a
// time; starting again force-kills the previous one first.
type Supervisor struct {
	cfg      Config
	runner   transcode.Runner
	buffers  *buffer.Manager
	registry *delivery.Registry
	sessions *session.Manager
	log      *slog.Logger
	metrics  *metrics.Metrics
	newID    func() string

	startMu sync.Mutex

	mu   sync.Mutex
	proc transcode.Process
	// abort cancels the start waiting on proc, nil once proc is live.
	abort context.CancelCauseFunc
	// stopping is the last interrupted process, possibly still finalizing.
	stopping transcode.Process
}

// NewSupervisor wires the supervisor. Metrics may be nil.
func NewSupervisor(
	cfg Config,
	runner transcode.Runner,
	buffers *buffer.Manager,
	registry *delivery.Registry,
	sessions *session.Manager,
	log *slog.Logger,
	m *metrics.Metrics,
) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil {
		sessions = session.NewManager(nil)
	}
	return &Supervisor{
		cfg:      cfg.withDefaults(),
		runner:   runner,
		buffers:  buffers,
		registry: registry,
		sessions: sessions,
		log:      log,
		metrics:  m,
		newID:    uuid.NewString,
	}
}

// Current returns the session snapshot.
func (s *Supervisor) Current() domain.Session {
	return s.sessions.Current()
}

// Start begins capturing sourceURL into a fresh buffer and blocks until the
// manifest exists, the process exits, or the startup timeout passes.
func (s *Supervisor) Start(ctx context.Context, sourceURL string) (domain.Session, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if err := ValidateSource(sourceURL); err != nil {
		return s.sessions.Current(), err
	}
	s.metrics.IncCaptureStarts()

	id := s.newID()
	proc, dir, err := s.launch(id, sourceURL)
	if err != nil {
		return s.fail(id, nil, err)
	}

	log := s.log.With("session", id, "pid", proc.Pid())
	log.Info("transcoder started", "source", sourceURL, "dir", dir)

	startCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	if !s.track(proc, abort) {
		s.terminate(proc, proc.Kill)
		return s.fail(id, proc, &StartError{Kind: ErrStartCancelled, Cause: errStopRequested})
	}

	waitCtx, cancel := context.WithTimeout(startCtx, s.cfg.StartupTimeout)
	defer cancel()

	ready := make(chan error, 1)
	go func() {
		ready <- buffer.WaitForFile(waitCtx, buffer.ManifestPath(dir), s.cfg.PollInterval)
	}()

	select {
	case err := <-ready:
		if err != nil {
			s.terminate(proc, proc.Kill)
			if cause := context.Cause(startCtx); cause != nil {
				log.Info("start cancelled", "cause", cause)
				return s.fail(id, proc, &StartError{Kind: ErrStartCancelled, Cause: cause})
			}
			if errors.Is(err, context.DeadlineExceeded) {
				log.Warn("manifest did not appear in time", "timeout", s.cfg.StartupTimeout)
				return s.fail(id, proc, &StartError{Kind: ErrStartupTimeout, Stderr: proc.Stderr()})
			}
			return s.fail(id, proc, &StartError{Kind: ErrSpawn, Cause: err})
		}
	case <-proc.Done():
		cancel()
		if cause := context.Cause(startCtx); errors.Is(cause, errStopRequested) {
			return s.fail(id, proc, &StartError{Kind: ErrStartCancelled, Cause: cause})
		}
		log.Warn("transcoder exited during startup", "exit_code", proc.ExitCode())
		return s.fail(id, proc, &StartError{
			Kind:     ErrProcessExitedEarly,
			ExitCode: proc.ExitCode(),
			Stderr:   proc.Stderr(),
		})
	}

	if err := s.promote(id, dir, proc); err != nil {
		s.terminate(proc, proc.Kill)
		return s.fail(id, proc, err)
	}
	s.metrics.SetCaptureLive(true)
	log.Info("capture live", "url", s.cfg.DeliveryURL)

	go s.monitor(id, proc)
	return s.sessions.Current(), nil
}

// track registers abort as the way to cancel the start of proc. It reports
// false when proc was already stopped or replaced.
func (s *Supervisor) track(proc transcode.Process, abort context.CancelCauseFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != proc {
		return false
	}
	s.abort = abort
	return true
}

// promote marks the session live while proc is still current. Holding mu
// across the transition keeps Stop from slipping between the check and
// MarkLive.
func (s *Supervisor) promote(id, dir string, proc transcode.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != proc {
		return &StartError{Kind: ErrStartCancelled, Cause: errStopRequested}
	}
	s.abort = nil
	if err := s.sessions.MarkLive(id, s.cfg.DeliveryURL, dir); err != nil {
		return &StartError{Kind: ErrProcessExitedEarly, Cause: err}
	}
	return nil
}

// launch replaces the previous process and buffer with new ones. It is
// serialized so concurrent starts never interleave kill, cleanup and spawn.
func (s *Supervisor) launch(id, sourceURL string) (transcode.Process, string, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if err := s.sessions.Begin(id, sourceURL); err != nil {
		return nil, "", &StartError{Kind: ErrSpawn, Cause: err}
	}

	s.mu.Lock()
	olds := []transcode.Process{s.proc, s.stopping}
	s.proc = nil
	s.abort = nil
	s.stopping = nil
	s.mu.Unlock()
	for _, old := range olds {
		if old == nil || exited(old) {
			continue
		}
		s.log.Info("killing previous transcoder", "pid", old.Pid())
		s.metrics.SetCaptureLive(false)
		s.terminate(old, old.Kill)
	}

	if s.registry != nil {
		s.registry.Clear()
	}
	dir, err := s.buffers.PrepareFresh()
	if err != nil {
		return nil, "", &StartError{Kind: ErrSpawn, Cause: err}
	}

	cmd := transcode.CaptureCommand{
		Source:          sourceURL,
		ManifestPath:    buffer.ManifestPath(dir),
		SegmentDuration: s.cfg.Window.SegmentDuration,
		ListSize:        s.cfg.Window.ListSize(),
	}
	if err := cmd.Validate(); err != nil {
		return nil, "", &StartError{Kind: ErrSpawn, Cause: err}
	}

	proc, err := s.runner.Start(s.cfg.FFmpegPath, cmd.Args()...)
	if err != nil {
		return nil, "", &StartError{Kind: ErrSpawn, Cause: err}
	}

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()
	if s.registry != nil {
		s.registry.Set(dir)
	}
	return proc, dir, nil
}

// fail records a start failure. A session already superseded by a newer
// start is left alone.
func (s *Supervisor) fail(id string, proc transcode.Process, err error) (domain.Session, error) {
	if proc != nil && s.release(proc) && s.registry != nil {
		s.registry.Clear()
	}

	reason := "other"
	var startErr *StartError
	if errors.As(err, &startErr) {
		reason = startErr.Reason()
	}
	s.metrics.IncCaptureFailures(reason)

	if markErr := s.sessions.MarkFailed(id, err); markErr != nil {
		s.log.Debug("failure not recorded", "session", id, "error", markErr)
		if errors.Is(markErr, session.ErrStaleSession) {
			var se *StartError
			if !errors.As(err, &se) || se.Kind != ErrProcessExitedEarly {
				err = &StartError{Kind: ErrProcessExitedEarly, Cause: err}
			}
		}
	}
	return s.sessions.Current(), err
}

// Stop interrupts the capture so ffmpeg can finalize the playlist. The buffer
// directory and the delivery registry are kept so clips can still be cut.
// It returns without waiting for the process to exit.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	proc, abort := s.proc, s.abort
	s.proc = nil
	s.abort = nil
	if proc != nil {
		s.stopping = proc
	}
	s.mu.Unlock()

	if abort != nil {
		abort(errStopRequested)
	}
	if proc == nil {
		return nil
	}
	s.metrics.SetCaptureLive(false)
	if err := s.sessions.MarkStopped(); err != nil {
		s.log.Debug("stop outside live session", "error", err)
	}

	s.log.Info("stopping transcoder", "pid", proc.Pid())
	if err := proc.Interrupt(); err != nil {
		s.log.Warn("interrupt failed, killing transcoder", "pid", proc.Pid(), "error", err)
		return proc.Kill()
	}

	go func() {
		select {
		case <-proc.Done():
			s.log.Debug("transcoder finished", "pid", proc.Pid(), "exit_code", proc.ExitCode())
		case <-time.After(s.cfg.StopGrace):
			s.log.Warn("transcoder ignored interrupt, killing", "pid", proc.Pid())
			_ = proc.Kill()
		}
	}()
	return nil
}

// Shutdown stops the capture at application exit, waiting a bounded time
// for a graceful exit before killing.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	procs := []transcode.Process{s.proc, s.stopping}
	abort := s.abort
	s.proc = nil
	s.abort = nil
	s.stopping = nil
	s.mu.Unlock()

	if abort != nil {
		abort(errStopRequested)
	}
	s.metrics.SetCaptureLive(false)
	_ = s.sessions.MarkStopped()
	for _, proc := range procs {
		if proc == nil || exited(proc) {
			continue
		}
		s.terminate(proc, proc.Interrupt)
		if !exited(proc) {
			s.terminate(proc, proc.Kill)
		}
	}
}

// monitor reports a live process that exits without being asked to.
func (s *Supervisor) monitor(id string, proc transcode.Process) {
	<-proc.Done()
	if !s.release(proc) {
		return
	}

	s.metrics.SetCaptureLive(false)
	s.log.Warn("transcoder exited unexpectedly", "session", id, "pid", proc.Pid(), "exit_code", proc.ExitCode())
	s.sessions.Publish(session.Event{
		SessionID: id,
		Type:      session.EventTypeLog,
		Message:   fmt.Sprintf("transcoder exited with code %d", proc.ExitCode()),
		ExitCode:  proc.ExitCode(),
		Stderr:    proc.Stderr(),
	})
	if err := s.sessions.MarkStopped(); err != nil {
		s.log.Debug("exit after session change", "session", id, "error", err)
	}
}

// release clears proc as the current process. It reports whether proc was
// still current.
func (s *Supervisor) release(proc transcode.Process) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != proc {
		return false
	}
	s.proc = nil
	s.abort = nil
	return true
}

// terminate signals proc and waits up to ExitWait for it to be reaped.
func (s *Supervisor) terminate(proc transcode.Process, signal func() error) {
	if err := signal(); err != nil {
		s.log.Warn("signal transcoder failed", "pid", proc.Pid(), "error", err)
	}
	select {
	case <-proc.Done():
	case <-time.After(s.cfg.ExitWait):
		s.log.Warn("transcoder did not exit in time", "pid", proc.Pid(), "wait", s.cfg.ExitWait)
	}
}

func exited(proc transcode.Process) bool {
	select {
	case <-proc.Done():
		return true
	default:
		return false
	}
}
