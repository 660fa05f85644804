package capture

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSource is returned for empty or unsupported source URLs.
	ErrInvalidSource = errors.New("invalid source url")
	// ErrStartupTimeout is returned when no manifest appears within the startup bound.
	ErrStartupTimeout = errors.New("timed out waiting for the stream to start")
	// ErrProcessExitedEarly is returned when the transcoder exits before the
	// manifest appears.
	ErrProcessExitedEarly = errors.New("transcoder exited before the stream became available")
	// ErrSpawn is returned when the buffer or the transcoder cannot be set up.
	ErrSpawn = errors.New("failed to launch transcoder")
	// ErrStartCancelled is returned when a stop or the caller's context ends
	// a start before the manifest appears.
	ErrStartCancelled = errors.New("capture start was cancelled")

	errStopRequested = errors.New("stop requested")
)

// StartError describes a capture start that never went live. Kind is one of
// the package sentinels and is matched by errors.Is.
type StartError struct {
	Kind     error
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *StartError) Error() string {
	msg := e.Kind.Error()
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.ExitCode != 0 {
		msg = fmt.Sprintf("%s (exit code %d)", msg, e.ExitCode)
	}
	if tail := lastLine(e.Stderr); tail != "" {
		msg = fmt.Sprintf("%s: %s", msg, tail)
	}
	return msg
}

func (e *StartError) Unwrap() error {
	return e.Kind
}

// Reason is a short metric label for the failure kind.
func (e *StartError) Reason() string {
	switch e.Kind {
	case ErrStartupTimeout:
		return "timeout"
	case ErrProcessExitedEarly:
		return "exited_early"
	case ErrSpawn:
		return "spawn"
	case ErrStartCancelled:
		return "cancelled"
	default:
		return "other"
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
