package transcode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	goruntime "runtime"
	"sync"
)

// defaultStderrTail bounds how much stderr a long-running process keeps.
const defaultStderrTail = 16 * 1024

// Result is the captured outcome of one finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// NewCommandLog pairs an invocation with its result.
func NewCommandLog(name string, args []string, res Result) CommandLog {
	return CommandLog{
		Command:  name,
		Args:     append([]string(nil), args...),
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
}

// Runner spawns the external transcoding engine. Run is for invocations
// the caller waits on; Start is for processes that outlive the call.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
	Start(name string, args ...string) (Process, error)
}

// Process is a handle on one long-running subprocess.
type Process interface {
	Pid() int
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// ExitCode is -1 until Done is closed.
	ExitCode() int
	// Stderr returns the most recent stderr output.
	Stderr() string
	// Interrupt asks the process to finish gracefully.
	Interrupt() error
	// Kill terminates the process immediately.
	Kill() error
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct {
	stderrTail int
}

// NewExecRunner builds the production runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{stderrTail: defaultStderrTail}
}

// Run executes one command and captures stdout/stderr and exit code.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Start launches a process without waiting for it. The process is reaped in
// the background; callers observe exit through Done.
func (r *ExecRunner) Start(name string, args ...string) (Process, error) {
	limit := r.stderrTail
	if limit <= 0 {
		limit = defaultStderrTail
	}

	cmd := exec.Command(name, args...)
	tail := newTailBuffer(limit)
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{
		cmd:      cmd,
		stderr:   tail,
		done:     make(chan struct{}),
		exitCode: -1,
	}
	go p.wait()
	return p, nil
}

// execProcess is the os/exec backed Process.
type execProcess struct {
	cmd    *exec.Cmd
	stderr *tailBuffer
	done   chan struct{}

	mu       sync.Mutex
	exitCode int
}

func (p *execProcess) wait() {
	_ = p.cmd.Wait()
	p.mu.Lock()
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	p.mu.Unlock()
	close(p.done)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *execProcess) Stderr() string {
	return p.stderr.String()
}

// Interrupt sends SIGINT so ffmpeg can finalize the playlist. Windows has no
// console interrupt for child processes, so it falls back to Kill there.
func (p *execProcess) Interrupt() error {
	if goruntime.GOOS == "windows" {
		return p.Kill()
	}
	err := p.cmd.Process.Signal(os.Interrupt)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
