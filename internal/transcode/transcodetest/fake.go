package transcodetest

import (
	"context"
	"errors"
	"sync"

	"stream-clipper/internal/transcode"
)

// Call records one Run or Start invocation.
type Call struct {
	Name string
	Args []string
}

// Runner is a scriptable transcode.Runner.
type Runner struct {
	// OnRun handles blocking invocations. Nil returns an empty success.
	OnRun func(ctx context.Context, name string, args ...string) (transcode.Result, error)
	// OnStart is called after a process has been created, e.g. to write the
	// manifest or exit the process. It runs on the caller's goroutine.
	OnStart func(p *Process, name string, args ...string)
	// StartErr makes Start fail without creating a process.
	StartErr error

	mu        sync.Mutex
	runs      []Call
	starts    []Call
	processes []*Process
}

// Run implements transcode.Runner.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (transcode.Result, error) {
	r.mu.Lock()
	r.runs = append(r.runs, Call{Name: name, Args: append([]string(nil), args...)})
	onRun := r.OnRun
	r.mu.Unlock()

	if onRun == nil {
		return transcode.Result{}, nil
	}
	return onRun(ctx, name, args...)
}

// Start implements transcode.Runner.
func (r *Runner) Start(name string, args ...string) (transcode.Process, error) {
	r.mu.Lock()
	r.starts = append(r.starts, Call{Name: name, Args: append([]string(nil), args...)})
	if r.StartErr != nil {
		err := r.StartErr
		r.mu.Unlock()
		return nil, err
	}
	p := NewProcess(len(r.processes) + 1000)
	r.processes = append(r.processes, p)
	onStart := r.OnStart
	r.mu.Unlock()

	if onStart != nil {
		onStart(p, name, args...)
	}
	return p, nil
}

// Runs returns recorded Run invocations.
func (r *Runner) Runs() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.runs...)
}

// Starts returns recorded Start invocations.
func (r *Runner) Starts() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.starts...)
}

// Processes returns every process created so far.
func (r *Runner) Processes() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Process(nil), r.processes...)
}

// Running returns processes that have not exited yet.
func (r *Runner) Running() []*Process {
	out := make([]*Process, 0)
	for _, p := range r.Processes() {
		if !p.Exited() {
			out = append(out, p)
		}
	}
	return out
}

// Process is a fake transcode.Process controlled by the test.
type Process struct {
	pid  int
	done chan struct{}

	mu          sync.Mutex
	exitCode    int
	stderr      string
	exited      bool
	interrupted bool
	killed      bool
	// IgnoreInterrupt keeps the process alive after Interrupt.
	IgnoreInterrupt bool
}

// NewProcess returns a running fake process.
func NewProcess(pid int) *Process {
	return &Process{pid: pid, done: make(chan struct{}), exitCode: -1}
}

// Exit terminates the fake process with the given code and stderr.
func (p *Process) Exit(code int, stderr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.exited = true
	p.exitCode = code
	p.stderr += stderr
	close(p.done)
}

// Exited reports whether the process has terminated.
func (p *Process) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

// Interrupted reports whether Interrupt was called.
func (p *Process) Interrupted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupted
}

// Killed reports whether Kill was called.
func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *Process) Pid() int { return p.pid }

func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *Process) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stderr
}

func (p *Process) Interrupt() error {
	p.mu.Lock()
	p.interrupted = true
	ignore := p.IgnoreInterrupt
	p.mu.Unlock()
	if !ignore {
		p.Exit(255, "")
	}
	return nil
}

func (p *Process) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.Exit(137, "")
	return nil
}

// ErrExit is a convenience error for scripted Run failures.
var ErrExit = errors.New("exit status 1")
