package clip

import (
	"errors"
	"fmt"
	"sync"

	"stream-clipper/internal/domain"
)

var (
	// ErrNoInPoint is returned when an out-point is set before any in-point.
	ErrNoInPoint = errors.New("set an in-point first")
	// ErrOutBeforeIn is returned when an out-point is not after the in-point.
	ErrOutBeforeIn = errors.New("out-point must be after the in-point")
	// ErrNotReady is returned when a request is built from incomplete marks.
	ErrNotReady = errors.New("clip marks are incomplete")
)

// Range is a snapshot of the marks. Nil means unset.
type Range struct {
	In  *float64 `json:"in,omitempty"`
	Out *float64 `json:"out,omitempty"`
}

// Duration is out minus in, or zero when the range is not ready.
func (r Range) Duration() float64 {
	if r.In == nil || r.Out == nil || *r.Out <= *r.In {
		return 0
	}
	return *r.Out - *r.In
}

// Marks tracks the in/out points in seconds from the oldest retained segment.
type Marks struct {
	mu  sync.Mutex
	in  *float64
	out *float64
}

// MarkIn sets the in-point. An existing out-point at or before t is cleared.
func (m *Marks) MarkIn(t float64) error {
	if t < 0 {
		return fmt.Errorf("in-point %.3f is negative", t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.in = &t
	if m.out != nil && *m.out <= t {
		m.out = nil
	}
	return nil
}

// MarkOut sets the out-point. It is rejected without an in-point or when t
// is not after it; the marks are unchanged in that case.
func (m *Marks) MarkOut(t float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.in == nil {
		return ErrNoInPoint
	}
	if t <= *m.in {
		return ErrOutBeforeIn
	}
	m.out = &t
	return nil
}

// Ready reports whether both points are set and out is after in.
func (m *Marks) Ready() bool {
	return m.Range().Duration() > 0
}

// Range returns a copy of the current marks.
func (m *Marks) Range() Range {
	m.mu.Lock()
	defer m.mu.Unlock()
	var r Range
	if m.in != nil {
		in := *m.in
		r.In = &in
	}
	if m.out != nil {
		out := *m.out
		r.Out = &out
	}
	return r
}

// Request converts the marks into an extraction request.
func (m *Marks) Request(outputName string) (domain.ClipRequest, error) {
	r := m.Range()
	if r.Duration() <= 0 {
		return domain.ClipRequest{}, ErrNotReady
	}
	return domain.ClipRequest{
		StartSeconds:    *r.In,
		DurationSeconds: r.Duration(),
		OutputName:      outputName,
	}, nil
}

// Reset clears both points.
func (m *Marks) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.in = nil
	m.out = nil
}
