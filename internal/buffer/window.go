package buffer

import (
	"fmt"
	"math"
	"time"
)

// Rolling window defaults: two-second segments, two hours retained.
const (
	DefaultSegmentDuration  = 2 * time.Second
	DefaultRetainedDuration = 2 * time.Hour
)

// Window is the bounded span of media the buffer keeps on disk. Retained is
// the configured value; the playlist length is derived from it.
type Window struct {
	SegmentDuration time.Duration
	Retained        time.Duration
}

// DefaultWindow returns the two-hour, two-second-segment window.
func DefaultWindow() Window {
	return Window{
		SegmentDuration: DefaultSegmentDuration,
		Retained:        DefaultRetainedDuration,
	}
}

// Validate checks both durations are usable.
func (w Window) Validate() error {
	if w.SegmentDuration < time.Second {
		return fmt.Errorf("segment duration %s is below 1s", w.SegmentDuration)
	}
	if w.Retained < w.SegmentDuration {
		return fmt.Errorf("retained duration %s is shorter than one segment (%s)", w.Retained, w.SegmentDuration)
	}
	return nil
}

// ListSize is the number of segments kept in the playlist, rounded up so
// the window never holds less than Retained.
func (w Window) ListSize() int {
	if w.SegmentDuration <= 0 {
		return 0
	}
	return int(math.Ceil(float64(w.Retained) / float64(w.SegmentDuration)))
}

// Span is the media time actually covered once the window is full.
func (w Window) Span() time.Duration {
	return time.Duration(w.ListSize()) * w.SegmentDuration
}
