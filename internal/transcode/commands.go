package transcode

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Extraction defaults. Threads is capped so an export never starves the
// capture process running next to it.
const (
	DefaultExtractThreads   = 2
	DefaultPreset           = "veryfast"
	DefaultCRF              = 23
	DefaultAudioCodec       = "aac"
	DefaultAudioBitrate     = "128k"
	DefaultKeyframeInterval = 30
)

const captureHLSFlags = "append_list+delete_segments"

// CaptureCommand describes the long-running RTMP to HLS invocation.
type CaptureCommand struct {
	Source          string
	ManifestPath    string
	SegmentDuration time.Duration
	ListSize        int
}

// Validate reports missing or non-positive fields.
func (c CaptureCommand) Validate() error {
	switch {
	case strings.TrimSpace(c.Source) == "":
		return errors.New("capture source is required")
	case strings.TrimSpace(c.ManifestPath) == "":
		return errors.New("capture manifest path is required")
	case c.SegmentDuration <= 0:
		return errors.New("segment duration must be positive")
	case c.ListSize <= 0:
		return errors.New("segment list size must be positive")
	}
	return nil
}

// Args builds ffmpeg args: video is copied untouched, audio is transcoded to
// AAC for browser playback, and old segments are deleted once they fall out
// of the playlist window.
func (c CaptureCommand) Args() []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "warning",
		"-i", c.Source,
		"-c:v", "copy",
		"-c:a", DefaultAudioCodec,
		"-f", "hls",
		"-hls_time", formatSeconds(c.SegmentDuration.Seconds()),
		"-hls_list_size", strconv.Itoa(c.ListSize),
		"-hls_flags", captureHLSFlags,
		c.ManifestPath,
	}
}

// ExtractCommand describes one clip export read from the delivery URL.
type ExtractCommand struct {
	Input            string
	StartSeconds     float64
	DurationSeconds  float64
	Threads          int
	Preset           string
	CRF              int
	AudioBitrate     string
	KeyframeInterval int
	Output           string
}

// withDefaults fills zero-valued encoder settings.
func (c ExtractCommand) withDefaults() ExtractCommand {
	if c.Threads <= 0 {
		c.Threads = DefaultExtractThreads
	}
	if strings.TrimSpace(c.Preset) == "" {
		c.Preset = DefaultPreset
	}
	if c.CRF <= 0 {
		c.CRF = DefaultCRF
	}
	if strings.TrimSpace(c.AudioBitrate) == "" {
		c.AudioBitrate = DefaultAudioBitrate
	}
	if c.KeyframeInterval <= 0 {
		c.KeyframeInterval = DefaultKeyframeInterval
	}
	return c
}

// Args builds ffmpeg args. Seek and duration sit before -i so the trim is
// applied while reading, and -live_start_index 0 anchors the offset at the
// oldest segment still listed instead of the live edge.
func (c ExtractCommand) Args() []string {
	c = c.withDefaults()
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-live_start_index", "0",
		"-ss", formatSeconds(c.StartSeconds),
		"-t", formatSeconds(c.DurationSeconds),
		"-i", c.Input,
		"-threads", strconv.Itoa(c.Threads),
		"-c:v", "libx264",
		"-preset", c.Preset,
		"-crf", strconv.Itoa(c.CRF),
		"-c:a", DefaultAudioCodec,
		"-b:a", c.AudioBitrate,
		"-af", "aresample=async=1",
		"-avoid_negative_ts", "make_zero",
		"-g", strconv.Itoa(c.KeyframeInterval),
		"-keyint_min", strconv.Itoa(c.KeyframeInterval),
		c.Output,
	}
}

// formatSeconds renders seconds with millisecond precision and no trailing zeros.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}
