package domain

import "time"

// SessionStatus tracks the lifecycle of the single capture session.
type SessionStatus string

const (
	SessionStatusIdle     SessionStatus = "idle"
	SessionStatusStarting SessionStatus = "starting"
	SessionStatusLive     SessionStatus = "live"
	SessionStatusStopped  SessionStatus = "stopped"
	SessionStatusFailed   SessionStatus = "failed"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	FFmpegPath               string   `json:"ffmpegPath"`
	ExportDir                string   `json:"exportDir"`
	BufferRoot               string   `json:"bufferRoot"`
	DeliveryPort             int      `json:"deliveryPort"`
	SegmentSeconds           int      `json:"segmentSeconds"`
	RetainedMinutes          int      `json:"retainedMinutes"`
	StartupTimeoutSeconds    int      `json:"startupTimeoutSeconds"`
	ExtractThreads           int      `json:"extractThreads"`
	MaxConcurrentExtractions int      `json:"maxConcurrentExtractions"`
	ClipNamePrefix           string   `json:"clipNamePrefix"`
	RecentURLs               []string `json:"recentUrls"`
}

// Session is a snapshot of the current capture session.
type Session struct {
	ID           string        `json:"id"`
	Status       SessionStatus `json:"status"`
	SourceURL    string        `json:"sourceUrl,omitempty"`
	BufferDir    string        `json:"bufferDir,omitempty"`
	ManifestPath string        `json:"manifestPath,omitempty"`
	DeliveryURL  string        `json:"deliveryUrl,omitempty"`
	StartedAt    time.Time     `json:"startedAt,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ClipRequest describes one extraction window relative to the oldest
// retained segment of the buffer.
type ClipRequest struct {
	StartSeconds    float64 `json:"startTime"`
	DurationSeconds float64 `json:"duration"`
	OutputName      string  `json:"outputName"`
}

// ExportRecord is one completed extraction kept in the session history.
type ExportRecord struct {
	Path            string    `json:"path"`
	CreatedAt       time.Time `json:"createdAt"`
	StartSeconds    float64   `json:"startTime"`
	DurationSeconds float64   `json:"duration"`
}
