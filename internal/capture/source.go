package capture

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"
)

var supportedSchemes = []string{"rtmp", "rtmps", "rtsp", "srt", "http", "https"}

// ValidateSource checks that raw is an absolute URL ffmpeg can ingest.
func ValidateSource(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSource)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if !lo.Contains(supportedSchemes, strings.ToLower(u.Scheme)) {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSource, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidSource)
	}
	return nil
}
