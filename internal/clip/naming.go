package clip

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultPrefix names clips when no prefix is configured.
const DefaultPrefix = "Clip"

const (
	timestampLayout = "02-01-2006 15_04_05"
	fileExt         = ".mp4"
)

// OutputName returns "<prefix> - dd-mm-yyyy HH_MM_SS" for now.
func OutputName(prefix string, now time.Time) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s - %s", prefix, now.Format(timestampLayout))
}

// FileName turns a display name into a safe .mp4 file name.
func FileName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, fileExt)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	if name == "" {
		name = strings.ToLower(DefaultPrefix)
	}
	return name + fileExt
}

// Timecode renders seconds as HH:MM:SS.
func Timecode(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
