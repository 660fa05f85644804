package config

import (
	"strings"

	"github.com/samber/lo"
)

// MaxRecentURLs caps the remembered source list.
const MaxRecentURLs = 10

// PushRecent moves url to the front of list, dropping duplicates and
// anything past MaxRecentURLs. Blank urls leave the list unchanged.
func PushRecent(list []string, url string) []string {
	url = strings.TrimSpace(url)
	if url == "" {
		return TrimRecent(list)
	}
	return TrimRecent(append([]string{url}, list...))
}

// TrimRecent trims, de-duplicates and caps a stored list, keeping order.
func TrimRecent(list []string) []string {
	cleaned := lo.Uniq(lo.Compact(lo.Map(list, func(s string, _ int) string {
		return strings.TrimSpace(s)
	})))
	if len(cleaned) > MaxRecentURLs {
		cleaned = cleaned[:MaxRecentURLs]
	}
	return cleaned
}
