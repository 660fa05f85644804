package config

import (
	"fmt"
	"reflect"
	"testing"
)

// TestPushRecentMovesToFront verifies most-recent-first de-duplication.
func TestPushRecentMovesToFront(t *testing.T) {
	list := []string{"rtmp://a", "rtmp://b", "rtmp://c"}

	got := PushRecent(list, " rtmp://c ")

	want := []string{"rtmp://c", "rtmp://a", "rtmp://b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("recent = %v, want %v", got, want)
	}
}

// TestPushRecentCapsLength verifies the oldest entries fall off.
func TestPushRecentCapsLength(t *testing.T) {
	var list []string
	for i := 0; i < 15; i++ {
		list = PushRecent(list, fmt.Sprintf("rtmp://host/live/%d", i))
	}

	if len(list) != MaxRecentURLs {
		t.Fatalf("len = %d, want %d", len(list), MaxRecentURLs)
	}
	if list[0] != "rtmp://host/live/14" || list[MaxRecentURLs-1] != "rtmp://host/live/5" {
		t.Fatalf("unexpected order: %v", list)
	}
}

// TestPushRecentIgnoresBlank verifies blank input does not add an entry.
func TestPushRecentIgnoresBlank(t *testing.T) {
	got := PushRecent([]string{"rtmp://a"}, "   ")
	if !reflect.DeepEqual(got, []string{"rtmp://a"}) {
		t.Fatalf("recent = %v", got)
	}
}
