package activity

import (
	"sort"
	"testing"
	"time"
)

func TestActiveSince(t *testing.T) {
	tracker := NewTracker()
	tracker.Touch("guild-1", "u1")
	tracker.Touch("guild-1", "u2")
	tracker.Touch("guild-2", "u3")

	got := tracker.ActiveSince("guild-1", time.Minute)
	sort.Strings(got)
	if len(got) != 2 || got[0] != "u1" || got[1] != "u2" {
		t.Errorf("guild-1 active = %v, want [u1 u2]", got)
	}

	if got := tracker.ActiveSince("guild-2", time.Minute); len(got) != 1 || got[0] != "u3" {
		t.Errorf("guild-2 active = %v, want [u3]", got)
	}

	if got := tracker.ActiveSince("guild-3", time.Minute); len(got) != 0 {
		t.Errorf("unknown guild active = %v, want empty", got)
	}
}

func TestActiveSinceWindow(t *testing.T) {
	tracker := NewTracker()
	tracker.guilds["guild-1"] = map[string]time.Time{
		"old":    time.Now().Add(-2 * time.Hour),
		"recent": time.Now().Add(-time.Minute),
	}

	got := tracker.ActiveSince("guild-1", time.Hour)
	if len(got) != 1 || got[0] != "recent" {
		t.Errorf("active = %v, want [recent]", got)
	}
}

func TestEvictStale(t *testing.T) {
	tracker := NewTracker()
	tracker.guilds["guild-1"] = map[string]time.Time{
		"stale": time.Now().Add(-25 * time.Hour),
		"fresh": time.Now(),
	}
	tracker.guilds["guild-2"] = map[string]time.Time{
		"stale": time.Now().Add(-48 * time.Hour),
	}

	tracker.evictStale()

	if _, ok := tracker.guilds["guild-1"]["stale"]; ok {
		t.Error("stale entry survived eviction")
	}
	if _, ok := tracker.guilds["guild-1"]["fresh"]; !ok {
		t.Error("fresh entry evicted")
	}
	if _, ok := tracker.guilds["guild-2"]; ok {
		t.Error("empty guild map not removed")
	}
}
