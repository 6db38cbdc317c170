package activity

import (
	"sync"
	"time"
)

const (
	retention       = 24 * time.Hour
	cleanupInterval = time.Hour
)

// Tracker records when users were last seen per guild, fed from gateway
// message and presence events. It lives entirely in memory; a restart just
// means rain eligibility rebuilds as people talk.
type Tracker struct {
	mu     sync.RWMutex
	guilds map[string]map[string]time.Time

	cleanupTicker *time.Ticker
	shutdown      chan struct{}
	done          sync.WaitGroup
}

func NewTracker() *Tracker {
	return &Tracker{
		guilds:        make(map[string]map[string]time.Time),
		cleanupTicker: time.NewTicker(cleanupInterval),
		shutdown:      make(chan struct{}),
	}
}

// Touch marks a user active in a guild now.
func (t *Tracker) Touch(guildID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	guild, ok := t.guilds[guildID]
	if !ok {
		guild = make(map[string]time.Time)
		t.guilds[guildID] = guild
	}
	guild[userID] = time.Now()
}

// ActiveSince returns users seen in the guild within the window.
func (t *Tracker) ActiveSince(guildID string, window time.Duration) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	var users []string
	for userID, seen := range t.guilds[guildID] {
		if seen.After(cutoff) {
			users = append(users, userID)
		}
	}
	return users
}

// Start begins periodic eviction of stale entries.
func (t *Tracker) Start() {
	t.done.Add(1)
	go func() {
		defer t.done.Done()
		defer t.cleanupTicker.Stop()

		for {
			select {
			case <-t.cleanupTicker.C:
				t.evictStale()
			case <-t.shutdown:
				return
			}
		}
	}()
}

func (t *Tracker) evictStale() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	for guildID, guild := range t.guilds {
		for userID, seen := range guild {
			if seen.Before(cutoff) {
				delete(guild, userID)
			}
		}
		if len(guild) == 0 {
			delete(t.guilds, guildID)
		}
	}
}

func (t *Tracker) Shutdown() {
	close(t.shutdown)
	t.done.Wait()
}
