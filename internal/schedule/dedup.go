package schedule

import (
	"fmt"
	"sync"
	"time"
)

type slotKey struct {
	guild  string
	day    time.Weekday
	hour   int
	minute int
}

func keyAt(guildID string, t time.Time) slotKey {
	return slotKey{guild: guildID, day: t.Weekday(), hour: t.Hour(), minute: t.Minute()}
}

// FiredKey is the string form used for the durable fired-slot mirror.
func FiredKey(guildID string, t time.Time) string {
	return fmt.Sprintf("%s|%s|%02d:%02d", guildID, DayAbbr(t.Weekday()), t.Hour(), t.Minute())
}

// FiredSet tracks which (guild, slot) pairs already fired, preventing a
// re-trigger within the same minute across repeated poll ticks.
//
// It is bounded: each key stores only the last fired wall time, and keys
// older than the TTL are pruned, so stale slots from previous days never
// accumulate.
type FiredSet struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[slotKey]time.Time
}

// NewFiredSet creates a set whose entries expire after ttl, default 24h.
// A slot recurs weekly, so one day of history is plenty.
func NewFiredSet(ttl time.Duration) *FiredSet {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &FiredSet{ttl: ttl, m: map[slotKey]time.Time{}}
}

// Fired reports whether the guild's slot for the minute of t already fired
// this occurrence.
func (f *FiredSet) Fired(guildID string, t time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	last, ok := f.m[keyAt(guildID, t)]
	if !ok {
		return false
	}
	return last.Equal(t.Truncate(time.Minute))
}

// Mark records that the guild's slot fired in the minute of t.
func (f *FiredSet) Mark(guildID string, t time.Time) {
	f.mu.Lock()
	f.m[keyAt(guildID, t)] = t.Truncate(time.Minute)
	f.mu.Unlock()
}

// ClearGuild forgets the guild's fired history so a freshly re-added
// identical slot can fire again the same day.
func (f *FiredSet) ClearGuild(guildID string) {
	f.mu.Lock()
	for k := range f.m {
		if k.guild == guildID {
			delete(f.m, k)
		}
	}
	f.mu.Unlock()
}

// Prune evicts entries older than the TTL and returns how many were
// removed.
func (f *FiredSet) Prune(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k, last := range f.m {
		if now.Sub(last) > f.ttl {
			delete(f.m, k)
			n++
		}
	}
	return n
}

// Len reports the current number of tracked keys.
func (f *FiredSet) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.m)
}
