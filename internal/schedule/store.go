package schedule

import (
	"sort"
	"sync"
	"time"

	"focusbot/pkg/logx"
)

// Entry is one scheduled session within a weekday. Immutable once created;
// removed only by Clear.
type Entry struct {
	Hour      int
	Minute    int
	ChannelID string
}

// DayEntries is a read-only display snapshot of one weekday's entries.
type DayEntries struct {
	Day     time.Weekday
	Entries []Entry
}

// Persister mirrors the in-memory schedule to durable storage.
type Persister interface {
	Save(schedules map[string]map[time.Weekday][]Entry) error
	Load() (map[string]map[time.Weekday][]Entry, error)
}

// Store owns the per-guild weekly schedule.
//
// Every mutation synchronously persists the full snapshot; mutation
// frequency is human-driven, so the simple full write wins over partial
// update bookkeeping. A persistence failure is logged and the in-memory
// state stays authoritative until the next successful write.
type Store struct {
	mu sync.Mutex

	log   logx.Logger
	file  Persister
	fired *FiredSet

	byGuild map[string]map[time.Weekday][]Entry
}

func NewStore(file Persister, fired *FiredSet, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		log:     log,
		file:    file,
		fired:   fired,
		byGuild: map[string]map[time.Weekday][]Entry{},
	}
}

// Add appends an entry to the guild's weekday list. Duplicates are
// permitted; the fired-slot set guarantees a single session per minute
// regardless.
func (s *Store) Add(guildID string, slot Slot, channelID string) {
	s.mu.Lock()
	g := s.byGuild[guildID]
	if g == nil {
		g = map[time.Weekday][]Entry{}
		s.byGuild[guildID] = g
	}
	g[slot.Day] = append(g[slot.Day], Entry{Hour: slot.Hour, Minute: slot.Minute, ChannelID: channelID})
	s.persistLocked()
	s.mu.Unlock()
}

// Days returns the guild's schedule ordered Mon..Sun for display.
func (s *Store) Days(guildID string) []DayEntries {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.byGuild[guildID]
	if len(g) == 0 {
		return nil
	}
	order := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday,
	}
	var out []DayEntries
	for _, d := range order {
		if entries := g[d]; len(entries) > 0 {
			out = append(out, DayEntries{Day: d, Entries: append([]Entry(nil), entries...)})
		}
	}
	return out
}

// Clear removes the guild's entire schedule and forgets its fired-slot
// history, so a re-added identical slot can fire again the same day.
func (s *Store) Clear(guildID string) {
	s.mu.Lock()
	delete(s.byGuild, guildID)
	s.persistLocked()
	s.mu.Unlock()

	if s.fired != nil {
		s.fired.ClearGuild(guildID)
	}
}

// Load populates the store from durable storage at process start.
// A missing or corrupt file starts the store empty; startup never fails
// on schedule state.
func (s *Store) Load() {
	if s.file == nil {
		return
	}
	got, err := s.file.Load()
	if err != nil {
		s.log.Warn("schedule load failed, starting empty", logx.Err(err))
		return
	}
	s.mu.Lock()
	if got == nil {
		got = map[string]map[time.Weekday][]Entry{}
	}
	s.byGuild = got
	n := 0
	for _, g := range got {
		for _, entries := range g {
			n += len(entries)
		}
	}
	s.mu.Unlock()
	s.log.Info("schedule loaded", logx.Int("guilds", len(got)), logx.Int("entries", n))
}

// GuildIDs returns guilds with a non-empty schedule, sorted for
// deterministic poll order.
func (s *Store) GuildIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.byGuild))
	for id, g := range s.byGuild {
		if len(g) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// dayEntries returns a copy of the guild's list for one weekday.
func (s *Store) dayEntries(guildID string, day time.Weekday) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.byGuild[guildID]
	if g == nil {
		return nil
	}
	return append([]Entry(nil), g[day]...)
}

func (s *Store) persistLocked() {
	if s.file == nil {
		return
	}
	// Snapshot under the lock; Save serializes the copy.
	snap := make(map[string]map[time.Weekday][]Entry, len(s.byGuild))
	for id, g := range s.byGuild {
		cg := make(map[time.Weekday][]Entry, len(g))
		for d, entries := range g {
			cg[d] = append([]Entry(nil), entries...)
		}
		snap[id] = cg
	}
	if err := s.file.Save(snap); err != nil {
		// In-memory state stays authoritative; the user-facing reply does
		// not fail on a disk error.
		s.log.Error("schedule persist failed", logx.Err(err))
	}
}
