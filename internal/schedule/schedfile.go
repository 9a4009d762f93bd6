package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"focusbot/pkg/logx"
)

// File persists the schedule as a JSON mapping
//
//	{guildID: {"Mon": [[hour, minute, channelID], ...], ...}}
//
// and must round-trip losslessly. Writes go through a temp file + rename
// so a crash never leaves a torn schedule on disk.
type File struct {
	path string
	log  logx.Logger
}

func NewFile(path string, log logx.Logger) *File {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &File{path: path, log: log}
}

// entryTuple serializes an Entry as the 3-element array wire form.
type entryTuple Entry

func (e entryTuple) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Hour, e.Minute, e.ChannelID})
}

func (e *entryTuple) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("schedule tuple: want 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Hour); err != nil {
		return fmt.Errorf("schedule tuple hour: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Minute); err != nil {
		return fmt.Errorf("schedule tuple minute: %w", err)
	}
	// Channel ids are opaque: accept a string or a bare number.
	if err := json.Unmarshal(raw[2], &e.ChannelID); err != nil {
		var n json.Number
		if err2 := json.Unmarshal(raw[2], &n); err2 != nil {
			return fmt.Errorf("schedule tuple channel: %w", err)
		}
		e.ChannelID = n.String()
	}
	return nil
}

func (f *File) Save(schedules map[string]map[time.Weekday][]Entry) error {
	out := make(map[string]map[string][]entryTuple, len(schedules))
	for guildID, g := range schedules {
		days := make(map[string][]entryTuple, len(g))
		for d, entries := range g {
			tuples := make([]entryTuple, len(entries))
			for i, e := range entries {
				tuples[i] = entryTuple(e)
			}
			days[DayAbbr(d)] = tuples
		}
		out[guildID] = days
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *File) Load() (map[string]map[time.Weekday][]Entry, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]map[time.Weekday][]Entry{}, nil
		}
		return nil, err
	}

	var raw map[string]map[string][]entryTuple
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]map[time.Weekday][]Entry, len(raw))
	for guildID, days := range raw {
		g := map[time.Weekday][]Entry{}
		for abbr, tuples := range days {
			d, err := ParseDay(abbr)
			if err != nil {
				f.log.Warn("schedule file: skipping unknown day",
					logx.String("guild", guildID), logx.String("day", abbr))
				continue
			}
			entries := make([]Entry, len(tuples))
			for i, t := range tuples {
				entries[i] = Entry(t)
			}
			g[d] = entries
		}
		out[guildID] = g
	}
	return out, nil
}
