package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SessionRecord captures one fired session for the audit log.
// Keep it compact and schema-stable.
type SessionRecord struct {
	At        time.Time
	GuildID   string
	ChannelID string
	Outcome   string // "started", "ended", "failed"
	Error     string
	TookMS    int64
}
