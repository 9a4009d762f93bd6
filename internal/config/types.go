package config

type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Session   SessionConfig   `json:"session"`
	TTS       TTSConfig       `json:"tts"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token"`

	// OwnerUserIDs may run owner-only commands (e.g. !debug).
	OwnerUserIDs []string `json:"owner_user_ids,omitempty"`

	// LogChannel receives mirrored warn/error log lines when
	// logging.discord is enabled.
	LogChannel string `json:"log_channel,omitempty"`

	// Greeting posts the command help message to each guild's first
	// writable text channel once the gateway is ready.
	Greeting bool `json:"greeting,omitempty"`
}

type LoggingConfig struct {
	Level   string           `json:"level"`
	Console bool             `json:"console"`
	File    LogFileConfig    `json:"file"`
	Discord LogDiscordConfig `json:"discord"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LogDiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// SchedulerConfig controls the slot poller.
//
// All durations are Go duration strings (e.g. "5s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - timezone: system local
//   - tick_interval: "5s" (clamped to at most "1m" so a slot minute is
//     never skipped between ticks)
//   - schedule_file: "./schedule.json"
//   - fired_ttl: "24h"
type SchedulerConfig struct {
	Timezone     string `json:"timezone,omitempty"`
	TickInterval string `json:"tick_interval,omitempty"`
	ScheduleFile string `json:"schedule_file,omitempty"`
	FiredTTL     string `json:"fired_ttl,omitempty"`
}

// SessionConfig controls the per-session connect/announce sequence.
//
// Defaults: connect_attempts 20, connect_delay "500ms",
// play_wait_max "2m", poll_playing "250ms".
type SessionConfig struct {
	ConnectAttempts int    `json:"connect_attempts,omitempty"`
	ConnectDelay    string `json:"connect_delay,omitempty"`
	PlayWaitMax     string `json:"play_wait_max,omitempty"`
	PollPlaying     string `json:"poll_playing,omitempty"`
}

// TTSConfig controls announcement rendering.
//
// RenderCommand and NormalizeCommand are argv templates; occurrences of
// {{text}}, {{in}} and {{out}} are substituted before exec. Both tools are
// best-effort collaborators: failures skip the audio step, never the
// session.
//
// Example:
//
//	"render_command":    ["gtts-cli", "{{text}}", "--output", "{{out}}"],
//	"normalize_command": ["ffmpeg", "-y", "-i", "{{in}}", "-filter:a", "loudnorm", "{{out}}"]
type TTSConfig struct {
	RenderCommand    []string `json:"render_command,omitempty"`
	NormalizeCommand []string `json:"normalize_command,omitempty"`
	CacheDir         string   `json:"cache_dir,omitempty"`

	// StartupText is pre-rendered once and replayed at session start
	// while the main announcement renders.
	StartupText string `json:"startup_text,omitempty"`

	// AnnounceText is the scheduled session announcement.
	AnnounceText string `json:"announce_text,omitempty"`
}

// StorageConfig controls the optional persistence layer for the session
// audit log and fired-slot mirror.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./focusbot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
