package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"discord": {"token": "tok", "owner_user_ids": ["1", "2"]},
		"logging": {"level": "debug", "console": true},
		"scheduler": {"timezone": "America/Chicago", "tick_interval": "10s"},
		"session": {"connect_attempts": 5},
		"tts": {"render_command": ["gtts-cli", "{{text}}", "--output", "{{out}}"]}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Discord.Token != "tok" {
		t.Fatalf("Token = %q", cfg.Discord.Token)
	}
	if len(cfg.Discord.OwnerUserIDs) != 2 {
		t.Fatalf("OwnerUserIDs = %v", cfg.Discord.OwnerUserIDs)
	}
	if cfg.Scheduler.Timezone != "America/Chicago" {
		t.Fatalf("Timezone = %q", cfg.Scheduler.Timezone)
	}
	if cfg.Session.ConnectAttempts != 5 {
		t.Fatalf("ConnectAttempts = %d", cfg.Session.ConnectAttempts)
	}
	if cfg.Storage != nil {
		t.Fatalf("Storage = %+v, want nil", cfg.Storage)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
discord:
  token: tok
logging:
  level: info
  console: true
scheduler:
  tick_interval: 5s
session: {}
tts:
  startup_text: "Please wait while we get things ready."
storage:
  driver: file
  path: ./store
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Discord.Token != "tok" {
		t.Fatalf("Token = %q", cfg.Discord.Token)
	}
	if cfg.TTS.StartupText == "" {
		t.Fatal("StartupText lost in yaml coercion")
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("Storage = %+v", cfg.Storage)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"discord": {"token": "tok", "tokenn": "typo"}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("typo field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"discord": {"token": "a"}}{"discord": {"token": "b"}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("concatenated JSON accepted")
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := NewManager(filepath.Join(t.TempDir(), "nope.json")).Parse(); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestLoadCommitsAndGet(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"discord": {"token": "tok"}}`)
	m := NewManager(path)

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get returned a different config than Load committed")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 5)
	if err != nil || d != 5 {
		t.Fatalf("empty = (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "not-a-duration"); err == nil {
		t.Fatal("bad duration accepted")
	}
}
