package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"Focus Room", "focus room"},
		{"  Focus   Room  ", "focus room"},
		{"FOCUS\tROOM", "focus room"},
		{"focus room", "focus room"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeName(tt.in); got != tt.want {
			t.Fatalf("normalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFirstTextChannel(t *testing.T) {
	t.Parallel()
	g := &discordgo.Guild{Channels: []*discordgo.Channel{
		{ID: "v1", Type: discordgo.ChannelTypeGuildVoice, Position: 0},
		{ID: "t2", Type: discordgo.ChannelTypeGuildText, Position: 5},
		{ID: "t1", Type: discordgo.ChannelTypeGuildText, Position: 1},
	}}
	if got := firstTextChannel(g); got != "t1" {
		t.Fatalf("firstTextChannel = %q, want t1", got)
	}

	empty := &discordgo.Guild{Channels: []*discordgo.Channel{
		{ID: "v1", Type: discordgo.ChannelTypeGuildVoice},
	}}
	if got := firstTextChannel(empty); got != "" {
		t.Fatalf("firstTextChannel = %q, want empty", got)
	}
}
