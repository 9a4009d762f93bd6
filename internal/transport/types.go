package transport

import (
	"context"
	"errors"
)

// ErrChannelNotFound is returned when a voice channel id or name does not
// resolve to a live channel (deleted, renamed, or mistyped).
var ErrChannelNotFound = errors.New("voice channel not found")

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID         string
	GuildID    string
	ChannelID  string
	AuthorID   string
	AuthorName string
	Text       string
}

type ChatTarget struct {
	ChannelID string
}

type SendOptions struct {
	// Reference replies to a specific message id ("" means plain send).
	Reference string
}

// Adapter is the text side of the chat gateway.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}

// VoiceChannel identifies a joinable live-audio endpoint.
type VoiceChannel struct {
	ID      string
	GuildID string
	Name    string
}

// VoiceConn is one live voice connection. Implementations must make
// Disconnect safe to call more than once and on a dead connection.
type VoiceConn interface {
	// Play starts playback of an encoded audio file and returns once the
	// whole file has been handed to the connection, or earlier on error.
	Play(ctx context.Context, path string) error
	// Playing reports whether audio is still being sent.
	Playing() bool
	Disconnect() error
}

// VoiceAdapter is the voice side of the chat gateway.
type VoiceAdapter interface {
	// ResolveChannel resolves a channel by id, falling back to a
	// normalized name match within the guild.
	ResolveChannel(guildID, idOrName string) (VoiceChannel, error)
	// UserChannel returns the voice channel the user currently occupies.
	UserChannel(guildID, userID string) (VoiceChannel, bool)
	// Join opens a voice connection. It does not retry; callers own the
	// retry policy.
	Join(ctx context.Context, guildID, channelID string) (VoiceConn, error)
}
