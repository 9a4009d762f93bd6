package discord

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"focusbot/internal/transport"
	"focusbot/pkg/logx"
)

// ResolveChannel looks a voice channel up by snowflake id first, then
// by normalized name within the guild. Users schedule by the name they
// see, so name matching ignores case and repeated whitespace.
func (a *Adapter) ResolveChannel(guildID, idOrName string) (transport.VoiceChannel, error) {
	channels, err := a.guildChannels(guildID)
	if err != nil {
		return transport.VoiceChannel{}, err
	}

	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildVoice && ch.ID == idOrName {
			return asVoiceChannel(ch), nil
		}
	}
	want := normalizeName(idOrName)
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildVoice && normalizeName(ch.Name) == want {
			return asVoiceChannel(ch), nil
		}
	}
	return transport.VoiceChannel{}, fmt.Errorf("%q in guild %s: %w", idOrName, guildID, transport.ErrChannelNotFound)
}

// UserChannel reports the voice channel the user is currently in,
// according to gateway voice state.
func (a *Adapter) UserChannel(guildID, userID string) (transport.VoiceChannel, bool) {
	g, err := a.sess.State.Guild(guildID)
	if err != nil {
		return transport.VoiceChannel{}, false
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID != userID {
			continue
		}
		ch, err := a.sess.State.Channel(vs.ChannelID)
		if err != nil {
			return transport.VoiceChannel{ID: vs.ChannelID, GuildID: guildID}, true
		}
		return asVoiceChannel(ch), true
	}
	return transport.VoiceChannel{}, false
}

// Join opens one voice connection attempt. The session runner owns the
// retry loop, so an unready connection comes back as an error here.
func (a *Adapter) Join(ctx context.Context, guildID, channelID string) (transport.VoiceConn, error) {
	vc, err := a.sess.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("join voice channel %s: %w", channelID, err)
	}
	if !vc.Ready {
		vc.Disconnect()
		return nil, errors.New("voice connection not ready")
	}
	return &voiceConn{vc: vc, log: a.log.With(logx.String("channel", channelID))}, nil
}

// guildChannels prefers the gateway state cache and falls back to a
// REST fetch when the guild is not cached yet.
func (a *Adapter) guildChannels(guildID string) ([]*discordgo.Channel, error) {
	if g, err := a.sess.State.Guild(guildID); err == nil && len(g.Channels) > 0 {
		return g.Channels, nil
	}
	channels, err := a.sess.GuildChannels(guildID)
	if err != nil {
		return nil, fmt.Errorf("list channels for guild %s: %w", guildID, err)
	}
	return channels, nil
}

func asVoiceChannel(ch *discordgo.Channel) transport.VoiceChannel {
	return transport.VoiceChannel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// voiceConn streams pre-encoded opus (DCA) frames to one voice
// connection. Playback runs on its own goroutine; Playing flips false
// when the last frame has been handed to the gateway.
type voiceConn struct {
	vc  *discordgo.VoiceConnection
	log logx.Logger

	playing  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	mu sync.Mutex // guards stopCh init and Disconnect
}

const frameSendTimeout = 5 * time.Second

func (c *voiceConn) Play(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio file: %w", err)
	}

	c.mu.Lock()
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.mu.Unlock()

	if !c.playing.CompareAndSwap(false, true) {
		f.Close()
		return errors.New("already playing")
	}

	go func() {
		defer f.Close()
		defer c.playing.Store(false)

		if err := c.vc.Speaking(true); err != nil {
			c.log.Warn("speaking on failed", logx.Err(err))
		}
		defer func() {
			if err := c.vc.Speaking(false); err != nil {
				c.log.Debug("speaking off failed", logx.Err(err))
			}
		}()

		if err := c.stream(ctx, f, stopCh); err != nil {
			c.log.Warn("playback stopped early", logx.String("path", path), logx.Err(err))
		}
	}()
	return nil
}

// stream reads DCA framing: an int16 little-endian frame length followed
// by that many bytes of opus data, repeated until EOF.
func (c *voiceConn) stream(ctx context.Context, f *os.File, stopCh <-chan struct{}) error {
	var frameLen int16
	for {
		err := binary.Read(f, binary.LittleEndian, &frameLen)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame header: %w", err)
		}
		if frameLen <= 0 {
			return fmt.Errorf("bad frame length %d", frameLen)
		}

		frame := make([]byte, frameLen)
		if _, err := io.ReadFull(f, frame); err != nil {
			return fmt.Errorf("read frame body: %w", err)
		}

		select {
		case c.vc.OpusSend <- frame:
		case <-stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(frameSendTimeout):
			return errors.New("voice send stalled")
		}
	}
}

func (c *voiceConn) Playing() bool {
	return c.playing.Load()
}

func (c *voiceConn) Disconnect() error {
	var err error
	c.stopOnce.Do(func() {
		c.mu.Lock()
		if c.stopCh != nil {
			close(c.stopCh)
		}
		c.mu.Unlock()
		err = c.vc.Disconnect()
	})
	return err
}
