// Package discord implements the chat and voice gateway on top of the
// Discord gateway API.
package discord

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"focusbot/internal/transport"
	"focusbot/pkg/logx"
)

type Options struct {
	Token string
	// Greeting is posted once per guild when the bot first sees it after
	// connecting. Empty disables the greeting.
	Greeting string
}

// Adapter bridges the discordgo session to the transport interfaces.
// One Adapter serves both text (transport.Adapter) and voice
// (transport.VoiceAdapter).
type Adapter struct {
	log  logx.Logger
	opts Options

	sess *discordgo.Session

	mu      sync.Mutex
	running bool
	out     chan<- transport.Update
	greeted map[string]bool

	dropped atomic.Uint64
}

func New(opts Options, log logx.Logger) (*Adapter, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("discord token is empty")
	}
	sess, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	sess.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentMessageContent
	sess.StateEnabled = true

	return &Adapter{log: log, opts: opts, sess: sess, greeted: map[string]bool{}}, nil
}

// Start opens the gateway connection and begins forwarding message
// events to out. Events are forwarded without blocking the discordgo
// callback; when out is full the update is dropped and counted.
func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	a.mu.Unlock()

	a.sess.AddHandler(a.onReady)
	a.sess.AddHandler(a.onMessageCreate)
	a.sess.AddHandler(a.onGuildCreate)

	if err := a.sess.Open(); err != nil {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return fmt.Errorf("open discord gateway: %w", err)
	}

	go a.dropReporter(ctx)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()
	return a.sess.Close()
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	msg := &discordgo.MessageSend{Content: text}
	if opt != nil && opt.Reference != "" {
		msg.Reference = &discordgo.MessageReference{
			MessageID: opt.Reference,
			ChannelID: to.ChannelID,
		}
	}
	_, err := a.sess.ChannelMessageSendComplex(to.ChannelID, msg, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send to channel %s: %w", to.ChannelID, err)
	}
	return nil
}

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	a.log.Info("discord gateway ready",
		logx.String("user", r.User.Username), logx.Int("guilds", len(r.Guilds)))
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	up := transport.Update{
		Kind: transport.UpdateMessage,
		Message: &transport.Message{
			ID:         m.ID,
			GuildID:    m.GuildID,
			ChannelID:  m.ChannelID,
			AuthorID:   m.Author.ID,
			AuthorName: m.Author.Username,
			Text:       m.Content,
		},
	}

	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.dropped.Add(1)
	}
}

// onGuildCreate greets the guild once per process lifetime. Guild
// create fires on every reconnect, hence the dedup map.
func (a *Adapter) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if a.opts.Greeting == "" || g.Unavailable {
		return
	}
	a.mu.Lock()
	seen := a.greeted[g.ID]
	a.greeted[g.ID] = true
	a.mu.Unlock()
	if seen {
		return
	}

	ch := firstTextChannel(g.Guild)
	if ch == "" {
		return
	}
	if _, err := s.ChannelMessageSend(ch, a.opts.Greeting); err != nil {
		a.log.Debug("greeting failed",
			logx.String("guild", g.ID), logx.Err(err))
	}
}

// firstTextChannel picks the lowest-positioned text channel, matching
// where Discord lands users by default.
func firstTextChannel(g *discordgo.Guild) string {
	var best *discordgo.Channel
	for _, ch := range g.Channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		if best == nil || ch.Position < best.Position {
			best = ch
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

func (a *Adapter) dropReporter(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cur := a.dropped.Load()
			if cur != last {
				a.log.Warn("inbound updates dropped", logx.Uint64("dropped", cur-last))
				last = cur
			}
		}
	}
}
