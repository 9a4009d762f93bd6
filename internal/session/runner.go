package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"focusbot/internal/eventbus"
	"focusbot/internal/transport"
	"focusbot/pkg/logx"
)

// Renderer is the announcement renderer collaborator. Render failures
// are non-fatal: the session skips that audio step.
type Renderer interface {
	Render(ctx context.Context, text string) (string, error)
	// StartupClip returns a pre-generated "please wait" clip, if one
	// exists.
	StartupClip() (string, bool)
	// Cleanup removes a rendered file once played; best-effort.
	Cleanup(path string)
}

// Normalizer is the audio normalize/transcode collaborator, best-effort.
type Normalizer interface {
	Normalize(ctx context.Context, path string) (string, error)
}

// Info is the payload carried on session lifecycle bus events.
type Info struct {
	GuildID   string
	ChannelID string
	Error     string
	TookMS    int64
}

type Config struct {
	// ConnectAttempts bounds the connect/stabilization loop.
	ConnectAttempts int
	// ConnectDelay is the pause between connect attempts.
	ConnectDelay time.Duration
	// PlayWaitMax caps how long playback completion is awaited.
	PlayWaitMax time.Duration
	// PollPlaying is the playback status poll interval.
	PollPlaying time.Duration
	// AnnounceText is the scheduled session announcement.
	AnnounceText string
}

func (c Config) withDefaults() Config {
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 20
	}
	if c.ConnectDelay <= 0 {
		c.ConnectDelay = 500 * time.Millisecond
	}
	if c.PlayWaitMax <= 0 {
		c.PlayWaitMax = 2 * time.Minute
	}
	if c.PollPlaying <= 0 {
		c.PollPlaying = 250 * time.Millisecond
	}
	if c.AnnounceText == "" {
		c.AnnounceText = "Hi, let's get started. What's your first priority today?"
	}
	return c
}

type activeSession struct {
	channelID string
	conn      transport.VoiceConn
	state     State
}

// Runner drives the connect-announce-wait sequence for due slots and
// owns the one-active-session-per-guild invariant.
type Runner struct {
	cfg   Config
	log   logx.Logger
	voice transport.VoiceAdapter
	tts   Renderer
	norm  Normalizer
	bus   eventbus.Bus

	mu     sync.Mutex
	active map[string]*activeSession
}

func New(cfg Config, voice transport.VoiceAdapter, tts Renderer, norm Normalizer, bus eventbus.Bus, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		cfg:    cfg.withDefaults(),
		log:    log,
		voice:  voice,
		tts:    tts,
		norm:   norm,
		bus:    bus,
		active: map[string]*activeSession{},
	}
}

// Run drives one session for a due slot. It never propagates an error:
// any failure is logged, the connection is force-closed, and control
// returns to the poller.
func (r *Runner) Run(ctx context.Context, guildID, channelID string) {
	start := time.Now()
	log := r.log.With(logx.String("guild", guildID), logx.String("channel", channelID))

	// Last-trigger-wins: a lingering connection from an earlier slot is
	// torn down before this one proceeds.
	if r.dropActive(guildID) {
		log.Info("superseding previous session")
	}

	ch, err := r.voice.ResolveChannel(guildID, channelID)
	if err != nil {
		if errors.Is(err, transport.ErrChannelNotFound) {
			log.Warn("voice channel not found, skipping session")
		} else {
			log.Error("voice channel lookup failed", logx.Err(err))
		}
		r.fail(guildID, channelID, start, err)
		return
	}

	r.setState(guildID, ch.ID, StateConnecting)

	conn, err := r.connect(ctx, guildID, ch.ID)
	if err != nil {
		log.Error("connect failed, aborting session", logx.Err(err))
		r.dropActive(guildID)
		r.fail(guildID, ch.ID, start, err)
		return
	}

	r.mu.Lock()
	if s := r.active[guildID]; s != nil {
		s.conn = conn
	} else {
		// End() raced us; honor it.
		r.mu.Unlock()
		_ = conn.Disconnect()
		return
	}
	r.mu.Unlock()

	// Fallback "please wait" clip while nothing else is ready.
	if clip, ok := r.tts.StartupClip(); ok {
		r.setState(guildID, ch.ID, StateAnnouncingStartup)
		if err := r.playAndWait(ctx, conn, clip); err != nil {
			log.Warn("startup clip playback failed", logx.Err(err))
		}
	}

	r.setState(guildID, ch.ID, StateAnnouncingSession)
	r.announce(ctx, conn, log)

	r.setState(guildID, ch.ID, StateAwaitingEnd)
	log.Info("session active, awaiting manual end", logx.Duration("setup", time.Since(start)))
	r.publish(eventbus.SessionStarted, Info{
		GuildID:   guildID,
		ChannelID: ch.ID,
		TookMS:    time.Since(start).Milliseconds(),
	})
}

// announce renders, normalizes and plays the scheduled announcement.
// Every step degrades gracefully: a failed render or normalize skips
// that audio, never the session.
func (r *Runner) announce(ctx context.Context, conn transport.VoiceConn, log logx.Logger) {
	path, err := r.tts.Render(ctx, r.cfg.AnnounceText)
	if err != nil {
		log.Warn("announcement render failed, skipping audio", logx.Err(err))
		return
	}
	defer r.tts.Cleanup(path)

	if r.norm != nil {
		if np, err := r.norm.Normalize(ctx, path); err != nil {
			log.Warn("announcement normalize failed, using raw audio", logx.Err(err))
		} else {
			if np != path {
				defer r.tts.Cleanup(np)
			}
			path = np
		}
	}

	if err := r.playAndWait(ctx, conn, path); err != nil {
		log.Warn("announcement playback failed", logx.Err(err))
	}
}

// connect polls the connection up to the attempt ceiling, waiting for it
// to stabilize.
func (r *Runner) connect(ctx context.Context, guildID, channelID string) (transport.VoiceConn, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.ConnectAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := r.voice.Join(ctx, guildID, channelID)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		r.log.Debug("connect attempt failed",
			logx.String("guild", guildID),
			logx.Int("attempt", attempt),
			logx.Err(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.cfg.ConnectDelay):
		}
	}
	return nil, fmt.Errorf("connection not ready after %d attempts: %w", r.cfg.ConnectAttempts, lastErr)
}

// playAndWait starts playback and waits for the "still playing" signal
// to clear, bounded by the configured cap rather than a fixed sleep.
func (r *Runner) playAndWait(ctx context.Context, conn transport.VoiceConn, path string) error {
	if err := conn.Play(ctx, path); err != nil {
		return err
	}
	deadline := time.Now().Add(r.cfg.PlayWaitMax)
	for conn.Playing() {
		if time.Now().After(deadline) {
			return fmt.Errorf("playback still running after %s", r.cfg.PlayWaitMax)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.PollPlaying):
		}
	}
	return nil
}

// End terminates the guild's active session on the user's explicit
// signal. Reports whether there was one.
func (r *Runner) End(guildID string) bool {
	r.mu.Lock()
	s := r.active[guildID]
	var channelID string
	if s != nil {
		channelID = s.channelID
	}
	r.mu.Unlock()

	if !r.dropActive(guildID) {
		return false
	}
	r.log.Info("session ended", logx.String("guild", guildID))
	r.publish(eventbus.SessionEnded, Info{GuildID: guildID, ChannelID: channelID})
	return true
}

// State reports the guild's current session state.
func (r *Runner) State(guildID string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.active[guildID]; s != nil {
		return s.state
	}
	return StateIdle
}

// Shutdown force-disconnects every active session.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	guilds := make([]string, 0, len(r.active))
	for g := range r.active {
		guilds = append(guilds, g)
	}
	r.mu.Unlock()
	for _, g := range guilds {
		r.dropActive(g)
	}
}

// dropActive force-disconnects and removes the guild's session entry.
// Reports whether one existed. Safe on dead connections.
func (r *Runner) dropActive(guildID string) bool {
	r.mu.Lock()
	s := r.active[guildID]
	delete(r.active, guildID)
	r.mu.Unlock()

	if s == nil {
		return false
	}
	s.state = StateDisconnected
	if s.conn != nil {
		if err := s.conn.Disconnect(); err != nil {
			r.log.Warn("disconnect failed", logx.String("guild", guildID), logx.Err(err))
		}
	}
	return true
}

func (r *Runner) setState(guildID, channelID string, st State) {
	r.mu.Lock()
	s := r.active[guildID]
	if s == nil {
		s = &activeSession{channelID: channelID}
		r.active[guildID] = s
	}
	s.state = st
	r.mu.Unlock()
}

func (r *Runner) fail(guildID, channelID string, start time.Time, err error) {
	r.publish(eventbus.SessionFailed, Info{
		GuildID:   guildID,
		ChannelID: channelID,
		Error:     err.Error(),
		TookMS:    time.Since(start).Milliseconds(),
	})
}

func (r *Runner) publish(typ string, info Info) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: info})
}
