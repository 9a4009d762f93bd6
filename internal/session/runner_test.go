package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"focusbot/internal/eventbus"
	"focusbot/internal/transport"
	"focusbot/pkg/logx"
)

type fakeConn struct {
	mu          sync.Mutex
	played      []string
	disconnects int
	playErr     error
}

func (c *fakeConn) Play(_ context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playErr != nil {
		return c.playErr
	}
	c.played = append(c.played, path)
	return nil
}

func (c *fakeConn) Playing() bool { return false }

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) playedPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.played...)
}

type fakeVoice struct {
	mu          sync.Mutex
	channels    map[string]transport.VoiceChannel
	joinErr     error
	failJoins   int // fail this many Join calls before succeeding
	joinCalls   int
	conns       []*fakeConn
	resolveErrs map[string]error
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{
		channels: map[string]transport.VoiceChannel{
			"c1": {ID: "c1", GuildID: "g1", Name: "Focus Room"},
		},
	}
}

func (v *fakeVoice) ResolveChannel(guildID, idOrName string) (transport.VoiceChannel, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.resolveErrs[idOrName]; err != nil {
		return transport.VoiceChannel{}, err
	}
	if ch, ok := v.channels[idOrName]; ok {
		return ch, nil
	}
	return transport.VoiceChannel{}, transport.ErrChannelNotFound
}

func (v *fakeVoice) UserChannel(guildID, userID string) (transport.VoiceChannel, bool) {
	return transport.VoiceChannel{}, false
}

func (v *fakeVoice) Join(_ context.Context, guildID, channelID string) (transport.VoiceConn, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.joinCalls++
	if v.joinErr != nil && v.joinCalls <= v.failJoins {
		return nil, v.joinErr
	}
	if v.joinErr != nil && v.failJoins == 0 {
		return nil, v.joinErr
	}
	c := &fakeConn{}
	v.conns = append(v.conns, c)
	return c, nil
}

func (v *fakeVoice) lastConn() *fakeConn {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.conns) == 0 {
		return nil
	}
	return v.conns[len(v.conns)-1]
}

type fakeTTS struct {
	renderErr error
	clip      string
	cleaned   []string
	mu        sync.Mutex
}

func (f *fakeTTS) Render(_ context.Context, text string) (string, error) {
	if f.renderErr != nil {
		return "", f.renderErr
	}
	return "/tmp/announce.dca", nil
}

func (f *fakeTTS) StartupClip() (string, bool) {
	return f.clip, f.clip != ""
}

func (f *fakeTTS) Cleanup(path string) {
	f.mu.Lock()
	f.cleaned = append(f.cleaned, path)
	f.mu.Unlock()
}

type passNorm struct{}

func (passNorm) Normalize(_ context.Context, path string) (string, error) { return path, nil }

func testConfig() Config {
	return Config{
		ConnectAttempts: 3,
		ConnectDelay:    time.Millisecond,
		PlayWaitMax:     50 * time.Millisecond,
		PollPlaying:     time.Millisecond,
	}
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()
	voice := newFakeVoice()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	r := New(testConfig(), voice, &fakeTTS{clip: "/tmp/startup.dca"}, passNorm{}, bus, logx.Nop())
	r.Run(context.Background(), "g1", "c1")

	if got := r.State("g1"); got != StateAwaitingEnd {
		t.Fatalf("State = %v, want %v", got, StateAwaitingEnd)
	}
	conn := voice.lastConn()
	if conn == nil {
		t.Fatal("no connection opened")
	}
	played := conn.playedPaths()
	if len(played) != 2 || played[0] != "/tmp/startup.dca" || played[1] != "/tmp/announce.dca" {
		t.Fatalf("played = %v", played)
	}

	ev := <-events
	if ev.Type != eventbus.SessionStarted {
		t.Fatalf("event = %s, want %s", ev.Type, eventbus.SessionStarted)
	}
	info, ok := ev.Data.(Info)
	if !ok || info.GuildID != "g1" || info.ChannelID != "c1" {
		t.Fatalf("event data = %+v", ev.Data)
	}
}

func TestRunChannelNotFound(t *testing.T) {
	t.Parallel()
	voice := newFakeVoice()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	r := New(testConfig(), voice, &fakeTTS{}, passNorm{}, bus, logx.Nop())
	r.Run(context.Background(), "g1", "deleted-channel")

	if got := r.State("g1"); got != StateIdle {
		t.Fatalf("State = %v, want %v", got, StateIdle)
	}
	ev := <-events
	if ev.Type != eventbus.SessionFailed {
		t.Fatalf("event = %s, want %s", ev.Type, eventbus.SessionFailed)
	}
}

func TestRunBoundedConnectRetries(t *testing.T) {
	t.Parallel()
	voice := newFakeVoice()
	voice.joinErr = errors.New("not ready")
	r := New(testConfig(), voice, &fakeTTS{}, passNorm{}, nil, logx.Nop())

	r.Run(context.Background(), "g1", "c1")

	if voice.joinCalls != 3 {
		t.Fatalf("joinCalls = %d, want 3", voice.joinCalls)
	}
	// No dangling half-open session once the attempts are exhausted.
	if got := r.State("g1"); got != StateIdle {
		t.Fatalf("State = %v, want %v", got, StateIdle)
	}
}

func TestRunConnectSucceedsAfterRetries(t *testing.T) {
	t.Parallel()
	voice := newFakeVoice()
	voice.joinErr = errors.New("not ready")
	voice.failJoins = 2
	r := New(testConfig(), voice, &fakeTTS{}, passNorm{}, nil, logx.Nop())

	r.Run(context.Background(), "g1", "c1")

	if voice.joinCalls != 3 {
		t.Fatalf("joinCalls = %d, want 3", voice.joinCalls)
	}
	if got := r.State("g1"); got != StateAwaitingEnd {
		t.Fatalf("State = %v, want %v", got, StateAwaitingEnd)
	}
}

func TestRunRenderFailureDegrades(t *testing.T) {
	t.Parallel()
	voice := newFakeVoice()
	r := New(testConfig(), voice, &fakeTTS{renderErr: errors.New("tts down")}, passNorm{}, nil, logx.Nop())

	r.Run(context.Background(), "g1", "c1")

	// Session still reaches the active state with no audio played.
	if got := r.State("g1"); got != StateAwaitingEnd {
		t.Fatalf("State = %v, want %v", got, StateAwaitingEnd)
	}
	if played := voice.lastConn().playedPaths(); len(played) != 0 {
		t.Fatalf("played = %v, want none", played)
	}
}

func TestRunLastTriggerWins(t *testing.T) {
	t.Parallel()
	voice := newFakeVoice()
	voice.channels["c2"] = transport.VoiceChannel{ID: "c2", GuildID: "g1", Name: "Other Room"}
	r := New(testConfig(), voice, &fakeTTS{}, passNorm{}, nil, logx.Nop())

	r.Run(context.Background(), "g1", "c1")
	first := voice.lastConn()
	r.Run(context.Background(), "g1", "c2")

	if first.disconnects != 1 {
		t.Fatalf("first connection disconnects = %d, want 1", first.disconnects)
	}
	if got := r.State("g1"); got != StateAwaitingEnd {
		t.Fatalf("State = %v, want %v", got, StateAwaitingEnd)
	}
	if len(voice.conns) != 2 {
		t.Fatalf("conns = %d, want 2", len(voice.conns))
	}
}

func TestEnd(t *testing.T) {
	t.Parallel()
	voice := newFakeVoice()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	r := New(testConfig(), voice, &fakeTTS{}, passNorm{}, bus, logx.Nop())
	r.Run(context.Background(), "g1", "c1")
	<-events // started

	if !r.End("g1") {
		t.Fatal("End reported no session")
	}
	if voice.lastConn().disconnects != 1 {
		t.Fatal("End did not disconnect")
	}
	if got := r.State("g1"); got != StateIdle {
		t.Fatalf("State = %v, want %v", got, StateIdle)
	}
	ev := <-events
	if ev.Type != eventbus.SessionEnded {
		t.Fatalf("event = %s, want %s", ev.Type, eventbus.SessionEnded)
	}

	// Ending again is a polite no-op.
	if r.End("g1") {
		t.Fatal("second End reported a session")
	}
}

func TestShutdownDropsAllSessions(t *testing.T) {
	t.Parallel()
	voice := newFakeVoice()
	voice.channels["c2"] = transport.VoiceChannel{ID: "c2", GuildID: "g2", Name: "Room Two"}
	r := New(testConfig(), voice, &fakeTTS{}, passNorm{}, nil, logx.Nop())

	r.Run(context.Background(), "g1", "c1")
	r.Run(context.Background(), "g2", "c2")
	r.Shutdown()

	if r.State("g1") != StateIdle || r.State("g2") != StateIdle {
		t.Fatal("sessions survived shutdown")
	}
	for _, c := range voice.conns {
		if c.disconnects != 1 {
			t.Fatalf("disconnects = %d, want 1", c.disconnects)
		}
	}
}
