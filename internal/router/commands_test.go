package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"focusbot/internal/schedule"
	"focusbot/internal/session"
	"focusbot/internal/transport"
	"focusbot/pkg/logx"
)

type fakeChat struct {
	mu      sync.Mutex
	replies []string
}

func (f *fakeChat) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeChat) Stop(ctx context.Context) error                               { return nil }

func (f *fakeChat) SendText(_ context.Context, _ transport.ChatTarget, text string, _ *transport.SendOptions) error {
	f.mu.Lock()
	f.replies = append(f.replies, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeChat) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

type fakeVoice struct {
	channels map[string]transport.VoiceChannel
	user     transport.VoiceChannel
	hasUser  bool
}

func (v *fakeVoice) ResolveChannel(guildID, idOrName string) (transport.VoiceChannel, error) {
	if ch, ok := v.channels[strings.ToLower(idOrName)]; ok {
		return ch, nil
	}
	return transport.VoiceChannel{}, transport.ErrChannelNotFound
}

func (v *fakeVoice) UserChannel(guildID, userID string) (transport.VoiceChannel, bool) {
	return v.user, v.hasUser
}

func (v *fakeVoice) Join(ctx context.Context, guildID, channelID string) (transport.VoiceConn, error) {
	return nil, transport.ErrChannelNotFound
}

type fakeSessions struct {
	ended bool
	had   bool
	state session.State
}

func (s *fakeSessions) End(guildID string) bool {
	s.ended = true
	return s.had
}

func (s *fakeSessions) State(guildID string) session.State { return s.state }

func fixedNow() time.Time {
	// Tuesday morning.
	return time.Date(2024, 6, 18, 9, 0, 0, 0, time.UTC)
}

func newTestRouter(chat *fakeChat, voice *fakeVoice, sess *fakeSessions) (*Router, *schedule.Store) {
	store := schedule.NewStore(nil, nil, logx.Nop())
	r := New(&Deps{
		Adapter:  chat,
		Voice:    voice,
		Store:    store,
		Sessions: sess,
		Location: func() *time.Location { return time.UTC },
		Owners:   []string{"owner-1"},
		Log:      logx.Nop(),
		Now:      fixedNow,
	})
	return r, store
}

func msg(text string) transport.Message {
	return transport.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "text-1",
		AuthorID:  "u1",
		Text:      text,
	}
}

func TestDispatchIgnoresNonCommands(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	r, _ := newTestRouter(chat, &fakeVoice{}, &fakeSessions{})

	r.Dispatch(context.Background(), msg("hello everyone"))
	r.Dispatch(context.Background(), msg("!unknown_command"))
	r.Dispatch(context.Background(), msg("!"))

	if len(chat.replies) != 0 {
		t.Fatalf("replies = %v, want none", chat.replies)
	}
}

func TestScheduleWithNamedChannel(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	voice := &fakeVoice{channels: map[string]transport.VoiceChannel{
		"focus room": {ID: "c1", GuildID: "g1", Name: "Focus Room"},
	}}
	r, store := newTestRouter(chat, voice, &fakeSessions{})

	r.Dispatch(context.Background(), msg("!schedule Mon 8:30am Focus Room"))

	if !strings.Contains(chat.last(), "Scheduled for Monday at 08:30") {
		t.Fatalf("reply = %q", chat.last())
	}
	days := store.Days("g1")
	if len(days) != 1 || days[0].Day != time.Monday {
		t.Fatalf("stored days = %+v", days)
	}
	if days[0].Entries[0].ChannelID != "c1" {
		t.Fatalf("entry = %+v", days[0].Entries[0])
	}
}

func TestScheduleFallsBackToCallerChannel(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	voice := &fakeVoice{
		user:    transport.VoiceChannel{ID: "c7", GuildID: "g1", Name: "My Room"},
		hasUser: true,
	}
	r, store := newTestRouter(chat, voice, &fakeSessions{})

	r.Dispatch(context.Background(), msg("!schedule 14:30"))

	if !strings.Contains(chat.last(), "My Room") {
		t.Fatalf("reply = %q", chat.last())
	}
	days := store.Days("g1")
	if days[0].Day != time.Tuesday || days[0].Entries[0].ChannelID != "c7" {
		t.Fatalf("stored = %+v", days)
	}
}

func TestScheduleNoChannelAnywhere(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	r, store := newTestRouter(chat, &fakeVoice{}, &fakeSessions{})

	r.Dispatch(context.Background(), msg("!schedule 14:30"))

	if !strings.Contains(chat.last(), "join one") {
		t.Fatalf("reply = %q", chat.last())
	}
	if store.Days("g1") != nil {
		t.Fatal("entry stored despite missing channel")
	}
}

func TestScheduleBadTokens(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "no args", text: "!schedule", want: "Usage"},
		{name: "day without time", text: "!schedule Mon", want: "Missing time"},
		{name: "bad day", text: "!schedule Xyz 8:30", want: "bad day"},
		{name: "bad time", text: "!schedule Mon eight", want: "bad time"},
		{name: "unknown channel", text: "!schedule Mon 8:30 No Such Room", want: "couldn't find"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChat{}
			r, _ := newTestRouter(chat, &fakeVoice{}, &fakeSessions{})
			r.Dispatch(context.Background(), msg(tt.text))
			if !strings.Contains(chat.last(), tt.want) {
				t.Fatalf("reply = %q, want substring %q", chat.last(), tt.want)
			}
		})
	}
}

func TestShowAndClearSchedule(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	voice := &fakeVoice{channels: map[string]transport.VoiceChannel{
		"focus room": {ID: "c1", GuildID: "g1", Name: "Focus Room"},
	}}
	r, store := newTestRouter(chat, voice, &fakeSessions{})

	r.Dispatch(context.Background(), msg("!show_schedule"))
	if !strings.Contains(chat.last(), "Nothing scheduled") {
		t.Fatalf("reply = %q", chat.last())
	}

	store.Add("g1", schedule.Slot{Day: time.Wednesday, Hour: 18, Minute: 0}, "c1")
	r.Dispatch(context.Background(), msg("!show_schedule"))
	if !strings.Contains(chat.last(), "Wed 18:00") {
		t.Fatalf("reply = %q", chat.last())
	}

	r.Dispatch(context.Background(), msg("!clear_schedule"))
	if !strings.Contains(chat.last(), "Cleared") {
		t.Fatalf("reply = %q", chat.last())
	}
	if store.Days("g1") != nil {
		t.Fatal("schedule not cleared")
	}
}

func TestEndCommand(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	sess := &fakeSessions{had: true}
	r, _ := newTestRouter(chat, &fakeVoice{}, sess)

	r.Dispatch(context.Background(), msg("!end"))
	if !sess.ended {
		t.Fatal("End not called")
	}
	if !strings.Contains(chat.last(), "Session ended") {
		t.Fatalf("reply = %q", chat.last())
	}

	sess.had = false
	r.Dispatch(context.Background(), msg("!end"))
	if !strings.Contains(chat.last(), "no session") {
		t.Fatalf("reply = %q", chat.last())
	}
}

func TestHelpListsCommands(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	r, _ := newTestRouter(chat, &fakeVoice{}, &fakeSessions{})

	r.Dispatch(context.Background(), msg("!help"))
	for _, want := range []string{"!schedule", "!show_schedule", "!clear_schedule", "!end"} {
		if !strings.Contains(chat.last(), want) {
			t.Fatalf("help reply missing %q: %q", want, chat.last())
		}
	}
	if strings.Contains(chat.last(), "!debug") {
		t.Fatal("owner-only command listed in help")
	}
}

func TestDebugIsOwnerOnly(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	r, _ := newTestRouter(chat, &fakeVoice{}, &fakeSessions{state: session.StateIdle})

	r.Dispatch(context.Background(), msg("!debug"))
	if len(chat.replies) != 0 {
		t.Fatalf("non-owner got a reply: %v", chat.replies)
	}

	m := msg("!debug")
	m.AuthorID = "owner-1"
	r.Dispatch(context.Background(), m)
	if !strings.Contains(chat.last(), "session:") {
		t.Fatalf("debug reply = %q", chat.last())
	}
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	t.Parallel()
	chat := &fakeChat{}
	// Nil sessions makes !end panic inside the handler.
	r, _ := newTestRouter(chat, &fakeVoice{}, nil)

	r.Dispatch(context.Background(), msg("!end"))
	if !strings.Contains(chat.last(), "went wrong") {
		t.Fatalf("reply = %q", chat.last())
	}
}
