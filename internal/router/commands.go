package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"focusbot/internal/schedule"
	"focusbot/internal/session"
	"focusbot/internal/transport"
)

// ScheduleStore is the slice of the schedule store commands need.
type ScheduleStore interface {
	Add(guildID string, slot schedule.Slot, channelID string)
	Days(guildID string) []schedule.DayEntries
	Clear(guildID string)
}

// SessionEnder is the slice of the session runner commands need.
type SessionEnder interface {
	End(guildID string) bool
	State(guildID string) session.State
}

func builtinCommands() []Command {
	return []Command{
		{
			Name:        "schedule",
			Description: "schedule a recurring weekly session",
			Usage:       "!schedule [day] <time> [voice channel]",
			Handle:      handleSchedule,
		},
		{
			Name:        "show_schedule",
			Description: "show this server's schedule",
			Usage:       "!show_schedule",
			Handle:      handleShowSchedule,
		},
		{
			Name:        "clear_schedule",
			Description: "remove all scheduled sessions",
			Usage:       "!clear_schedule",
			Handle:      handleClearSchedule,
		},
		{
			Name:        "end",
			Description: "end the current session",
			Usage:       "!end",
			Handle:      handleEnd,
		},
		{
			Name:        "help",
			Description: "show this help",
			Usage:       "!help",
			Handle:      handleHelp,
		},
		{
			Name:   "debug",
			Usage:  "!debug",
			Access: AccessOwnerOnly,
			Handle: handleDebug,
		},
	}
}

// handleSchedule parses "[day] <time> [channel name...]". The first
// token is a day when it starts with a letter, a time otherwise. With
// no channel argument the caller's current voice channel is used.
func handleSchedule(ctx context.Context, req *Request) error {
	args := req.Args
	if len(args) == 0 {
		return req.Reply(ctx, "Usage: `!schedule [day] <time> [voice channel]`, e.g. `!schedule Mon 8:30am Focus Room`.")
	}

	dayTok := ""
	if startsWithLetter(args[0]) {
		dayTok = args[0]
		args = args[1:]
		if len(args) == 0 {
			return req.Reply(ctx, "Missing time. Usage: `!schedule [day] <time> [voice channel]`.")
		}
	}
	timeTok := args[0]
	channelArg := strings.TrimSpace(strings.Join(args[1:], " "))

	now := req.deps.Now().In(req.deps.Location())
	slot, err := schedule.ParseSlot(dayTok, timeTok, now)
	if err != nil {
		return req.Reply(ctx, "❌ "+err.Error())
	}

	var ch transport.VoiceChannel
	if channelArg != "" {
		ch, err = req.deps.Voice.ResolveChannel(req.Msg.GuildID, channelArg)
		if err != nil {
			if errors.Is(err, transport.ErrChannelNotFound) {
				return req.Reply(ctx, fmt.Sprintf("❌ I couldn't find a voice channel called %q.", channelArg))
			}
			return err
		}
	} else {
		var ok bool
		ch, ok = req.deps.Voice.UserChannel(req.Msg.GuildID, req.Msg.AuthorID)
		if !ok {
			return req.Reply(ctx, "❌ Name a voice channel, or join one so I know where to hold the session.")
		}
	}

	req.deps.Store.Add(req.Msg.GuildID, slot, ch.ID)
	return req.Reply(ctx, fmt.Sprintf("✅ Scheduled for %s at %02d:%02d in %s.",
		slot.Day, slot.Hour, slot.Minute, ch.Name))
}

func handleShowSchedule(ctx context.Context, req *Request) error {
	days := req.deps.Store.Days(req.Msg.GuildID)
	if len(days) == 0 {
		return req.Reply(ctx, "📭 Nothing scheduled yet. Add one with `!schedule`.")
	}

	var b strings.Builder
	b.WriteString("🗓️ **Scheduled sessions**\n")
	for _, d := range days {
		for _, e := range d.Entries {
			name := req.deps.channelName(req.Msg.GuildID, e.ChannelID)
			fmt.Fprintf(&b, "%s %02d:%02d in %s\n", schedule.DayAbbr(d.Day), e.Hour, e.Minute, name)
		}
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func handleClearSchedule(ctx context.Context, req *Request) error {
	req.deps.Store.Clear(req.Msg.GuildID)
	return req.Reply(ctx, "🧹 Cleared all scheduled sessions.")
}

func handleEnd(ctx context.Context, req *Request) error {
	if !req.deps.Sessions.End(req.Msg.GuildID) {
		return req.Reply(ctx, "There's no session running right now.")
	}
	return req.Reply(ctx, "👋 Session ended. Nice work today!")
}

func handleHelp(ctx context.Context, req *Request) error {
	return req.Reply(ctx, HelpText())
}

func handleDebug(ctx context.Context, req *Request) error {
	d := req.deps
	now := d.Now().In(d.Location())
	entries := 0
	for _, day := range d.Store.Days(req.Msg.GuildID) {
		entries += len(day.Entries)
	}
	fired := 0
	if d.Fired != nil {
		fired = d.Fired.Len()
	}
	return req.Reply(ctx, fmt.Sprintf(
		"```\nnow:      %s\ntz:       %s\nentries:  %d\nfired:    %d\nsession:  %s\n```",
		now.Format(time.RFC3339), d.Location().String(), entries, fired,
		d.Sessions.State(req.Msg.GuildID)))
}

// channelName renders a channel id for display, preferring its current
// name when the channel still resolves.
func (d *Deps) channelName(guildID, channelID string) string {
	if d.Voice != nil {
		if ch, err := d.Voice.ResolveChannel(guildID, channelID); err == nil && ch.Name != "" {
			return ch.Name
		}
	}
	return "#" + channelID
}

func startsWithLetter(s string) bool {
	for _, r := range s {
		return unicode.IsLetter(r)
	}
	return false
}
