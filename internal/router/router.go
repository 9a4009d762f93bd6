// Package router turns inbound chat messages into command invocations.
package router

import (
	"context"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"focusbot/internal/schedule"
	"focusbot/internal/transport"
	"focusbot/pkg/logx"
)

const prefix = "!"

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Description string
	Usage       string
	Access      Access
	Handle      HandlerFunc
}

// Request carries one parsed command invocation into a handler.
type Request struct {
	Msg  transport.Message
	Args []string

	deps *Deps
}

// Reply sends text back to the channel the command came from, threaded
// to the triggering message.
func (r *Request) Reply(ctx context.Context, text string) error {
	return r.deps.Adapter.SendText(ctx, transport.ChatTarget{ChannelID: r.Msg.ChannelID}, text,
		&transport.SendOptions{Reference: r.Msg.ID})
}

// Deps are the collaborators handlers reach through.
type Deps struct {
	Adapter  transport.Adapter
	Voice    transport.VoiceAdapter
	Store    ScheduleStore
	Sessions SessionEnder
	Fired    *schedule.FiredSet
	Location func() *time.Location
	Owners   []string
	Log      logx.Logger

	// Now is the wall clock; tests substitute a fixed time.
	Now func() time.Time
}

// Router dispatches prefixed messages to registered commands, one
// invocation per inbound message, serialized on the consume loop.
type Router struct {
	deps *Deps
	cmds map[string]Command
	log  logx.Logger
}

func New(deps *Deps) *Router {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = func() *time.Location { return time.Local }
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{deps: deps, cmds: map[string]Command{}, log: log}
	for _, c := range builtinCommands() {
		r.cmds[c.Name] = c
	}
	return r
}

// Consume reads updates until ctx is canceled or the channel closes.
func (r *Router) Consume(ctx context.Context, updates <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind == transport.UpdateMessage && up.Message != nil {
				r.Dispatch(ctx, *up.Message)
			}
		}
	}
}

// Dispatch handles one message. Non-command text is ignored. Handler
// panics are contained so one bad command cannot take down the consume
// loop.
func (r *Router) Dispatch(ctx context.Context, msg transport.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, prefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	cmd, ok := r.cmds[name]
	if !ok {
		return
	}
	if cmd.Access == AccessOwnerOnly && !r.isOwner(msg.AuthorID) {
		r.log.Debug("owner-only command denied",
			logx.String("cmd", name), logx.String("user", msg.AuthorID))
		return
	}

	req := &Request{Msg: msg, Args: fields[1:], deps: r.deps}
	log := r.log.With(logx.String("cmd", name), logx.String("guild", msg.GuildID))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic in command handler",
				logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
			_ = req.Reply(ctx, "⚠️ Something went wrong handling that command.")
		}
	}()

	start := time.Now()
	if err := cmd.Handle(ctx, req); err != nil {
		log.Warn("command failed", logx.Err(err))
		return
	}
	log.Debug("command handled", logx.Duration("took", time.Since(start)))
}

func (r *Router) isOwner(userID string) bool {
	for _, id := range r.deps.Owners {
		if id == userID {
			return true
		}
	}
	return false
}

// HelpText lists all commands a regular user can run.
func HelpText() string {
	var names []string
	byName := map[string]Command{}
	for _, c := range builtinCommands() {
		if c.Access != AccessEveryone {
			continue
		}
		names = append(names, c.Name)
		byName[c.Name] = c
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("**Commands**\n")
	for _, n := range names {
		c := byName[n]
		b.WriteString("`")
		b.WriteString(c.Usage)
		b.WriteString("`: ")
		b.WriteString(c.Description)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
