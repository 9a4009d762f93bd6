// Package audit persists session lifecycle events so outages and
// missed sessions can be diagnosed after the fact.
package audit

import (
	"context"
	"strings"
	"time"

	"focusbot/internal/eventbus"
	"focusbot/internal/session"
	"focusbot/internal/storage"
	"focusbot/pkg/logx"
)

const (
	subscribeBuffer = 64
	appendTimeout   = 2 * time.Second
)

// Recorder subscribes to session events and appends one record per
// event to the store. Storage failures are logged and dropped; auditing
// never feeds back into session behavior.
type Recorder struct {
	bus   eventbus.Bus
	store storage.Store
	log   logx.Logger
}

func NewRecorder(bus eventbus.Bus, store storage.Store, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{bus: bus, store: store, log: log}
}

// Run consumes events until ctx is canceled. Intended to be supervised.
func (r *Recorder) Run(ctx context.Context) error {
	ch, unsub := r.bus.Subscribe(subscribeBuffer)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			r.record(ctx, ev)
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev eventbus.Event) {
	if !strings.HasPrefix(ev.Type, "session.") {
		return
	}
	info, ok := ev.Data.(session.Info)
	if !ok {
		return
	}
	rec := storage.SessionRecord{
		At:        ev.Time,
		GuildID:   info.GuildID,
		ChannelID: info.ChannelID,
		Outcome:   strings.TrimPrefix(ev.Type, "session."),
		Error:     info.Error,
		TookMS:    info.TookMS,
	}

	cctx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()
	if err := r.store.AppendSession(cctx, rec); err != nil {
		r.log.Debug("session record append failed", logx.Err(err))
	}
}
