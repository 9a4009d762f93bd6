package schedule

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"focusbot/internal/storage"
	"focusbot/pkg/logx"
)

// RunFunc starts one session for a due slot. It is called synchronously
// from the poll tick and must not panic across the boundary; the poller
// still guards each guild iteration with a recover.
type RunFunc func(ctx context.Context, guildID, channelID string)

// PollerConfig controls the scheduler loop.
type PollerConfig struct {
	// Interval between ticks; clamped to (0, 1m] so a slot minute can
	// never fall between two ticks.
	Interval time.Duration
	// Timezone is the fixed IANA zone schedules are interpreted in.
	Timezone string
}

const (
	defaultInterval = 5 * time.Second
	maxInterval     = time.Minute
)

// Poller compares wall clock against the schedule store on a fixed tick
// and hands due slots to the session runner exactly once per
// (guild, minute).
type Poller struct {
	log   logx.Logger
	loc   *time.Location
	store *Store
	fired *FiredSet
	// mirror is the optional durable fired-slot mirror; nil disables it.
	mirror storage.Store
	run    RunFunc

	interval atomic.Int64 // nanoseconds
	resetCh  chan struct{}

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	loopDone chan struct{}

	tickBusy atomic.Bool
}

func NewPoller(cfg PollerConfig, store *Store, fired *FiredSet, mirror storage.Store, run RunFunc, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Poller{
		log:     log,
		loc:     loadLocation(cfg.Timezone, log),
		store:   store,
		fired:   fired,
		mirror:  mirror,
		run:     run,
		resetCh: make(chan struct{}, 1),
	}
	p.interval.Store(int64(clampInterval(cfg.Interval)))
	return p
}

func clampInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultInterval
	}
	if d > maxInterval {
		return maxInterval
	}
	return d
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Location is the fixed zone schedules are interpreted in.
func (p *Poller) Location() *time.Location { return p.loc }

// SetInterval applies a new tick interval at runtime (config reload).
func (p *Poller) SetInterval(d time.Duration) {
	p.interval.Store(int64(clampInterval(d)))
	select {
	case p.resetCh <- struct{}{}:
	default:
	}
}

// Start launches the poll loop. Starting an already-running poller is a
// no-op, not an error.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.loopDone = make(chan struct{})
	go p.loop(ctx, p.stopCh, p.loopDone)
	p.log.Info("poller started",
		logx.Duration("interval", time.Duration(p.interval.Load())),
		logx.String("tz", p.loc.String()))
}

// Stop halts the loop and waits for any in-flight tick to finish, so no
// tick is torn mid-way.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	done := p.loopDone
	p.mu.Unlock()

	<-done
	p.log.Info("poller stopped")
}

func (p *Poller) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Duration(p.interval.Load()))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-p.resetCh:
			ticker.Reset(time.Duration(p.interval.Load()))
		case <-ticker.C:
			p.tick(ctx, time.Now().In(p.loc))
		}
	}
}

// tick runs one poll pass. Ticks never overlap: when a prior tick is
// still busy (a slow session), the current one is skipped rather than
// queued, preventing backlog.
func (p *Poller) tick(ctx context.Context, now time.Time) {
	if !p.tickBusy.CompareAndSwap(false, true) {
		p.log.Debug("tick skipped, previous tick still running")
		return
	}
	defer p.tickBusy.Store(false)

	// Opportunistic eviction keeps the fired set bounded.
	if n := p.fired.Prune(now); n > 0 {
		p.log.Debug("fired slots pruned", logx.Int("count", n))
	}

	for _, guildID := range p.store.GuildIDs() {
		p.checkGuild(ctx, guildID, now)
	}
}

// checkGuild scans one guild for a due slot. A panic or failure here
// never halts polling for the other guilds.
func (p *Poller) checkGuild(ctx context.Context, guildID string, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic while polling guild",
				logx.String("guild", guildID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	if p.fired.Fired(guildID, now) {
		return
	}
	if p.mirrorFired(ctx, guildID, now) {
		// Fired before a restart within this same minute.
		p.fired.Mark(guildID, now)
		return
	}

	for _, e := range p.store.dayEntries(guildID, now.Weekday()) {
		if e.Hour != now.Hour() || e.Minute != now.Minute() {
			continue
		}
		// One session per guild per minute: mark before running so
		// additional matching entries this minute are skipped.
		p.fired.Mark(guildID, now)
		p.mirrorMark(ctx, guildID, now)
		p.log.Info("slot due",
			logx.String("guild", guildID),
			logx.String("channel", e.ChannelID),
			logx.String("slot", Slot{Day: now.Weekday(), Hour: e.Hour, Minute: e.Minute}.String()))
		p.run(ctx, guildID, e.ChannelID)
		return
	}
}

func (p *Poller) mirrorFired(ctx context.Context, guildID string, now time.Time) bool {
	if p.mirror == nil {
		return false
	}
	mctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	until, ok, err := p.mirror.GetFired(mctx, FiredKey(guildID, now))
	if err != nil {
		p.log.Debug("fired mirror read failed", logx.Err(err))
		return false
	}
	return ok && until.After(now)
}

func (p *Poller) mirrorMark(ctx context.Context, guildID string, now time.Time) {
	if p.mirror == nil {
		return
	}
	mctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	endOfMinute := now.Truncate(time.Minute).Add(time.Minute)
	if err := p.mirror.PutFired(mctx, FiredKey(guildID, now), endOfMinute); err != nil {
		p.log.Debug("fired mirror write failed", logx.Err(err))
	}
}
