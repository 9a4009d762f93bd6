// Package app assembles and runs the bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"focusbot/internal/audit"
	"focusbot/internal/config"
	"focusbot/internal/eventbus"
	"focusbot/internal/maintenance"
	"focusbot/internal/router"
	"focusbot/internal/runtime/supervisor"
	"focusbot/internal/schedule"
	"focusbot/internal/session"
	"focusbot/internal/storage"
	"focusbot/internal/transport"
	"focusbot/internal/transport/discord"
	"focusbot/internal/tts"
	"focusbot/pkg/logx"
)

const (
	updateBuffer    = 256
	shutdownTimeout = 10 * time.Second
)

// App owns every long-lived component and their startup/shutdown order.
type App struct {
	log  logx.Logger
	logs *logx.Service

	cfgm     *config.Manager
	adapter  *discord.Adapter
	store    storage.Store
	sched    *schedule.Store
	fired    *schedule.FiredSet
	tts      *tts.Renderer
	runner   *session.Runner
	poller   *schedule.Poller
	maint    *maintenance.Jobs
	rt       *router.Router
	recorder *audit.Recorder

	sup     *supervisor.Supervisor
	updates chan transport.Update
	cfgSub  chan *config.Config
}

// New loads configuration and wires the component graph. Nothing is
// started yet; Start owns all goroutines.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(validateConfig)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, err
	}

	boot := logx.NewConsole(cfg.Logging.Level)

	adapter, err := discord.New(discord.Options{
		Token:    cfg.Discord.Token,
		Greeting: greetingText(cfg),
	}, boot)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logxConfig(cfg.Logging), adapter)
	logs.SetDiscordTarget(cfg.Discord.LogChannel)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		log:     log,
		logs:    logs,
		cfgm:    cfgm,
		adapter: adapter,
		updates: make(chan transport.Update, updateBuffer),
	}
	if err := a.wire(cfg); err != nil {
		logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(cfg *config.Config) error {
	log := a.log

	// Storage is optional; a broken store degrades to in-memory only.
	if cfg.Storage != nil {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
		if err != nil {
			return err
		}
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			log.Warn("storage unavailable, continuing without persistence", logx.Err(err))
		} else {
			a.store = st
		}
	}

	firedTTL, err := config.ParseDurationOrDefault("scheduler.fired_ttl", cfg.Scheduler.FiredTTL, 24*time.Hour)
	if err != nil {
		return err
	}
	a.fired = schedule.NewFiredSet(firedTTL)

	schedPath := cfg.Scheduler.ScheduleFile
	if schedPath == "" {
		schedPath = "./schedule.json"
	}
	file := schedule.NewFile(schedPath, log.With(logx.String("comp", "schedfile")))
	a.sched = schedule.NewStore(file, a.fired, log.With(logx.String("comp", "schedule")))

	a.tts = tts.NewRenderer(tts.Config{
		RenderCommand:    cfg.TTS.RenderCommand,
		NormalizeCommand: cfg.TTS.NormalizeCommand,
		CacheDir:         cfg.TTS.CacheDir,
		StartupText:      cfg.TTS.StartupText,
	}, log.With(logx.String("comp", "tts")))
	norm := tts.NewNormalizer(tts.Config{
		NormalizeCommand: cfg.TTS.NormalizeCommand,
		CacheDir:         cfg.TTS.CacheDir,
	}, log.With(logx.String("comp", "tts")))

	bus := eventbus.New()

	sessCfg, err := sessionConfig(cfg)
	if err != nil {
		return err
	}
	a.runner = session.New(sessCfg, a.adapter, a.tts, norm, bus, log.With(logx.String("comp", "session")))

	tick, err := config.ParseDurationOrDefault("scheduler.tick_interval", cfg.Scheduler.TickInterval, 0)
	if err != nil {
		return err
	}
	a.poller = schedule.NewPoller(schedule.PollerConfig{
		Interval: tick,
		Timezone: cfg.Scheduler.Timezone,
	}, a.sched, a.fired, a.store, a.runner.Run, log.With(logx.String("comp", "poller")))

	a.maint = maintenance.New(a.fired, a.poller.Location(), log.With(logx.String("comp", "maintenance")))

	a.rt = router.New(&router.Deps{
		Adapter:  a.adapter,
		Voice:    a.adapter,
		Store:    a.sched,
		Sessions: a.runner,
		Fired:    a.fired,
		Location: a.poller.Location,
		Owners:   cfg.Discord.OwnerUserIDs,
		Log:      log.With(logx.String("comp", "router")),
	})

	if a.store != nil {
		rec := audit.NewRecorder(bus, a.store, log.With(logx.String("comp", "audit")))
		a.recorder = rec
	}
	return nil
}

// Start brings the components up in dependency order and reports
// readiness to systemd.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	a.sched.Load()
	a.tts.EnsureStartup(ctx)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("router", func(ctx context.Context) error {
		return a.rt.Consume(ctx, a.updates)
	})
	if a.recorder != nil {
		a.sup.Go("audit", a.recorder.Run)
	}

	a.poller.Start(a.sup.Context())
	if err := a.maint.Start(); err != nil {
		return err
	}

	a.cfgSub = a.cfgm.Subscribe(4)
	a.sup.GoRestart("config-watch", a.cfgm.Watch)
	a.sup.Go0("config-apply", a.applyLoop)

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	}
	a.log.Info("bot started")
	return nil
}

// applyLoop pushes hot-reloaded config into the components that accept
// runtime changes. Everything else needs a restart.
func (a *App) applyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgSub:
			if !ok {
				return
			}
			a.logs.Apply(logxConfig(cfg.Logging))
			a.logs.SetDiscordTarget(cfg.Discord.LogChannel)
			if tick, err := config.ParseDurationOrDefault("scheduler.tick_interval", cfg.Scheduler.TickInterval, 0); err == nil {
				a.poller.SetInterval(tick)
			}
			a.log.Info("config applied")
		}
	}
}

// Stop tears everything down in reverse order of Start.
func (a *App) Stop() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.maint.Stop(ctx)
	a.poller.Stop()
	a.runner.Shutdown()
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop failed", logx.Err(err))
	}

	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil {
			a.log.Warn("supervisor stop incomplete", logx.Err(err))
		}
	}
	a.cfgm.Unsubscribe(a.cfgSub)

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("bot stopped")
	a.logs.Close()
}

func validateConfig(_ context.Context, cfg *config.Config) error {
	if strings.TrimSpace(cfg.Discord.Token) == "" {
		return errors.New("discord.token is required")
	}
	if _, err := config.ParseDurationOrDefault("scheduler.tick_interval", cfg.Scheduler.TickInterval, 0); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("scheduler.fired_ttl", cfg.Scheduler.FiredTTL, 0); err != nil {
		return err
	}
	return nil
}

func greetingText(cfg *config.Config) string {
	if !cfg.Discord.Greeting {
		return ""
	}
	return "👋 I'm your focus session bot.\n" + router.HelpText()
}

func logxConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
		Discord: logx.DiscordConfig{
			Enabled:    c.Discord.Enabled,
			MinLevel:   c.Discord.MinLevel,
			RatePerSec: c.Discord.RatePerSec,
		},
	}
}

func sessionConfig(cfg *config.Config) (session.Config, error) {
	delay, err := config.ParseDurationOrDefault("session.connect_delay", cfg.Session.ConnectDelay, 0)
	if err != nil {
		return session.Config{}, err
	}
	waitMax, err := config.ParseDurationOrDefault("session.play_wait_max", cfg.Session.PlayWaitMax, 0)
	if err != nil {
		return session.Config{}, err
	}
	poll, err := config.ParseDurationOrDefault("session.poll_playing", cfg.Session.PollPlaying, 0)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		ConnectAttempts: cfg.Session.ConnectAttempts,
		ConnectDelay:    delay,
		PlayWaitMax:     waitMax,
		PollPlaying:     poll,
		AnnounceText:    cfg.TTS.AnnounceText,
	}, nil
}
