// Package maintenance runs the low-frequency housekeeping jobs that keep
// long-lived in-memory state bounded.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"focusbot/internal/schedule"
	"focusbot/pkg/logx"
)

// Jobs owns the cron scheduler. Today that is a single daily prune of
// the fired-slot set; the set is also pruned opportunistically on poll
// ticks, so this is the backstop for quiet deployments where ticks see
// no due slots for days.
type Jobs struct {
	log   logx.Logger
	fired *schedule.FiredSet

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func New(fired *schedule.FiredSet, loc *time.Location, log logx.Logger) *Jobs {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Jobs{
		log:   log,
		fired: fired,
		cron:  cron.New(cron.WithLocation(loc)),
	}
}

// Start registers the jobs and launches the cron loop. Idempotent.
func (j *Jobs) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}

	_, err := j.cron.AddFunc("@midnight", func() {
		n := j.fired.Prune(time.Now())
		j.log.Info("daily maintenance",
			logx.Int("fired_pruned", n), logx.Int("fired_kept", j.fired.Len()))
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.running = true
	j.log.Debug("maintenance jobs started")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish, up to
// ctx's deadline.
func (j *Jobs) Stop(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		return
	}
	j.running = false

	done := j.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		j.log.Warn("maintenance stop timed out")
	}
}
