package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/fastconfig/internal/logging"
)

// DefaultGrace keeps expired token rows around for a day before removal.
const DefaultGrace = 24 * time.Hour

// TokenPurger deletes pull-token rows that expired before a cutoff.
// Satisfied by store.Store.
type TokenPurger interface {
	DeleteExpiredPullTokens(ctx context.Context, before time.Time) (int64, error)
}

// PurgeObserver records how many rows each sweep removed.
type PurgeObserver interface {
	AddTokensPurged(n int64)
}

// Config configures a Janitor.
type Config struct {
	Schedule string        // cron spec; descriptors such as @hourly are accepted
	Grace    time.Duration // zero means DefaultGrace
	Now      func() time.Time
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a cron spec. Specs that never fire, such as
// "0 0 30 2 *", are rejected.
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	if schedule.Next(time.Now()).IsZero() {
		return nil, fmt.Errorf("cron expression %q never fires", spec)
	}
	return schedule, nil
}

// Janitor periodically removes expired pull-token rows. Verification never
// depends on it: an expired token is rejected whether or not its row exists.
type Janitor struct {
	store    TokenPurger
	schedule cron.Schedule
	grace    time.Duration
	now      func() time.Time
	observer PurgeObserver
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	sweepMu sync.Mutex
}

// New creates a Janitor. observer may be nil.
func New(s TokenPurger, cfg Config, observer PurgeObserver, logger *slog.Logger) (*Janitor, error) {
	schedule, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Janitor{
		store:    s,
		schedule: schedule,
		grace:    cfg.Grace,
		now:      cfg.Now,
		observer: observer,
		logger:   logger,
	}, nil
}

// Start launches the background loop.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.done != nil {
		j.mu.Unlock()
		return fmt.Errorf("janitor already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.mu.Unlock()

	go j.loop(loopCtx)
	j.logger.Info("token janitor started", slog.Duration("grace", j.grace))
	return nil
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)

	for {
		now := j.now()
		next := j.schedule.Next(now)
		if next.IsZero() {
			j.logger.Error("token janitor schedule has no next run; stopping loop")
			return
		}
		wait := next.Sub(now)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("token sweep failed", slog.String("error", err.Error()))
		}
	}
}

// RunOnce deletes rows that expired more than the grace period ago. Sweeps
// never overlap.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	j.sweepMu.Lock()
	defer j.sweepMu.Unlock()

	cutoff := j.now().UTC().Add(-j.grace)
	n, err := j.store.DeleteExpiredPullTokens(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if j.observer != nil {
		j.observer.AddTokensPurged(n)
	}
	if n > 0 {
		j.logger.Info("expired pull tokens removed", slog.Int64("count", n), slog.Time("cutoff", cutoff))
	}
	return n, nil
}

// Stop cancels the loop and waits for it to exit.
func (j *Janitor) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancel == nil {
		return nil
	}

	j.cancel()
	<-j.done
	j.cancel = nil
	j.done = nil

	j.logger.Info("token janitor stopped")
	return nil
}
