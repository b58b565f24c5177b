package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/doctracker/internal/reminders"
	apperrors "github.com/charlesng35/doctracker/pkg/errors"
	"github.com/charlesng35/doctracker/pkg/logger"
)

const (
	defaultReminderSpec = "0 8 * * *"
	defaultLedgerSpec   = "@daily"
	defaultCacheSpec    = "@hourly"
)

// ReminderRunner runs one reminder cycle.
type ReminderRunner interface {
	Run(ctx context.Context, trigger reminders.Trigger) (reminders.Summary, error)
}

// LedgerPurger removes dispatch ledger rows older than a cutoff.
type LedgerPurger interface {
	PurgeDispatches(ctx context.Context, cutoff time.Time) (int64, error)
}

// CachePurger removes expired cache entries.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler coordinates background jobs: the optional daily reminder run,
// dispatch ledger retention and expired cache entry cleanup.
type Scheduler struct {
	runner    ReminderRunner
	ledger    LedgerPurger
	cache     CachePurger
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention time.Duration
	location  *time.Location

	reminderSpec string
	ledgerSpec   string
	cacheSpec    string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithLocation evaluates cron specs in loc, normally the reminder time zone,
// so the daily run fires on the same calendar day the engine computes.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.location = loc
	}
}

// WithNow overrides the clock used for retention cutoffs.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReminderRuns enables the built-in daily reminder run on spec.
func WithReminderRuns(runner ReminderRunner, spec string) Option {
	return func(s *Scheduler) {
		s.runner = runner
		if spec != "" {
			s.reminderSpec = spec
		}
	}
}

// WithLedgerRetention purges ledger rows older than retention. A zero retention disables the job.
func WithLedgerRetention(ledger LedgerPurger, retention time.Duration) Option {
	return func(s *Scheduler) {
		if retention > 0 {
			s.ledger = ledger
			s.retention = retention
		}
	}
}

// WithCachePurge removes expired entries from the database-backed cache.
func WithCachePurge(cache CachePurger) Option {
	return func(s *Scheduler) {
		s.cache = cache
	}
}

// NewScheduler constructs a Scheduler. Jobs whose dependency is nil are skipped.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		now:          time.Now,
		reminderSpec: defaultReminderSpec,
		ledgerSpec:   defaultLedgerSpec,
		cacheSpec:    defaultCacheSpec,
		log:          logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		cronOpts := []cron.Option{cron.WithLogger(cron.DiscardLogger)}
		if s.location != nil {
			cronOpts = append(cronOpts, cron.WithLocation(s.location))
		}
		s.cron = cron.New(cronOpts...)
	}
	return s
}

func (s *Scheduler) enabled() bool {
	return s.runner != nil || s.ledger != nil || s.cache != nil
}

// Start registers jobs with the cron scheduler and launches it if at least one job is enabled.
func (s *Scheduler) Start() error {
	if !s.enabled() {
		return nil
	}

	if s.runner != nil {
		if _, err := s.cron.AddFunc(s.reminderSpec, func() {
			s.runReminders(context.Background())
		}); err != nil {
			return fmt.Errorf("maintenance: reminder schedule %q: %w", s.reminderSpec, err)
		}
	}

	if s.ledger != nil {
		if _, err := s.cron.AddFunc(s.ledgerSpec, func() {
			if _, err := s.purgeLedger(context.Background()); err != nil {
				s.log.Warn("ledger cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if s.cache != nil {
		if _, err := s.cron.AddFunc(s.cacheSpec, func() {
			if _, err := s.cache.PurgeExpired(context.Background()); err != nil {
				s.log.Warn("cache cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

func (s *Scheduler) runReminders(ctx context.Context) {
	summary, err := s.runner.Run(ctx, reminders.Trigger{Source: reminders.SourceSchedule, Internal: true})
	switch {
	case errors.Is(err, apperrors.ErrRunInProgress):
		s.log.Info("scheduled reminder run skipped: another run is in progress")
	case err != nil:
		s.log.Error("scheduled reminder run failed", zap.Error(err))
	default:
		s.log.Info("scheduled reminder run finished",
			zap.String("run_id", summary.RunID),
			zap.Int("sent", summary.Sent),
			zap.Int("errors", len(summary.Errors)))
	}
}

func (s *Scheduler) purgeLedger(ctx context.Context) (int64, error) {
	cutoff := reminders.CalendarDate(s.now().UTC()).Add(-s.retention)
	removed, err := s.ledger.PurgeDispatches(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Info("purged reminder ledger", zap.Int64("rows", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// RunOnce executes the retention jobs sequentially. The reminder run is not
// included; it only fires on its schedule or through the HTTP trigger.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if s.ledger != nil {
		if _, err := s.purgeLedger(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if s.cache != nil {
		if _, err := s.cache.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("purge cache: %w", err))
		}
	}

	return errs
}
