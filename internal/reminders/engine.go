package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/doctracker/internal/cache"
	apperrors "github.com/charlesng35/doctracker/pkg/errors"
	"github.com/charlesng35/doctracker/pkg/logger"
	"github.com/charlesng35/doctracker/pkg/mail"
	"github.com/charlesng35/doctracker/pkg/metrics"
)

// RunState is a stage of the reminder run lifecycle.
type RunState string

const (
	StateIdle        RunState = "idle"
	StateAuthorizing RunState = "authorizing"
	StateLoading     RunState = "loading"
	StateResolving   RunState = "resolving"
	StateEvaluating  RunState = "evaluating"
	StateDispatching RunState = "dispatching"
	StateCompleted   RunState = "completed"
	StateFailed      RunState = "failed"
)

// Trigger sources.
const (
	SourceCron     = "cron"
	SourceManual   = "manual"
	SourceSchedule = "schedule"
)

const (
	defaultHorizonDays = 31
	defaultParallelism = 4
	defaultRunLockTTL  = 15 * time.Minute
	runLockKey         = "reminders:run-lock"
)

// CandidateLoader reads documents with upcoming expirations.
type CandidateLoader interface {
	LoadCandidates(ctx context.Context, from, to time.Time) ([]Candidate, error)
	LoadUserDocuments(ctx context.Context, userID string, from time.Time) ([]Candidate, error)
}

// PolicyResolver turns owners into notification policies.
type PolicyResolver interface {
	Resolve(ctx context.Context, userID string) (Policy, error)
	LargestConfiguredInterval(ctx context.Context) (int, error)
}

// DispatchLedger provides at-most-once bookkeeping per document, interval and day.
type DispatchLedger interface {
	Claim(ctx context.Context, runID string, runDate time.Time, n Notification) (Claim, bool, error)
	MarkSent(ctx context.Context, claim Claim, sentAt time.Time) error
	Release(ctx context.Context, claim Claim) error
}

// RunRecorder persists run summaries.
type RunRecorder interface {
	RecordRun(ctx context.Context, summary Summary) error
	LastRun(ctx context.Context) (Summary, bool, error)
}

// Trigger describes who started a run. Internal triggers come from the
// in-process scheduler and skip secret validation.
type Trigger struct {
	Source   string
	Secret   string
	Internal bool
}

// DispatchError describes one document whose reminder could not be delivered.
type DispatchError struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	Interval   int    `json:"interval,omitempty"`
	Error      string `json:"error"`
}

// Summary reports the outcome of a run. Sent, Skipped and len(Errors) add up to Total.
type Summary struct {
	RunID       string          `json:"run_id"`
	Source      string          `json:"source"`
	State       RunState        `json:"state"`
	FailedStage RunState        `json:"failed_stage,omitempty"`
	RunDate     string          `json:"run_date"`
	Sent        int             `json:"sent"`
	Skipped     int             `json:"skipped"`
	Total       int             `json:"total"`
	Errors      []DispatchError `json:"errors"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// EngineConfig tunes the run.
type EngineConfig struct {
	HorizonDays int
	Location    *time.Location
	Parallelism int
	RunLockTTL  time.Duration
	AppURL      string
	Clock       func() time.Time
}

// Dependencies are the collaborators an Engine needs. Locks may be nil, in
// which case only the in-process guard prevents overlapping runs.
type Dependencies struct {
	Loader     CandidateLoader
	Resolver   PolicyResolver
	Ledger     DispatchLedger
	Recorder   RunRecorder
	Mailer     mail.Mailer
	Locks      cache.Store
	Authorizer *Authorizer
}

// Engine evaluates documents against their owners' policies and dispatches reminders.
type Engine struct {
	deps     Dependencies
	cfg      EngineConfig
	renderer Renderer
	log      *zap.Logger
	running  atomic.Bool
}

// NewEngine validates dependencies and applies configuration defaults.
func NewEngine(deps Dependencies, cfg EngineConfig) (*Engine, error) {
	switch {
	case deps.Loader == nil:
		return nil, errors.New("reminders: candidate loader is required")
	case deps.Resolver == nil:
		return nil, errors.New("reminders: policy resolver is required")
	case deps.Ledger == nil:
		return nil, errors.New("reminders: dispatch ledger is required")
	case deps.Mailer == nil:
		return nil, errors.New("reminders: mailer is required")
	case deps.Authorizer == nil:
		return nil, errors.New("reminders: authorizer is required")
	}

	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = defaultHorizonDays
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.RunLockTTL <= 0 {
		cfg.RunLockTTL = defaultRunLockTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Engine{
		deps:     deps,
		cfg:      cfg,
		renderer: Renderer{AppURL: cfg.AppURL},
		log:      logger.WithModule("reminders"),
	}, nil
}

// Authorizer exposes the scheduler secret check for endpoints outside Run.
func (e *Engine) Authorizer() *Authorizer {
	return e.deps.Authorizer
}

// Today returns midnight of the current day in the reminder time zone.
func (e *Engine) Today() time.Time {
	return CalendarDate(e.cfg.Clock().In(e.cfg.Location))
}

type dispatchJob struct {
	candidate   Candidate
	policy      Policy
	eligibility Eligibility
}

type dispatchOutcome struct {
	sent    bool
	skipped bool
	err     *DispatchError
}

// Run executes one reminder cycle. It returns apperrors.ErrUnauthorized before
// touching any data when the trigger fails authorisation, and
// apperrors.ErrRunInProgress when another run holds the lock. Loading or
// resolution failures end the run in the failed state with nothing dispatched.
func (e *Engine) Run(ctx context.Context, trigger Trigger) (Summary, error) {
	summary := Summary{
		RunID:     uuid.NewString(),
		Source:    trigger.Source,
		State:     StateIdle,
		Errors:    []DispatchError{},
		StartedAt: e.cfg.Clock().UTC(),
	}
	log := e.log.With(zap.String("run_id", summary.RunID), zap.String("source", trigger.Source))

	summary.State = StateAuthorizing
	if !trigger.Internal {
		if err := e.deps.Authorizer.Authorize(trigger.Secret); err != nil {
			metrics.ReminderRuns.WithLabelValues(trigger.Source, "unauthorized").Inc()
			log.Warn("reminder run rejected", zap.Error(err))
			return Summary{}, err
		}
	}

	release, err := e.acquire(ctx)
	if err != nil {
		metrics.ReminderRuns.WithLabelValues(trigger.Source, "conflict").Inc()
		log.Info("reminder run skipped", zap.Error(err))
		return Summary{}, err
	}
	defer release()

	today := e.Today()
	summary.RunDate = today.Format("2006-01-02")

	summary.State = StateLoading
	candidates, err := e.loadCandidates(ctx, today)
	if err != nil {
		return e.fail(ctx, log, summary, StateLoading, err)
	}
	summary.Total = len(candidates)

	summary.State = StateResolving
	policies, err := e.resolvePolicies(ctx, candidates)
	if err != nil {
		return e.fail(ctx, log, summary, StateResolving, err)
	}

	summary.State = StateEvaluating
	jobs := make([]dispatchJob, 0, len(candidates))
	for _, c := range candidates {
		policy, ok := policies[c.UserID]
		if !ok || !policy.NotificationsEnabled {
			summary.Skipped++
			continue
		}
		el := Evaluate(c.ExpirationDate, today, policy.Intervals)
		if !el.Eligible {
			summary.Skipped++
			continue
		}
		jobs = append(jobs, dispatchJob{candidate: c, policy: policy, eligibility: el})
	}

	summary.State = StateDispatching
	for _, outcome := range e.dispatchAll(ctx, summary.RunID, today, jobs) {
		switch {
		case outcome.err != nil:
			summary.Errors = append(summary.Errors, *outcome.err)
		case outcome.skipped:
			summary.Skipped++
		case outcome.sent:
			summary.Sent++
		}
	}

	summary.State = StateCompleted
	summary.FinishedAt = e.cfg.Clock().UTC()
	e.finish(ctx, log, summary)
	return summary, nil
}

func (e *Engine) acquire(ctx context.Context) (func(), error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, apperrors.ErrRunInProgress
	}
	if e.deps.Locks == nil {
		return func() { e.running.Store(false) }, nil
	}

	lock, err := cache.AcquireLock(ctx, e.deps.Locks, runLockKey, e.cfg.RunLockTTL)
	if err != nil {
		e.running.Store(false)
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, apperrors.ErrRunInProgress
		}
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			e.log.Warn("release run lock", zap.Error(err))
		}
		e.running.Store(false)
	}, nil
}

// loadCandidates widens the configured horizon to the longest interval any
// user has configured so long custom lead times can still fire.
func (e *Engine) loadCandidates(ctx context.Context, today time.Time) ([]Candidate, error) {
	horizon := e.cfg.HorizonDays
	largest, err := e.deps.Resolver.LargestConfiguredInterval(ctx)
	if err != nil {
		return nil, err
	}
	if largest > horizon {
		horizon = largest
	}
	return e.deps.Loader.LoadCandidates(ctx, today, today.AddDate(0, 0, horizon))
}

// resolvePolicies resolves every owner before any dispatch starts.
// Unresolvable owners are left out of the map and their documents skipped.
func (e *Engine) resolvePolicies(ctx context.Context, candidates []Candidate) (map[string]Policy, error) {
	policies := make(map[string]Policy)
	seen := make(map[string]struct{})
	for _, c := range candidates {
		if _, done := seen[c.UserID]; done {
			continue
		}
		seen[c.UserID] = struct{}{}

		policy, err := e.deps.Resolver.Resolve(ctx, c.UserID)
		if errors.Is(err, ErrUserUnresolvable) {
			e.log.Debug("skipping unresolvable owner", zap.String("user_id", c.UserID))
			continue
		}
		if err != nil {
			return nil, err
		}
		policies[c.UserID] = policy
	}
	return policies, nil
}

func (e *Engine) dispatchAll(ctx context.Context, runID string, today time.Time, jobs []dispatchJob) []dispatchOutcome {
	if len(jobs) == 0 {
		return nil
	}

	workers := e.cfg.Parallelism
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan dispatchJob, len(jobs))
	results := make(chan dispatchOutcome, len(jobs))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				results <- e.dispatch(ctx, runID, today, job)
			}
		}()
	}
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()
	close(results)

	outcomes := make([]dispatchOutcome, 0, len(jobs))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (e *Engine) dispatch(ctx context.Context, runID string, today time.Time, job dispatchJob) dispatchOutcome {
	n := e.renderer.Render(job.candidate, job.policy, job.eligibility)
	failed := func(err error) dispatchOutcome {
		metrics.ReminderOutcomes.WithLabelValues("error").Inc()
		e.log.Warn("reminder dispatch failed",
			zap.String("run_id", runID),
			zap.String("document_id", n.DocumentID),
			zap.Int("interval", n.Interval),
			zap.Error(err))
		return dispatchOutcome{err: &DispatchError{
			DocumentID: n.DocumentID,
			UserID:     n.UserID,
			Interval:   n.Interval,
			Error:      err.Error(),
		}}
	}

	claim, claimed, err := e.deps.Ledger.Claim(ctx, runID, today, n)
	if err != nil {
		return failed(err)
	}
	if !claimed {
		metrics.ReminderOutcomes.WithLabelValues("skipped").Inc()
		return dispatchOutcome{skipped: true}
	}

	if err := e.deps.Mailer.Send(ctx, n.Message()); err != nil {
		if relErr := e.deps.Ledger.Release(context.WithoutCancel(ctx), claim); relErr != nil {
			e.log.Warn("release dispatch claim", zap.String("document_id", n.DocumentID), zap.Error(relErr))
		}
		return failed(fmt.Errorf("deliver: %w", err))
	}

	if err := e.deps.Ledger.MarkSent(context.WithoutCancel(ctx), claim, e.cfg.Clock()); err != nil {
		e.log.Warn("mark dispatch sent", zap.String("document_id", n.DocumentID), zap.Error(err))
	}
	metrics.ReminderOutcomes.WithLabelValues("sent").Inc()
	return dispatchOutcome{sent: true}
}

func (e *Engine) fail(ctx context.Context, log *zap.Logger, summary Summary, stage RunState, cause error) (Summary, error) {
	summary.State = StateFailed
	summary.FailedStage = stage
	summary.FinishedAt = e.cfg.Clock().UTC()
	log.Error("reminder run failed", zap.String("stage", string(stage)), zap.Error(cause))
	e.finish(ctx, log, summary)
	return summary, fmt.Errorf("reminders: %s: %w", stage, cause)
}

func (e *Engine) finish(ctx context.Context, log *zap.Logger, summary Summary) {
	metrics.ReminderRuns.WithLabelValues(summary.Source, string(summary.State)).Inc()
	metrics.ReminderRunDuration.WithLabelValues(string(summary.State)).Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	if summary.State == StateCompleted {
		metrics.LastRunTimestamp.Set(float64(summary.FinishedAt.Unix()))
		log.Info("reminder run completed",
			zap.String("run_date", summary.RunDate),
			zap.Int("sent", summary.Sent),
			zap.Int("skipped", summary.Skipped),
			zap.Int("errors", len(summary.Errors)),
			zap.Int("total", summary.Total))
	}

	if e.deps.Recorder == nil {
		return
	}
	if err := e.deps.Recorder.RecordRun(context.WithoutCancel(ctx), summary); err != nil {
		log.Warn("record run summary", zap.Error(err))
	}
}

// LastRun returns the most recent recorded summary, if any.
func (e *Engine) LastRun(ctx context.Context) (Summary, bool, error) {
	if e.deps.Recorder == nil {
		return Summary{}, false, nil
	}
	return e.deps.Recorder.LastRun(ctx)
}

// VerifyDelivery checks that the delivery channel is configured and reachable.
func (e *Engine) VerifyDelivery(ctx context.Context) error {
	if err := e.deps.Mailer.Verify(ctx); err != nil {
		return apperrors.ErrDeliveryUnavailable.WithInternal(err)
	}
	return nil
}

// SendTest delivers a one-off test message to recipient, bypassing eligibility and the ledger.
func (e *Engine) SendTest(ctx context.Context, recipient string) error {
	msg := e.renderer.TestMessage(recipient, e.cfg.Clock())
	if err := e.deps.Mailer.Send(ctx, msg); err != nil {
		return apperrors.ErrDeliveryUnavailable.WithInternal(err)
	}
	return nil
}
