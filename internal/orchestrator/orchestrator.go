package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/assetcache"
	"reelforge/internal/config"
	"reelforge/internal/jobstore"
	"reelforge/internal/logging"
	"reelforge/internal/metrics"
	"reelforge/internal/services"
	"reelforge/internal/services/generation"
	"reelforge/internal/workflow"
)

// maxRetryDelay caps exponential backoff so a deep attempt count cannot push
// the next try out by hours.
const maxRetryDelay = 5 * time.Minute

// Backend is the slice of the generation client the scheduler dispatches
// through. Tests substitute scripted fakes.
type Backend interface {
	GenerateImage(ctx context.Context, req generation.ImageRequest) (generation.Asset, error)
	GenerateVideo(ctx context.Context, req generation.VideoRequest) (generation.Asset, error)
	GenerateSpeech(ctx context.Context, req generation.SpeechRequest) (generation.Asset, error)
	Assemble(ctx context.Context, req generation.AssembleRequest) (generation.Asset, error)
}

// Orchestrator schedules a project's jobs against the generation backend.
type Orchestrator struct {
	store     *jobstore.Store
	tracker   *jobstore.Tracker
	cache     *assetcache.Manager
	backend   Backend
	selector  workflow.Selector
	collector *metrics.Collector
	logger    *slog.Logger
	limits    workflow.Limits

	maxConcurrency int
	maxRetries     int
	backoffBase    float64
	jobTimeout     time.Duration
}

// New wires an orchestrator from configuration.
func New(cfg *config.Config, store *jobstore.Store, cache *assetcache.Manager, backend Backend, selector workflow.Selector, collector *metrics.Collector, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	concurrency := cfg.Workflow.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		store:          store,
		tracker:        jobstore.NewTracker(store),
		cache:          cache,
		backend:        backend,
		selector:       selector,
		collector:      collector,
		logger:         logging.NewComponentLogger(logger, "orchestrator"),
		limits:         workflow.LimitsFromConfig(cfg),
		maxConcurrency: concurrency,
		maxRetries:     cfg.Workflow.MaxRetries,
		backoffBase:    cfg.Workflow.RetryBackoffBaseSeconds,
		jobTimeout:     time.Duration(cfg.Workflow.JobTimeoutSeconds) * time.Second,
	}
}

// StageResult summarizes what one RunStage call changed. Skipped counts every
// dependent skipped during the stage, including jobs of later stages.
type StageResult struct {
	Stage     string
	Completed int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// jobEvent is a worker's report back to the event loop.
type jobEvent struct {
	jobID    string
	workflow string
	output   string
	err      error
	elapsed  time.Duration
}

// stageRun is the mutable state of one RunStage call. The event loop owns
// every field; workers communicate only through the events channel.
type stageRun struct {
	orc        *Orchestrator
	projectID  string
	stage      string
	logger     *slog.Logger
	persistCtx context.Context
	jobs       []*jobstore.Job
	byID       map[string]*jobstore.Job
	stageSet   map[jobstore.Type]struct{}
	retryAt    map[string]time.Time
	workflows  map[string]string
	events     chan jobEvent
	wg         sync.WaitGroup
	inFlight   int
	canceled   bool
	fatal      error
	result     StageResult
}

// RunStage dispatches every job of the given types until the stage settles:
// no such job pending or in progress, no retry scheduled, no worker in
// flight. Jobs already completed are never dispatched again. When ctx is
// canceled the loop stops claiming, drains in-flight work, persists the
// outcomes, and returns the context error.
func (o *Orchestrator) RunStage(ctx context.Context, projectID, stage string, types ...jobstore.Type) (StageResult, error) {
	started := time.Now()

	jobs, err := o.store.ListJobs(ctx, projectID)
	if err != nil {
		return StageResult{Stage: stage}, err
	}

	run := &stageRun{
		orc:       o,
		projectID: projectID,
		stage:     stage,
		logger: o.logger.With(
			logging.String(logging.FieldProjectID, projectID),
			logging.String(logging.FieldStage, stage),
		),
		// Outcomes of in-flight jobs must land in the store even when the
		// run context dies mid-stage.
		persistCtx: context.WithoutCancel(ctx),
		jobs:       jobs,
		byID:       make(map[string]*jobstore.Job, len(jobs)),
		stageSet:   make(map[jobstore.Type]struct{}, len(types)),
		retryAt:    make(map[string]time.Time),
		workflows:  make(map[string]string),
		events:     make(chan jobEvent, o.maxConcurrency),
		result:     StageResult{Stage: stage},
	}
	for _, job := range jobs {
		run.byID[job.ID] = job
	}
	for _, jobType := range types {
		run.stageSet[jobType] = struct{}{}
	}

	if err := run.recover(ctx); err != nil {
		return run.result, err
	}

	run.logger.Info("stage started", logging.Int("jobs", run.countStage()))
	err = run.loop(ctx)
	run.result.Duration = time.Since(started)
	if err != nil {
		return run.result, err
	}
	run.logger.Info("stage completed",
		logging.Int("completed", run.result.Completed),
		logging.Int("failed", run.result.Failed),
		logging.Int("skipped", run.result.Skipped),
		logging.Duration("elapsed", run.result.Duration))
	return run.result, nil
}

// recover prepares previously persisted state for dispatch. Stuck claims
// return to pending, retryable stage failures are scheduled for an immediate
// retry, and permanent failures re-run their skip cascade in case a crash
// landed between the failure and the cascade.
func (r *stageRun) recover(ctx context.Context) error {
	stuck := false
	for _, job := range r.jobs {
		if job.Status == jobstore.StatusInProgress {
			stuck = true
			break
		}
	}
	if stuck {
		reset, err := r.orc.tracker.ResetStuck(ctx, r.projectID)
		if err != nil {
			return err
		}
		for _, job := range r.jobs {
			if job.Status == jobstore.StatusInProgress {
				job.Status = jobstore.StatusPending
			}
		}
		r.logger.Info("reset stuck claims", logging.Int64("count", reset))
	}

	now := time.Now()
	for _, job := range r.jobs {
		if job.Status != jobstore.StatusFailed {
			continue
		}
		if r.inStage(job) && services.RetryableKind(job.ErrorKind) && job.Attempts < r.orc.maxRetries {
			r.retryAt[job.ID] = now
			continue
		}
		r.cascadeSkips(job)
	}
	return nil
}

func (r *stageRun) loop(ctx context.Context) error {
	defer r.wg.Wait()
	ctxDone := ctx.Done()

	for {
		if !r.canceled && r.fatal == nil {
			r.promoteDue()
			r.dispatch()
		}
		r.updateQueueDepth()

		if r.inFlight == 0 {
			if r.fatal != nil {
				return r.fatal
			}
			if r.canceled {
				return ctx.Err()
			}
			if len(r.retryAt) == 0 {
				if r.settled() {
					return nil
				}
				return r.blockedError()
			}
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if !r.canceled && r.fatal == nil && len(r.retryAt) > 0 {
			timer = time.NewTimer(time.Until(r.nextRetry()))
			timerC = timer.C
		}

		select {
		case ev := <-r.events:
			r.inFlight--
			r.handleEvent(ev)
		case <-timerC:
		case <-ctxDone:
			r.canceled = true
			ctxDone = nil
			// Scheduled retries stay failed with a retryable kind in the
			// store; resume reschedules them.
			clear(r.retryAt)
			r.logger.Warn("stage canceled, draining in-flight work",
				logging.Alert("canceled"),
				logging.Int("in_flight", r.inFlight))
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// dispatch claims ready stage jobs until the worker pool is full.
func (r *stageRun) dispatch() {
	for _, job := range r.jobs {
		if r.inFlight >= r.orc.maxConcurrency || r.fatal != nil {
			return
		}
		if !r.inStage(job) || job.Status != jobstore.StatusPending {
			continue
		}
		if _, waiting := r.retryAt[job.ID]; waiting {
			continue
		}
		if !r.ready(job) {
			continue
		}
		claimed, err := r.orc.tracker.Claim(r.persistCtx, r.projectID, job.ID)
		if err != nil {
			if errors.Is(err, jobstore.ErrNotClaimable) {
				// Another writer moved the job; pick up its state and move on.
				if fresh, getErr := r.orc.store.GetJob(r.persistCtx, r.projectID, job.ID); getErr == nil {
					*job = *fresh
				}
				r.logger.Debug("claim lost to another writer",
					logging.String(logging.FieldJobID, job.ID), logging.Error(err))
				continue
			}
			r.notePersistFailure("claim failed", job.ID, err)
			continue
		}
		*job = *claimed
		r.start(job)
	}
}

// start launches one claimed job. The worker gets a copy of the row plus
// pointers to its dependencies; dependencies are terminal by readiness, so
// the loop never mutates them while the worker reads.
func (r *stageRun) start(job *jobstore.Job) {
	r.inFlight++
	attempt := job.Attempts + 1
	r.orc.collector.RecordAttempt(r.projectID, job.ID, string(job.Type), attempt)
	r.logger.Info("job dispatched",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldJobType, string(job.Type)),
		logging.Int(logging.FieldAttempt, attempt))

	deps := make(map[string]*jobstore.Job, len(job.DependsOn))
	for _, depID := range job.DependsOn {
		if dep, ok := r.byID[depID]; ok {
			deps[depID] = dep
		}
	}

	snapshot := *job
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		runCtx := services.WithProjectID(r.persistCtx, r.projectID)
		runCtx = services.WithStage(runCtx, r.stage)
		runCtx = services.WithJobID(runCtx, snapshot.ID)
		runCtx = services.WithRequestID(runCtx, uuid.NewString())
		cancel := context.CancelFunc(func() {})
		if r.orc.jobTimeout > 0 {
			runCtx, cancel = context.WithTimeout(runCtx, r.orc.jobTimeout)
		}
		defer cancel()

		startedAt := time.Now()
		output, chosen, err := r.orc.executeJob(runCtx, &snapshot, deps)
		r.events <- jobEvent{
			jobID:    snapshot.ID,
			workflow: chosen,
			output:   output,
			err:      err,
			elapsed:  time.Since(startedAt),
		}
	}()
}

func (r *stageRun) handleEvent(ev jobEvent) {
	job := r.byID[ev.jobID]
	if job == nil {
		return
	}
	if ev.workflow != "" {
		r.workflows[ev.jobID] = ev.workflow
	}

	if ev.err == nil {
		if err := r.orc.tracker.Complete(r.persistCtx, r.projectID, job.ID, ev.output); err != nil {
			r.notePersistFailure("failed to persist completion", job.ID, err)
		}
		job.Status = jobstore.StatusCompleted
		job.OutputRef = ev.output
		job.ErrorMessage = ""
		job.ErrorKind = ""
		r.result.Completed++
		r.orc.collector.RecordOutcome(r.projectID, job.ID, string(job.Type), ev.workflow, metrics.OutcomeSuccess, "", job.Attempts+1, ev.elapsed)
		attrs := []logging.Attr{
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldJobType, string(job.Type)),
			logging.Duration("elapsed", ev.elapsed),
		}
		if ev.workflow != "" {
			attrs = append(attrs, logging.String(logging.FieldWorkflow, ev.workflow))
		}
		r.logger.Info("job completed", logging.Args(attrs...)...)
		return
	}

	kind := services.Classify(ev.err)
	message := strings.TrimSpace(ev.err.Error())
	if err := r.orc.tracker.Fail(r.persistCtx, r.projectID, job.ID, message, kind); err != nil {
		r.notePersistFailure("failed to persist failure", job.ID, err)
	}
	job.Status = jobstore.StatusFailed
	job.ErrorMessage = message
	job.ErrorKind = kind

	retryable := services.RetryableKind(kind) && job.Attempts < r.orc.maxRetries
	switch {
	case retryable && !r.canceled && r.fatal == nil:
		delay := r.orc.backoffDelay(job.Attempts)
		r.retryAt[job.ID] = time.Now().Add(delay)
		r.logger.Warn("job failed, retry scheduled",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldErrorKind, kind),
			logging.Int(logging.FieldAttempt, job.Attempts+1),
			logging.Duration("retry_in", delay),
			logging.Error(ev.err))
	case retryable:
		r.logger.Warn("job failed during shutdown, left for resume",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldErrorKind, kind),
			logging.Error(ev.err))
	default:
		r.finalizeFailure(job, ev.workflow, kind, ev.err, job.Attempts+1, ev.elapsed)
	}
}

// promoteDue returns failed jobs whose backoff expired to pending.
func (r *stageRun) promoteDue() {
	now := time.Now()
	for jobID, due := range r.retryAt {
		if due.After(now) {
			continue
		}
		delete(r.retryAt, jobID)
		job := r.byID[jobID]
		retried, err := r.orc.tracker.Retry(r.persistCtx, r.projectID, jobID)
		if err != nil {
			r.logger.Error("retry transition failed", logging.String(logging.FieldJobID, jobID), logging.Error(err))
			r.finalizeFailure(job, r.workflows[jobID], job.ErrorKind, err, job.Attempts+1, 0)
			continue
		}
		*job = *retried
		r.logger.Info("job retrying",
			logging.String(logging.FieldJobID, jobID),
			logging.Int(logging.FieldAttempt, retried.Attempts+1))
	}
}

// finalizeFailure counts a permanent failure against the workflow that
// produced it and skips its pending dependents.
func (r *stageRun) finalizeFailure(job *jobstore.Job, chosenWorkflow, kind string, cause error, attempt int, elapsed time.Duration) {
	r.result.Failed++
	r.orc.collector.RecordOutcome(r.projectID, job.ID, string(job.Type), chosenWorkflow, metrics.OutcomeFailure, kind, attempt, elapsed)
	attrs := []logging.Attr{
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldJobType, string(job.Type)),
		logging.String(logging.FieldErrorKind, kind),
		logging.Int(logging.FieldAttempt, attempt),
		logging.Alert("job_failure"),
		logging.Error(cause),
	}
	if chosenWorkflow != "" {
		attrs = append(attrs, logging.String(logging.FieldWorkflow, chosenWorkflow))
	}
	r.logger.Error("job failed permanently", logging.Args(attrs...)...)
	r.cascadeSkips(job)
}

// cascadeSkips marks every pending job depending on the failed one as
// skipped. Skipped rows satisfy readiness, so grandchildren still run and
// decide at build time whether the missing output is fatal for them.
func (r *stageRun) cascadeSkips(failed *jobstore.Job) {
	reason := fmt.Sprintf("dependency %s failed permanently", failed.ID)
	for _, job := range r.jobs {
		if job.Status != jobstore.StatusPending || !dependsOn(job, failed.ID) {
			continue
		}
		if err := r.orc.tracker.Skip(r.persistCtx, r.projectID, job.ID, reason); err != nil {
			r.notePersistFailure("failed to skip dependent", job.ID, err)
			continue
		}
		job.Status = jobstore.StatusSkipped
		job.ErrorMessage = reason
		job.ErrorKind = jobstore.SkippedDependencyKind
		r.result.Skipped++
		r.orc.collector.RecordOutcome(r.projectID, job.ID, string(job.Type), "", metrics.OutcomeSkip, jobstore.SkippedDependencyKind, 0, 0)
		r.logger.Warn("job skipped",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldJobType, string(job.Type)),
			logging.String("reason", reason))
	}
}

// ready reports whether every dependency reached a state that satisfies
// dispatch: completed, or skipped. Skipped dependencies do not block their
// dependents; the request builders decide per job type whether the missing
// output matters.
func (r *stageRun) ready(job *jobstore.Job) bool {
	for _, depID := range job.DependsOn {
		dep, ok := r.byID[depID]
		if !ok {
			return false
		}
		if dep.Status != jobstore.StatusCompleted && dep.Status != jobstore.StatusSkipped {
			return false
		}
	}
	return true
}

// settled reports whether every stage job reached a terminal status.
func (r *stageRun) settled() bool {
	for _, job := range r.jobs {
		if !r.inStage(job) {
			continue
		}
		if job.Status == jobstore.StatusPending || job.Status == jobstore.StatusInProgress {
			return false
		}
	}
	return true
}

// blockedError names the pending stage jobs that can never dispatch. The
// loop reaches this only when nothing is in flight and no retry is
// scheduled, which means the stage depends on work a prior stage never
// finished.
func (r *stageRun) blockedError() error {
	var blocked []string
	for _, job := range r.jobs {
		if !r.inStage(job) || job.Status != jobstore.StatusPending {
			continue
		}
		var waits []string
		for _, depID := range job.DependsOn {
			dep, ok := r.byID[depID]
			switch {
			case !ok:
				waits = append(waits, depID+" (missing)")
			case dep.Status != jobstore.StatusCompleted && dep.Status != jobstore.StatusSkipped:
				waits = append(waits, fmt.Sprintf("%s (%s)", depID, dep.Status))
			}
		}
		blocked = append(blocked, fmt.Sprintf("%s waits on %s", job.ID, strings.Join(waits, ", ")))
	}
	detail := fmt.Sprintf("stage %s cannot progress: %s", r.stage, strings.Join(blocked, "; "))
	return services.Wrap(services.ErrValidation, "orchestrator", "run_stage", detail, nil)
}

func (r *stageRun) nextRetry() time.Time {
	var next time.Time
	for _, due := range r.retryAt {
		if next.IsZero() || due.Before(next) {
			next = due
		}
	}
	return next
}

func (r *stageRun) updateQueueDepth() {
	pending := 0
	for _, job := range r.jobs {
		if r.inStage(job) && job.Status == jobstore.StatusPending {
			pending++
		}
	}
	r.orc.collector.SetQueueDepth(pending+len(r.retryAt), r.inFlight)
}

// notePersistFailure logs a ledger write error and, when the error marks
// the store as unusable, records it so the loop stops dispatching and
// returns it once the in-flight workers drain.
func (r *stageRun) notePersistFailure(op, jobID string, err error) {
	r.logger.Error(op, logging.String(logging.FieldJobID, jobID), logging.Error(err))
	if services.Fatal(err) && r.fatal == nil {
		r.fatal = err
		clear(r.retryAt)
	}
}

func (r *stageRun) inStage(job *jobstore.Job) bool {
	_, ok := r.stageSet[job.Type]
	return ok
}

func (r *stageRun) countStage() int {
	count := 0
	for _, job := range r.jobs {
		if r.inStage(job) {
			count++
		}
	}
	return count
}

// backoffDelay computes the pause before the next attempt. The exponent
// starts at one, so the first retry already waits a full backoff base.
func (o *Orchestrator) backoffDelay(attempts int) time.Duration {
	seconds := math.Pow(o.backoffBase, float64(attempts+1))
	if seconds <= 0 {
		return 0
	}
	if seconds >= maxRetryDelay.Seconds() {
		return maxRetryDelay
	}
	return time.Duration(seconds * float64(time.Second))
}

func dependsOn(job *jobstore.Job, depID string) bool {
	for _, id := range job.DependsOn {
		if id == depID {
			return true
		}
	}
	return false
}
