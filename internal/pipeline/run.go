package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"reelforge/internal/jobstore"
	"reelforge/internal/logging"
	"reelforge/internal/manifest"
	"reelforge/internal/orchestrator"
	"reelforge/internal/preflight"
	"reelforge/internal/services"
)

// execute walks the generation stages in order and settles the run report.
// Bookkeeping after the stage loop runs on an uncancelable context so a
// canceled run still exports metrics and records where it stopped.
func (d *Driver) execute(ctx context.Context, projectID string) (*RunReport, error) {
	started := time.Now()
	runID := uuid.NewString()
	ctx = services.WithProjectID(ctx, projectID)
	ctx = services.WithRequestID(ctx, runID)
	logger := d.logger.With(
		logging.String(logging.FieldRunID, runID),
		logging.String(logging.FieldProjectID, projectID))

	stopMetrics := d.serveMetrics(logger)
	defer stopMetrics()

	orc := orchestrator.New(d.cfg, d.store, d.cache, d.backend, d.selector, d.collector, d.root)
	report := &RunReport{
		RunID:     runID,
		ProjectID: projectID,
		Threshold: d.cfg.Workflow.SuccessRateThreshold,
	}

	logger.Info("run started")

	var runErr error
	for _, stage := range generationStages {
		result, err := orc.RunStage(ctx, projectID, stage.name, stage.types...)
		report.Stages = append(report.Stages, result)
		if err != nil {
			runErr = err
			break
		}
		d.snapshotStage(ctx, projectID, stage.name, logger)
	}

	// Totals come from the ledger, not this run's results, so a resumed run
	// is judged on the whole project.
	persistCtx := context.WithoutCancel(ctx)
	stats, err := d.store.Stats(persistCtx, projectID)
	if err != nil {
		if runErr == nil {
			runErr = err
		}
	} else {
		report.Completed = stats[jobstore.StatusCompleted]
		report.Failed = stats[jobstore.StatusFailed]
		report.Skipped = stats[jobstore.StatusSkipped]
		report.Pending = stats[jobstore.StatusPending] + stats[jobstore.StatusInProgress]
		report.SuccessRate = successRate(stats)
	}
	report.Duration = time.Since(started)

	d.exportMetrics(projectID, logger)
	d.pruneCache(persistCtx, projectID, logger)

	if runErr != nil {
		logger.Warn("run stopped",
			logging.Duration("elapsed", report.Duration),
			logging.Error(runErr))
		return report, runErr
	}

	// The final deliverable ref is garnish; projects without a post job
	// simply have none.
	if post, err := d.store.GetJob(persistCtx, projectID, manifest.PostJobID); err == nil && post.Status == jobstore.StatusCompleted {
		report.OutputRef = post.OutputRef
	}

	logger.Info("run completed",
		logging.Int("completed", report.Completed),
		logging.Int("failed", report.Failed),
		logging.Int("skipped", report.Skipped),
		logging.Float64("success_rate", report.SuccessRate),
		logging.Duration("elapsed", report.Duration))

	if report.SuccessRate < report.Threshold {
		logger.Error("run finished below success threshold",
			logging.Float64("success_rate", report.SuccessRate),
			logging.Float64("threshold", report.Threshold),
			logging.Alert("below_threshold"))
		return report, fmt.Errorf("%w: %.2f < %.2f", ErrBelowThreshold, report.SuccessRate, report.Threshold)
	}
	return report, nil
}

// successRate is completed over all terminal jobs. Skips count against the
// rate; a run that skipped half its scenes did not succeed by accident.
func successRate(stats map[jobstore.Status]int) float64 {
	completed := stats[jobstore.StatusCompleted]
	terminal := completed + stats[jobstore.StatusFailed] + stats[jobstore.StatusSkipped]
	if terminal == 0 {
		return 1
	}
	return float64(completed) / float64(terminal)
}

// snapshotStage appends a resume snapshot marking the stage drained. The
// stage ledger is audit data; a failed snapshot logs and the run moves on.
func (d *Driver) snapshotStage(ctx context.Context, projectID, stage string, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	state, err := d.store.LoadState(ctx, projectID)
	if err != nil {
		logger.Warn("load resume snapshot failed",
			logging.String(logging.FieldStage, stage), logging.Error(err))
		return
	}
	if state == nil {
		state = &jobstore.PipelineState{ProjectID: projectID}
	}
	if state.StageDone(stage) {
		return
	}
	if _, err := d.store.SaveState(ctx, state.WithStageDone(stage)); err != nil {
		logger.Warn("save resume snapshot failed",
			logging.String(logging.FieldStage, stage), logging.Error(err))
	}
}

// runPreflight aborts the run when any readiness probe fails. Passing
// checks are logged so the operator can see what was verified.
func (d *Driver) runPreflight(ctx context.Context) error {
	var failures []string
	for _, result := range preflight.RunAll(ctx, d.cfg) {
		if result.Passed {
			d.logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		d.logger.Error("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.Alert("preflight_failed"))
		failures = append(failures, fmt.Sprintf("%s: %s", result.Name, result.Detail))
	}
	if len(failures) > 0 {
		return services.Wrap(services.ErrConfiguration, "pipeline", "preflight",
			strings.Join(failures, "; "), nil)
	}
	return nil
}

// acquireLock takes the data-directory lock for the duration of one run.
// Status and jobs commands read the ledger without it; the lock only stops
// two schedulers from interleaving on the same ledger.
func (d *Driver) acquireLock() (func(), error) {
	lock := flock.New(d.cfg.LockPath())
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		return nil, errors.New("another reelforge run holds the lock")
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			d.logger.Warn("failed to release run lock", logging.Error(err))
		}
	}, nil
}

// serveMetrics exposes the Prometheus registry while the run is active. An
// empty bind address disables the endpoint.
func (d *Driver) serveMetrics(logger *slog.Logger) func() {
	bind := strings.TrimSpace(d.cfg.Metrics.Bind)
	if bind == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", d.collector.Handler())
	server := &http.Server{Addr: bind, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics endpoint stopped", logging.Error(err))
		}
	}()
	logger.Info("metrics endpoint listening", logging.String("bind", bind))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics endpoint shutdown failed", logging.Error(err))
		}
	}
}

// exportMetrics appends this run's ledger to the project metrics file.
func (d *Driver) exportMetrics(projectID string, logger *slog.Logger) {
	path := filepath.Join(d.cfg.MetricsDir(), projectID+".jsonl")
	if err := d.collector.ExportFile(path); err != nil {
		logger.Warn("metrics export failed", logging.Error(err))
		return
	}
	logger.Info("metrics exported", logging.String("path", path))
}

// pruneCache trims the asset cache with every completed output pinned.
func (d *Driver) pruneCache(ctx context.Context, projectID string, logger *slog.Logger) {
	if d.cfg.Paths.CacheMaxGiB <= 0 {
		return
	}
	completed, err := d.store.ListJobs(ctx, projectID, jobstore.StatusCompleted)
	if err != nil {
		logger.Warn("cache prune skipped", logging.Error(err))
		return
	}
	pinned := make([]string, 0, len(completed))
	for _, job := range completed {
		if job.OutputRef != "" {
			pinned = append(pinned, job.OutputRef)
		}
	}
	if err := d.cache.Prune(ctx, pinned...); err != nil {
		logger.Warn("cache prune failed", logging.Error(err))
	}
}
