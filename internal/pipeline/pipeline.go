package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reelforge/internal/assetcache"
	"reelforge/internal/config"
	"reelforge/internal/jobstore"
	"reelforge/internal/logging"
	"reelforge/internal/manifest"
	"reelforge/internal/metrics"
	"reelforge/internal/orchestrator"
	"reelforge/internal/services"
	"reelforge/internal/services/generation"
	"reelforge/internal/services/llm"
	"reelforge/internal/workflow"
)

// Stage names in run order. Plan is the ingest step that persists the job
// DAG; the remaining stages drain jobs through the scheduler.
const (
	StagePlan       = "plan"
	StageCharacters = "characters"
	StageImages     = "images"
	StageVideo      = "video"
	StagePost       = "post"
)

// generationStages maps each scheduler stage to the job types it drains.
// Narration audio rides in the video stage: clips and voice tracks have no
// ordering edge between them and share the backend budget.
var generationStages = []struct {
	name  string
	types []jobstore.Type
}{
	{StageCharacters, []jobstore.Type{jobstore.TypeCharacter}},
	{StageImages, []jobstore.Type{jobstore.TypeImage}},
	{StageVideo, []jobstore.Type{jobstore.TypeVideo, jobstore.TypeAudio}},
	{StagePost, []jobstore.Type{jobstore.TypePost}},
}

// ErrBelowThreshold reports a drained run whose success rate missed the
// configured floor. The ledger keeps every failure, so the project can be
// resumed once the cause is fixed.
var ErrBelowThreshold = errors.New("run success rate below threshold")

// Driver assembles the subsystems one run needs and walks the stages in
// order. One driver serves any number of runs; the job ledger stays open
// until Close.
type Driver struct {
	cfg       *config.Config
	store     *jobstore.Store
	cache     *assetcache.Manager
	backend   orchestrator.Backend
	selector  workflow.Selector
	collector *metrics.Collector

	// root is handed to subsystems, which tag their own component field.
	root   *slog.Logger
	logger *slog.Logger
}

// Option customizes driver assembly.
type Option func(*Driver)

// WithBackend substitutes the generation backend, typically a test double.
func WithBackend(backend orchestrator.Backend) Option {
	return func(d *Driver) {
		d.backend = backend
	}
}

// WithCollector shares a metrics collector with the caller.
func WithCollector(collector *metrics.Collector) Option {
	return func(d *Driver) {
		if collector != nil {
			d.collector = collector
		}
	}
}

// New opens the job ledger and wires the default subsystems. The returned
// driver must be closed.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Driver, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "config is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := jobstore.Open(cfg)
	if err != nil {
		return nil, err
	}

	cache := assetcache.NewManager(cfg, logger)
	d := &Driver{
		cfg:       cfg,
		store:     store,
		cache:     cache,
		selector:  workflow.NewSelector(cfg, llmClientFromConfig(cfg), logger),
		collector: metrics.NewCollector(),
		root:      logger,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.backend == nil {
		d.backend = generation.NewClient(cfg, cache, logger)
	}
	return d, nil
}

// llmClientFromConfig builds the reasoning client when credentials exist.
// The selector treats a nil client as "fall back to rules".
func llmClientFromConfig(cfg *config.Config) *llm.Client {
	settings := cfg.GetLLM()
	if settings.APIKey == "" {
		return nil
	}
	return llm.NewClient(llm.Config{
		APIKey:         settings.APIKey,
		BaseURL:        settings.BaseURL,
		Model:          settings.Model,
		Referer:        settings.Referer,
		Title:          settings.Title,
		TimeoutSeconds: settings.TimeoutSeconds,
	})
}

// Close releases the job ledger.
func (d *Driver) Close() error {
	return d.store.Close()
}

// RunReport summarizes one run. Totals are read back from the ledger after
// the stage loop, so a resumed run is judged on the whole project rather
// than on the jobs this invocation happened to execute.
type RunReport struct {
	RunID       string
	ProjectID   string
	Stages      []orchestrator.StageResult
	Completed   int
	Failed      int
	Skipped     int
	Pending     int
	SuccessRate float64
	Threshold   float64
	Duration    time.Duration
	OutputRef   string
}

// Status summarizes ledger state for one project without executing anything.
type Status struct {
	ProjectID  string
	Total      int
	Pending    int
	InProgress int
	Completed  int
	Failed     int
	Skipped    int
	StagesDone []string
	FailedJobs []FailedJob
}

// FailedJob carries the operator-facing detail for one failed job.
type FailedJob struct {
	ID       string
	Type     jobstore.Type
	Kind     string
	Message  string
	Attempts int
}

// Run loads a manifest from disk and drives the project it describes
// through every stage.
func (d *Driver) Run(ctx context.Context, manifestPath string) (*RunReport, error) {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	return d.RunManifest(ctx, m)
}

// RunManifest plans a parsed manifest into the ledger and drives it. A
// project that already has jobs is refused; Resume continues prior work.
func (d *Driver) RunManifest(ctx context.Context, m *manifest.Manifest) (*RunReport, error) {
	jobs, err := manifest.BuildJobs(m)
	if err != nil {
		return nil, err
	}

	unlock, err := d.acquireLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := d.runPreflight(ctx); err != nil {
		return nil, err
	}

	exists, err := d.store.HasJobs(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "run",
			fmt.Sprintf("project %s already has planned jobs; resume it instead", m.ProjectID), nil)
	}

	if err := d.plan(ctx, m, jobs); err != nil {
		return nil, err
	}
	return d.execute(ctx, m.ProjectID)
}

// Resume continues a project after a crash, a cancellation, or a failed
// run. All stages are replayed; settled jobs cost one ledger scan and
// nothing executes twice.
func (d *Driver) Resume(ctx context.Context, projectID string) (*RunReport, error) {
	unlock, err := d.acquireLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := d.runPreflight(ctx); err != nil {
		return nil, err
	}

	exists, err := d.store.HasJobs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "resume",
			fmt.Sprintf("project %s has no planned jobs", projectID), nil)
	}
	return d.execute(ctx, projectID)
}

// Status reports ledger counts and failure details for one project. It
// takes no lock; reads are safe alongside an active run.
func (d *Driver) Status(ctx context.Context, projectID string) (*Status, error) {
	exists, err := d.store.HasJobs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "status",
			fmt.Sprintf("project %s has no planned jobs", projectID), nil)
	}

	stats, err := d.store.Stats(ctx, projectID)
	if err != nil {
		return nil, err
	}
	failed, err := d.store.ListJobs(ctx, projectID, jobstore.StatusFailed)
	if err != nil {
		return nil, err
	}
	state, err := d.store.LoadState(ctx, projectID)
	if err != nil {
		return nil, err
	}

	status := &Status{
		ProjectID:  projectID,
		Pending:    stats[jobstore.StatusPending],
		InProgress: stats[jobstore.StatusInProgress],
		Completed:  stats[jobstore.StatusCompleted],
		Failed:     stats[jobstore.StatusFailed],
		Skipped:    stats[jobstore.StatusSkipped],
	}
	status.Total = status.Pending + status.InProgress + status.Completed + status.Failed + status.Skipped
	if state != nil {
		status.StagesDone = state.StagesDone
	}
	for _, job := range failed {
		status.FailedJobs = append(status.FailedJobs, FailedJob{
			ID:       job.ID,
			Type:     job.Type,
			Kind:     job.ErrorKind,
			Message:  job.ErrorMessage,
			Attempts: job.Attempts,
		})
	}
	return status, nil
}

// Projects lists every project present in the ledger.
func (d *Driver) Projects(ctx context.Context) ([]string, error) {
	return d.store.Projects(ctx)
}

// plan persists the job DAG plus the manifest snapshot in the first resume
// state. CreateJobs is transactional; a failed plan leaves no partial
// project behind.
func (d *Driver) plan(ctx context.Context, m *manifest.Manifest, jobs []jobstore.Job) error {
	if err := d.store.CreateJobs(ctx, m.ProjectID, jobs); err != nil {
		return err
	}

	planJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest snapshot: %w", err)
	}
	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	if _, err := d.store.SaveState(ctx, jobstore.PipelineState{
		ProjectID:  m.ProjectID,
		JobIDs:     ids,
		StagesDone: []string{StagePlan},
		Plan:       planJSON,
	}); err != nil {
		return err
	}

	d.logger.Info("stage completed",
		logging.String(logging.FieldProjectID, m.ProjectID),
		logging.String(logging.FieldStage, StagePlan),
		logging.Int("jobs", len(jobs)))
	return nil
}
