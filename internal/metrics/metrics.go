package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome values recorded against a job attempt.
const (
	OutcomeAttempt = "attempt"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkip    = "skip"
)

// Record is one ledger line. Records are append-only; a run only ever adds
// lines for its own attempts.
type Record struct {
	Timestamp      time.Time `json:"timestamp"`
	ProjectID      string    `json:"project_id"`
	JobID          string    `json:"job_id"`
	JobType        string    `json:"job_type"`
	Workflow       string    `json:"workflow,omitempty"`
	Outcome        string    `json:"outcome"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	Attempt        int       `json:"attempt"`
	LatencySeconds float64   `json:"latency_seconds,omitempty"`
}

// WorkflowStats aggregates outcomes for one workflow type.
type WorkflowStats struct {
	Attempts          int     `json:"attempts"`
	Successes         int     `json:"successes"`
	Failures          int     `json:"failures"`
	AvgLatencySeconds float64 `json:"avg_latency_seconds"`
}

// Summary folds the ledger for human and JSON reporting.
type Summary struct {
	Attempts    int                      `json:"attempts"`
	Successes   int                      `json:"successes"`
	Failures    int                      `json:"failures"`
	Skips       int                      `json:"skips"`
	SuccessRate float64                  `json:"success_rate"`
	Workflows   map[string]WorkflowStats `json:"workflows"`
}

// Collector accumulates records and mirrors them onto Prometheus
// instruments. Safe for concurrent use by the worker pool.
type Collector struct {
	mu      sync.Mutex
	records []Record

	registry    *prometheus.Registry
	jobs        *prometheus.CounterVec
	selections  *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	pending     prometheus.Gauge
	inFlight    prometheus.Gauge
}

// NewCollector builds an empty collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelforge_jobs_total",
			Help: "Job attempts and outcomes by job type.",
		}, []string{"job_type", "outcome"}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelforge_workflow_selected_total",
			Help: "Workflow selections by strategy.",
		}, []string{"workflow"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reelforge_job_duration_seconds",
			Help:    "Wall-clock job duration by job type.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
		}, []string{"job_type"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reelforge_jobs_pending",
			Help: "Jobs currently waiting for dependencies or a worker.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reelforge_jobs_in_flight",
			Help: "Jobs currently executing.",
		}),
	}
	c.registry.MustRegister(c.jobs, c.selections, c.jobDuration, c.pending, c.inFlight)
	return c
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordAttempt notes a dispatch.
func (c *Collector) RecordAttempt(projectID, jobID, jobType string, attempt int) {
	c.append(Record{
		Timestamp: time.Now().UTC(),
		ProjectID: projectID,
		JobID:     jobID,
		JobType:   jobType,
		Outcome:   OutcomeAttempt,
		Attempt:   attempt,
	})
	c.jobs.WithLabelValues(jobType, OutcomeAttempt).Inc()
}

// RecordOutcome notes how a dispatch ended. Workflow is empty for non-video
// jobs; errorKind is empty on success.
func (c *Collector) RecordOutcome(projectID, jobID, jobType, workflow, outcome, errorKind string, attempt int, latency time.Duration) {
	c.append(Record{
		Timestamp:      time.Now().UTC(),
		ProjectID:      projectID,
		JobID:          jobID,
		JobType:        jobType,
		Workflow:       workflow,
		Outcome:        outcome,
		ErrorKind:      errorKind,
		Attempt:        attempt,
		LatencySeconds: latency.Seconds(),
	})
	c.jobs.WithLabelValues(jobType, outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomeFailure {
		c.jobDuration.WithLabelValues(jobType).Observe(latency.Seconds())
	}
}

// RecordSelection notes a workflow classification.
func (c *Collector) RecordSelection(workflow string) {
	c.selections.WithLabelValues(workflow).Inc()
}

// SetQueueDepth updates the pending and in-flight gauges.
func (c *Collector) SetQueueDepth(pending, inFlight int) {
	c.pending.Set(float64(pending))
	c.inFlight.Set(float64(inFlight))
}

func (c *Collector) append(record Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
}

// Records returns a copy of the ledger.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Summary folds the collector's ledger into per-workflow statistics.
func (c *Collector) Summary() Summary {
	return Summarize(c.Records())
}

// Summarize folds ledger records into per-workflow statistics. The success
// rate counts skips as unmet work, matching the run gate.
func Summarize(records []Record) Summary {
	summary := Summary{Workflows: make(map[string]WorkflowStats)}
	latencyTotals := make(map[string]float64)
	latencyCounts := make(map[string]int)

	for _, record := range records {
		stats := summary.Workflows[record.Workflow]
		switch record.Outcome {
		case OutcomeAttempt:
			summary.Attempts++
			if record.Workflow != "" {
				stats.Attempts++
			}
		case OutcomeSuccess:
			summary.Successes++
			if record.Workflow != "" {
				stats.Successes++
				latencyTotals[record.Workflow] += record.LatencySeconds
				latencyCounts[record.Workflow]++
			}
		case OutcomeFailure:
			summary.Failures++
			if record.Workflow != "" {
				stats.Failures++
				latencyTotals[record.Workflow] += record.LatencySeconds
				latencyCounts[record.Workflow]++
			}
		case OutcomeSkip:
			summary.Skips++
		}
		if record.Workflow != "" {
			summary.Workflows[record.Workflow] = stats
		}
	}

	for workflow, stats := range summary.Workflows {
		if count := latencyCounts[workflow]; count > 0 {
			stats.AvgLatencySeconds = latencyTotals[workflow] / float64(count)
			summary.Workflows[workflow] = stats
		}
	}

	settled := summary.Successes + summary.Failures + summary.Skips
	if settled > 0 {
		summary.SuccessRate = float64(summary.Successes) / float64(settled)
	}
	return summary
}

// Export writes the ledger as JSON Lines.
func (c *Collector) Export(w io.Writer) error {
	encoder := json.NewEncoder(w)
	for _, record := range c.Records() {
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("metrics: encode record: %w", err)
		}
	}
	return nil
}

// ExportFile appends the ledger to the project's metrics file. Existing
// lines from earlier runs are preserved.
func (c *Collector) ExportFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics: create export dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("metrics: open export file: %w", err)
	}
	if err := c.Export(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReadFile loads an exported ledger back into records. Exports append
// across runs, so the result may span several runs of one project.
func ReadFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("metrics: open export file: %w", err)
	}
	defer file.Close()

	var records []Record
	decoder := json.NewDecoder(file)
	for {
		var record Record
		if err := decoder.Decode(&record); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("metrics: decode record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}
