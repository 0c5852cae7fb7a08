package metrics_test

import (
	"bufio"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelforge/internal/metrics"
)

func TestSummaryFoldsOutcomes(t *testing.T) {
	collector := metrics.NewCollector()

	collector.RecordAttempt("proj", "vid-a", "video", 0)
	collector.RecordOutcome("proj", "vid-a", "video", "interpolation", metrics.OutcomeSuccess, "", 0, 2*time.Second)
	collector.RecordAttempt("proj", "vid-b", "video", 0)
	collector.RecordOutcome("proj", "vid-b", "video", "interpolation", metrics.OutcomeSuccess, "", 0, 4*time.Second)
	collector.RecordAttempt("proj", "vid-c", "video", 0)
	collector.RecordOutcome("proj", "vid-c", "video", "ingredients", metrics.OutcomeFailure, "transient", 0, time.Second)
	collector.RecordOutcome("proj", "vid-d", "video", "", metrics.OutcomeSkip, "skipped_dependency", 0, 0)

	summary := collector.Summary()
	if summary.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", summary.Attempts)
	}
	if summary.Successes != 2 || summary.Failures != 1 || summary.Skips != 1 {
		t.Fatalf("outcome counts wrong: %+v", summary)
	}
	if summary.SuccessRate != 0.5 {
		t.Fatalf("success rate = %v, want 0.5", summary.SuccessRate)
	}

	interp := summary.Workflows["interpolation"]
	if interp.Successes != 2 {
		t.Fatalf("interpolation successes = %d, want 2", interp.Successes)
	}
	if interp.AvgLatencySeconds != 3 {
		t.Fatalf("interpolation avg latency = %v, want 3", interp.AvgLatencySeconds)
	}
}

func TestExportFileAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics", "proj.jsonl")

	first := metrics.NewCollector()
	first.RecordAttempt("proj", "vid-a", "video", 0)
	if err := first.ExportFile(path); err != nil {
		t.Fatalf("first export failed: %v", err)
	}

	second := metrics.NewCollector()
	second.RecordAttempt("proj", "vid-a", "video", 1)
	second.RecordOutcome("proj", "vid-a", "video", "interpolation", metrics.OutcomeSuccess, "", 1, time.Second)
	if err := second.ExportFile(path); err != nil {
		t.Fatalf("second export failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export failed: %v", err)
	}
	defer file.Close()

	var records []metrics.Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record metrics.Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 ledger lines, got %d", len(records))
	}
	if records[0].Attempt != 0 || records[1].Attempt != 1 {
		t.Fatalf("earlier run's lines must be preserved in order: %+v", records)
	}
}

func TestReadFileFoldsIntoSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proj.jsonl")

	collector := metrics.NewCollector()
	collector.RecordAttempt("proj", "vid-a", "video", 0)
	collector.RecordOutcome("proj", "vid-a", "video", "text_to_video", metrics.OutcomeSuccess, "", 0, time.Second)
	collector.RecordOutcome("proj", "vid-b", "video", "ingredients", metrics.OutcomeFailure, "transient", 2, time.Second)
	if err := collector.ExportFile(path); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	records, err := metrics.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	summary := metrics.Summarize(records)
	if summary.Successes != 1 || summary.Failures != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.SuccessRate != 0.5 {
		t.Fatalf("success rate = %v, want 0.5", summary.SuccessRate)
	}
}

func TestReadFileMissingPath(t *testing.T) {
	if _, err := metrics.ReadFile(filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Fatal("expected error for missing export")
	}
}

func TestHandlerServesInstruments(t *testing.T) {
	collector := metrics.NewCollector()
	collector.RecordAttempt("proj", "vid-a", "video", 0)
	collector.RecordSelection("interpolation")
	collector.SetQueueDepth(3, 1)

	recorder := httptest.NewRecorder()
	collector.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	body := recorder.Body.String()
	for _, metric := range []string{
		`reelforge_jobs_total{job_type="video",outcome="attempt"} 1`,
		`reelforge_workflow_selected_total{workflow="interpolation"} 1`,
		"reelforge_jobs_pending 3",
		"reelforge_jobs_in_flight 1",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("missing %q in exposition:\n%s", metric, body)
		}
	}
}

func TestCollectorsDoNotShareRegistries(t *testing.T) {
	a := metrics.NewCollector()
	b := metrics.NewCollector()
	a.RecordAttempt("proj", "vid-a", "video", 0)

	recorder := httptest.NewRecorder()
	b.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(recorder.Body.String(), `outcome="attempt"} 1`) {
		t.Fatal("collector b must not see collector a's samples")
	}
}
