package preflight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/testsupport"
	"reelforge/internal/workflow"
)

func healthyBackend(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func healthyLLM(t *testing.T) *httptest.Server {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": `{"ok": true}`}, "finish_reason": "stop"},
		},
	})
	if err != nil {
		t.Fatalf("marshal chat body: %v", err)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(body)
	}))
}

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckGeneration_OK(t *testing.T) {
	srv := healthyBackend(t)
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithGenerationBaseURL(srv.URL))
	result := CheckGeneration(context.Background(), cfg)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckGeneration_Unreachable(t *testing.T) {
	srv := healthyBackend(t)
	deadURL := srv.URL
	srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithGenerationBaseURL(deadURL))
	result := CheckGeneration(context.Background(), cfg)
	if result.Passed {
		t.Fatal("expected failure for unreachable backend")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckGeneration_MissingURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Generation.BaseURL = ""
	result := CheckGeneration(context.Background(), cfg)
	if result.Passed {
		t.Fatal("expected failure for missing base URL")
	}
}

func TestCheckLLM_MissingKey(t *testing.T) {
	result := CheckLLM(context.Background(), "test", config.LLMConfig{})
	if result.Passed {
		t.Fatal("expected failure for missing key")
	}
	if result.Detail != "API key missing" {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckLLM_OK(t *testing.T) {
	srv := healthyLLM(t)
	defer srv.Close()

	result := CheckLLM(context.Background(), "test", config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
	})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_RuleModeSkipsLLM(t *testing.T) {
	srv := healthyBackend(t)
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithGenerationBaseURL(srv.URL))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg)
	// Data dir, cache dir, and generation backend; no LLM in the default mode.
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
		if r.Name == "Workflow selector LLM" {
			t.Error("LLM check should be skipped outside llm_intelligent mode")
		}
	}
}

func TestRunAll_IncludesLLMWhenIntelligent(t *testing.T) {
	srv := healthyBackend(t)
	defer srv.Close()

	cfg := testsupport.NewConfig(t,
		testsupport.WithGenerationBaseURL(srv.URL),
		testsupport.WithSelectionMode(workflow.ModeLLMIntelligent),
	)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg)
	found := false
	for _, r := range results {
		if r.Name == "Workflow selector LLM" {
			found = true
			if r.Passed {
				t.Error("expected LLM check to fail without an API key")
			}
		}
	}
	if !found {
		t.Fatal("expected LLM check in results")
	}
}

func TestCheckLLMFromConfig_NotUsed(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSelectionMode(workflow.ModeConfigDefault))
	result := CheckLLMFromConfig(cfg)
	if !result.Passed {
		t.Fatalf("expected pass for rule-based mode, got: %s", result.Detail)
	}
}

func TestCheckLLMFromConfig_MissingKey(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSelectionMode(workflow.ModeLLMIntelligent))
	result := CheckLLMFromConfig(cfg)
	if result.Passed {
		t.Fatal("expected failure for missing key")
	}
}
