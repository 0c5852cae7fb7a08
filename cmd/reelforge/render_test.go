package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestRenderTableAlignsNumericColumns(t *testing.T) {
	out := renderTable(
		[]column{{header: "Stage"}, {header: "Count", numeric: true}},
		[][]string{{"plan", "7"}, {"video", "12"}},
	)
	for _, want := range []string{"Stage", "Count", "plan", "video"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in table output:\n%s", want, out)
		}
	}
	// Right alignment pads the short count out to the header width.
	if !strings.Contains(out, "    7") {
		t.Fatalf("expected right-aligned count:\n%s", out)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable(
		[]column{{header: "Job"}, {header: "Detail"}},
		[][]string{{"video-s1"}},
	)
	if strings.Contains(out, "<nil>") {
		t.Fatalf("short row must render empty cells:\n%s", out)
	}
}

func TestRenderTableWithoutColumns(t *testing.T) {
	if out := renderTable(nil, nil); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestWriteJSONKeepsPromptCharacters(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	payload := map[string]string{"prompt": "hero <runs> & leaps"}
	if err := writeJSON(cmd, payload); err != nil {
		t.Fatalf("writeJSON failed: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "hero <runs> & leaps") {
		t.Fatalf("expected unescaped prompt, got %q", got)
	}
	if !strings.Contains(got, "\n  \"prompt\"") {
		t.Fatalf("expected indented output, got %q", got)
	}
}
