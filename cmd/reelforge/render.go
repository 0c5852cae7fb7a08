package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"reelforge/internal/pipeline"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
)

// writeJSON encodes v as indented JSON to the command's stdout. HTML
// escaping is off so prompts and error messages survive round-trips.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// stageView and reportView shape --json output; durations become seconds so
// consumers do not parse Go duration strings.
type stageView struct {
	Stage           string  `json:"stage"`
	Completed       int     `json:"completed"`
	Failed          int     `json:"failed"`
	Skipped         int     `json:"skipped"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type reportView struct {
	RunID           string      `json:"run_id"`
	ProjectID       string      `json:"project_id"`
	Stages          []stageView `json:"stages"`
	Completed       int         `json:"completed"`
	Failed          int         `json:"failed"`
	Skipped         int         `json:"skipped"`
	Pending         int         `json:"pending"`
	SuccessRate     float64     `json:"success_rate"`
	Threshold       float64     `json:"threshold"`
	DurationSeconds float64     `json:"duration_seconds"`
	OutputRef       string      `json:"output_ref,omitempty"`
	Passed          bool        `json:"passed"`
}

func newReportView(report *pipeline.RunReport, passed bool) reportView {
	view := reportView{
		RunID:           report.RunID,
		ProjectID:       report.ProjectID,
		Completed:       report.Completed,
		Failed:          report.Failed,
		Skipped:         report.Skipped,
		Pending:         report.Pending,
		SuccessRate:     report.SuccessRate,
		Threshold:       report.Threshold,
		DurationSeconds: report.Duration.Seconds(),
		OutputRef:       report.OutputRef,
		Passed:          passed,
	}
	for _, stage := range report.Stages {
		view.Stages = append(view.Stages, stageView{
			Stage:           stage.Stage,
			Completed:       stage.Completed,
			Failed:          stage.Failed,
			Skipped:         stage.Skipped,
			DurationSeconds: stage.Duration.Seconds(),
		})
	}
	return view
}

func buildStageRows(report *pipeline.RunReport) [][]string {
	rows := make([][]string, 0, len(report.Stages))
	for _, stage := range report.Stages {
		rows = append(rows, []string{
			stage.Stage,
			strconv.Itoa(stage.Completed),
			strconv.Itoa(stage.Failed),
			strconv.Itoa(stage.Skipped),
			stage.Duration.Round(time.Millisecond).String(),
		})
	}
	return rows
}

func buildFailedJobRows(failed []pipeline.FailedJob) [][]string {
	rows := make([][]string, 0, len(failed))
	for _, job := range failed {
		rows = append(rows, []string{
			job.ID,
			string(job.Type),
			job.Kind,
			strconv.Itoa(job.Attempts),
			job.Message,
		})
	}
	return rows
}

func renderRunReport(out io.Writer, report *pipeline.RunReport, passed bool) {
	if len(report.Stages) > 0 {
		fmt.Fprintln(out, renderTable(
			[]column{{header: "Stage"}, {header: "Completed", numeric: true}, {header: "Failed", numeric: true}, {header: "Skipped", numeric: true}, {header: "Elapsed", numeric: true}},
			buildStageRows(report),
		))
	}

	fmt.Fprintf(out, "Jobs: %d completed, %d failed, %d skipped, %d pending\n",
		report.Completed, report.Failed, report.Skipped, report.Pending)
	fmt.Fprintf(out, "Success rate: %s (threshold %s)\n",
		formatRate(report.SuccessRate), formatRate(report.Threshold))
	if report.OutputRef != "" {
		fmt.Fprintf(out, "Final deliverable: %s\n", report.OutputRef)
	}

	verdict := "Result: FAILED"
	color := ansiRed
	if passed {
		verdict = "Result: PASSED"
		color = ansiGreen
	}
	if shouldColorize(out) {
		verdict = color + verdict + ansiReset
	}
	fmt.Fprintln(out, verdict)
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}
