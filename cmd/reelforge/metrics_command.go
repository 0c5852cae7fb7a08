package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"reelforge/internal/metrics"
)

func newMetricsCommand(ctx *commandContext) *cobra.Command {
	metricsCmd := &cobra.Command{
		Use:   "metrics",
		Short: "Inspect per-project generation metrics",
	}

	metricsCmd.AddCommand(newMetricsSummaryCommand(ctx))
	metricsCmd.AddCommand(newMetricsExportCommand(ctx))

	return metricsCmd
}

func newMetricsSummaryCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "summary <project-id>",
		Short: "Summarize workflow outcomes recorded for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := loadProjectMetrics(ctx, args[0])
			if err != nil {
				return err
			}
			summary := metrics.Summarize(records)
			if jsonOutput {
				return writeJSON(cmd, summary)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project %s: %d attempts, %d successes, %d failures, %d skips\n",
				args[0], summary.Attempts, summary.Successes, summary.Failures, summary.Skips)
			fmt.Fprintf(out, "Success rate: %s\n", formatRate(summary.SuccessRate))

			if len(summary.Workflows) == 0 {
				return nil
			}
			workflows := make([]string, 0, len(summary.Workflows))
			for workflow := range summary.Workflows {
				workflows = append(workflows, workflow)
			}
			sort.Strings(workflows)

			rows := make([][]string, 0, len(workflows))
			for _, workflow := range workflows {
				stats := summary.Workflows[workflow]
				rows = append(rows, []string{
					workflow,
					strconv.Itoa(stats.Attempts),
					strconv.Itoa(stats.Successes),
					strconv.Itoa(stats.Failures),
					fmt.Sprintf("%.1fs", stats.AvgLatencySeconds),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{{header: "Workflow"}, {header: "Attempts", numeric: true}, {header: "Successes", numeric: true}, {header: "Failures", numeric: true}, {header: "Avg latency", numeric: true}},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the summary as JSON")
	return cmd
}

func newMetricsExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <project-id>",
		Short: "Stream a project's raw metrics ledger as JSON Lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := projectMetricsPath(ctx, args[0])
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("no metrics recorded for project %s", args[0])
				}
				return fmt.Errorf("open metrics ledger: %w", err)
			}
			defer file.Close()

			_, err = io.Copy(cmd.OutOrStdout(), file)
			return err
		},
	}
}

func projectMetricsPath(ctx *commandContext, projectID string) (string, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.MetricsDir(), projectID+".jsonl"), nil
}

func loadProjectMetrics(ctx *commandContext, projectID string) ([]metrics.Record, error) {
	path, err := projectMetricsPath(ctx, projectID)
	if err != nil {
		return nil, err
	}
	records, err := metrics.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no metrics recorded for project %s", projectID)
		}
		return nil, err
	}
	return records, nil
}
