package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelforge/internal/jobstore"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage a project's job ledger",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List jobs, optionally filtered by status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFilters(statusFilters)
			if err != nil {
				return err
			}

			store, cleanup, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			jobs, err := store.ListJobs(cmd.Context(), args[0], statuses...)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, jobs)
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs matched")
				return nil
			}
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					job.ID,
					string(job.Type),
					string(job.Status),
					strconv.Itoa(job.Attempts),
					job.UpdatedAt.Local().Format(time.DateTime),
					jobDetail(job),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{{header: "Job"}, {header: "Type"}, {header: "Status"}, {header: "Attempts", numeric: true}, {header: "Updated"}, {header: "Detail"}},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit jobs as JSON")
	return cmd
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <project-id> [job-id...]",
		Short: "Return failed jobs to pending with a fresh attempt budget",
		Long: "Return failed jobs to pending with a fresh attempt budget.\n" +
			"Without job ids every failed job in the project is retried.\n" +
			"Run resume afterwards to execute them.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			tracker := jobstore.NewTracker(store)
			reopened, err := tracker.RetryFailed(cmd.Context(), args[0], args[1:]...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if reopened == 0 {
				fmt.Fprintln(out, "No failed jobs matched")
				return nil
			}
			fmt.Fprintf(out, "Reopened %d job(s); run `reelforge resume %s` to execute them\n", reopened, args[0])
			return nil
		},
	}
}

// openStore opens the job ledger directly, without the run lock. Reads and
// operator retries are safe alongside an active run.
func (c *commandContext) openStore() (*jobstore.Store, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := jobstore.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func parseStatusFilters(filters []string) ([]jobstore.Status, error) {
	statuses := make([]jobstore.Status, 0, len(filters))
	for _, filter := range filters {
		status, err := jobstore.ParseStatus(filter)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// jobDetail picks the most useful single column for a job row: the error for
// failures, the output for completions.
func jobDetail(job *jobstore.Job) string {
	switch job.Status {
	case jobstore.StatusFailed, jobstore.StatusSkipped:
		return truncateDetail(job.ErrorMessage, 60)
	case jobstore.StatusCompleted:
		return truncateDetail(job.OutputRef, 60)
	default:
		if len(job.DependsOn) > 0 {
			return "waiting on " + strings.Join(job.DependsOn, ", ")
		}
		return ""
	}
}

func truncateDetail(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max-1] + "…"
}
