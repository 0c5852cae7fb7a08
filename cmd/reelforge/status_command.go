package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reelforge/internal/jobstore"
	"reelforge/internal/logging"
	"reelforge/internal/pipeline"
)

type failedJobView struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Kind     string `json:"kind,omitempty"`
	Message  string `json:"message,omitempty"`
	Attempts int    `json:"attempts"`
}

type statusView struct {
	ProjectID  string          `json:"project_id"`
	Total      int             `json:"total"`
	Pending    int             `json:"pending"`
	InProgress int             `json:"in_progress"`
	Completed  int             `json:"completed"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	StagesDone []string        `json:"stages_done,omitempty"`
	FailedJobs []failedJobView `json:"failed_jobs,omitempty"`
}

func newStatusView(status *pipeline.Status) statusView {
	view := statusView{
		ProjectID:  status.ProjectID,
		Total:      status.Total,
		Pending:    status.Pending,
		InProgress: status.InProgress,
		Completed:  status.Completed,
		Failed:     status.Failed,
		Skipped:    status.Skipped,
		StagesDone: status.StagesDone,
	}
	for _, job := range status.FailedJobs {
		view.FailedJobs = append(view.FailedJobs, failedJobView{
			ID:       job.ID,
			Type:     string(job.Type),
			Kind:     job.Kind,
			Message:  job.Message,
			Attempts: job.Attempts,
		})
	}
	return view
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [project-id]",
		Short: "Show job progress for a project, or list known projects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			driver, err := pipeline.New(cfg, logging.NewNop())
			if err != nil {
				return err
			}
			defer driver.Close()

			if len(args) == 0 {
				return renderProjectList(cmd, driver, jsonOutput)
			}

			status, err := driver.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, newStatusView(status))
			}
			renderStatus(cmd, status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

func renderProjectList(cmd *cobra.Command, driver *pipeline.Driver, jsonOutput bool) error {
	projects, err := driver.Projects(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd, map[string][]string{"projects": projects})
	}
	out := cmd.OutOrStdout()
	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects in the ledger")
		return nil
	}
	for _, project := range projects {
		fmt.Fprintln(out, project)
	}
	return nil
}

func renderStatus(cmd *cobra.Command, status *pipeline.Status) {
	out := cmd.OutOrStdout()

	rows := [][]string{
		{string(jobstore.StatusPending), strconv.Itoa(status.Pending)},
		{string(jobstore.StatusInProgress), strconv.Itoa(status.InProgress)},
		{string(jobstore.StatusCompleted), strconv.Itoa(status.Completed)},
		{string(jobstore.StatusFailed), strconv.Itoa(status.Failed)},
		{string(jobstore.StatusSkipped), strconv.Itoa(status.Skipped)},
	}
	fmt.Fprintf(out, "Project %s: %d jobs\n", status.ProjectID, status.Total)
	fmt.Fprintln(out, renderTable([]column{{header: "Status"}, {header: "Count", numeric: true}}, rows))

	if len(status.StagesDone) > 0 {
		fmt.Fprintf(out, "Stages done: %s\n", strings.Join(status.StagesDone, ", "))
	}

	if len(status.FailedJobs) == 0 {
		return
	}
	fmt.Fprintln(out, "Failed jobs:")
	fmt.Fprintln(out, renderTable(
		[]column{{header: "Job"}, {header: "Type"}, {header: "Kind"}, {header: "Attempts", numeric: true}, {header: "Error"}},
		buildFailedJobRows(status.FailedJobs),
	))
}
