package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reelforge/internal/logging"
	"reelforge/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run <manifest.json>",
		Short: "Plan a manifest and generate every asset it describes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, cleanup, err := ctx.openDriver()
			if err != nil {
				return err
			}
			defer cleanup()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report, runErr := driver.Run(runCtx, args[0])
			return finishRun(cmd, report, runErr, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the run report as JSON")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "resume <project-id>",
		Short: "Continue a project from its last persisted state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, cleanup, err := ctx.openDriver()
			if err != nil {
				return err
			}
			defer cleanup()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report, runErr := driver.Resume(runCtx, args[0])
			return finishRun(cmd, report, runErr, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the run report as JSON")
	return cmd
}

// finishRun renders whatever report exists before surfacing the error, so a
// below-threshold run still shows its full stage breakdown while the process
// exits non-zero.
func finishRun(cmd *cobra.Command, report *pipeline.RunReport, runErr error, jsonOutput bool) error {
	if report != nil {
		if jsonOutput {
			if err := writeJSON(cmd, newReportView(report, runErr == nil)); err != nil {
				return err
			}
		} else {
			renderRunReport(cmd.OutOrStdout(), report, runErr == nil)
		}
	}
	return runErr
}

// openDriver assembles a pipeline driver with the configured logger. The
// returned cleanup closes the job ledger.
func (c *commandContext) openDriver() (*pipeline.Driver, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	driver, err := pipeline.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return driver, func() { _ = driver.Close() }, nil
}
