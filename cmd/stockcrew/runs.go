package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/stockcrew/internal/app"
	"github.com/ternarybob/stockcrew/internal/models"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded analysis runs",
	Args:  cobra.NoArgs,
	RunE:  runListRuns,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one recorded run with its inference calls",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var (
	runsTicker string
	runsLimit  int
)

func init() {
	runsCmd.Flags().StringVar(&runsTicker, "ticker", "", "Only runs for this ticker")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list")
	runsCmd.AddCommand(runsShowCmd)
}

func runListRuns(cmd *cobra.Command, args []string) error {
	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	runs, err := application.ListRuns(cmd.Context(), runsTicker, runsLimit)
	if err != nil {
		return err
	}
	writeRunTable(cmd.OutOrStdout(), runs)
	return nil
}

func runShowRun(cmd *cobra.Command, args []string) error {
	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	run, audit, err := application.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	writeRunDetail(cmd.OutOrStdout(), run, audit)
	return nil
}

func writeRunTable(out io.Writer, runs []*models.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTICKER\tSTATUS\tSTARTED\tSTAGES\tMODEL")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			run.ID, run.Ticker, run.Status, run.StartedAt.Format(time.DateTime), len(run.Stages), run.Model)
	}
	tw.Flush()
}

func writeRunDetail(out io.Writer, run *models.RunRecord, audit []*models.InferenceAudit) {
	fmt.Fprintf(out, "Run:        %s\n", run.ID)
	fmt.Fprintf(out, "Ticker:     %s\n", run.Ticker)
	fmt.Fprintf(out, "Status:     %s\n", run.Status)
	fmt.Fprintf(out, "Model:      %s/%s\n", run.Provider, run.Model)
	fmt.Fprintf(out, "Started:    %s\n", run.StartedAt.Format(time.RFC3339))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(out, "Duration:   %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(out, "VaR:        %.2f%% (volatility %.2f%%)\n", run.VaRPercent, run.Volatility*100)
	if run.FailedStage != "" {
		fmt.Fprintf(out, "Failed at:  %s\n", run.FailedStage)
	}
	if run.Failure != "" {
		fmt.Fprintf(out, "Failure:    %s\n", run.Failure)
	}
	if run.ReportPath != "" {
		fmt.Fprintf(out, "Report:     %s\n", run.ReportPath)
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tATTEMPTS\tCHARS\tDURATION\tFLAGS")
	for _, s := range run.Stages {
		flags := ""
		if s.Degraded {
			flags += "degraded "
		}
		if s.Truncated {
			flags += "truncated"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", s.Stage, s.Attempts, s.OutputChars, s.Duration.Round(time.Millisecond), flags)
	}
	tw.Flush()

	if len(audit) == 0 {
		return
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tATTEMPT\tPROMPT\tOUTPUT\tMS\tERROR")
	for _, a := range audit {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
			a.Timestamp.Format(time.TimeOnly), a.Attempt, a.PromptChars, a.OutputChars, a.DurationMs, a.Error)
	}
	tw.Flush()
}
