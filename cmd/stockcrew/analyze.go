package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/stockcrew/internal/app"
	"github.com/ternarybob/stockcrew/internal/models"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [TICKER]",
	Short: "Analyse a ticker through every stage and write the report",
	Long:  `Validates the ticker, fetches one market snapshot, runs the five analysis stages in order and writes a markdown report. The ticker is read from stdin when omitted.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnalyze,
}

var (
	flagPDF        bool
	flagNoMemory   bool
	flagReportsDir string
)

func init() {
	analyzeCmd.Flags().BoolVar(&flagPDF, "pdf", false, "Also write a PDF copy of the report")
	analyzeCmd.Flags().BoolVar(&flagNoMemory, "no-memory", false, "Do not send prior stage exchanges as conversation memory")
	analyzeCmd.Flags().StringVarP(&flagReportsDir, "output", "o", "", "Reports directory (overrides config)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var ticker string
	if len(args) == 1 {
		ticker = args[0]
	} else {
		var err error
		ticker, err = promptTicker(cmd.InOrStdin(), out)
		if err != nil {
			return err
		}
	}

	total := len(models.AllStages())
	completed := 0
	progress := func(result models.StageResult) {
		completed++
		note := ""
		if result.Degraded {
			note = " (degraded)"
		}
		fmt.Fprintf(out, "[%d/%d] %s done in %s%s\n", completed, total, result.Stage.Title(), result.Duration.Round(time.Millisecond), note)
	}

	application, err := app.New(config, logger, app.WithStageHook(progress))
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	report, path, err := application.Analyze(cmd.Context(), ticker)
	if report != nil {
		if degraded := report.DegradedStages(); len(degraded) > 0 {
			names := make([]string, len(degraded))
			for i, s := range degraded {
				names[i] = s.Title()
			}
			fmt.Fprintf(out, "Warning: degraded output from %s\n", strings.Join(names, ", "))
		}
	}

	if err != nil {
		var runErr *models.RunError
		if errors.As(err, &runErr) && runErr.Stage != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Stage %s failed: %v\n", runErr.Stage.Title(), runErr.Err)
		}
		if path != "" {
			fmt.Fprintf(out, "Incomplete report written to %s\n", path)
		}
		return err
	}

	if path != "" {
		fmt.Fprintf(out, "Report written to %s\n", path)
	}
	return nil
}

// promptTicker reads one ticker line. Validation is left to the pipeline.
func promptTicker(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter a stock ticker (e.g. AAPL, ASX:BHP): ")
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read ticker: %w", err)
		}
		return "", nil
	}
	return strings.TrimSpace(scanner.Text()), nil
}
