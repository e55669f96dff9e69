package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/stockcrew/internal/models"
	"github.com/ternarybob/stockcrew/internal/services/report"
	"gopkg.in/yaml.v3"
)

// formatAnalysis returns the rendered report, preceded by the file location
// and, for incomplete runs, the failure.
func formatAnalysis(r *models.Report, path string, runErr error) string {
	var sb strings.Builder
	if path != "" {
		sb.WriteString(fmt.Sprintf("**Report file:** %s\n", path))
	}
	if runErr != nil {
		sb.WriteString(fmt.Sprintf("**Incomplete:** %v\n", runErr))
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(report.Render(r))
	return sb.String()
}

// formatSnapshot renders the snapshot as YAML. Price bars are omitted.
func formatSnapshot(snapshot *models.MarketSnapshot) (string, error) {
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// formatRuns formats run history as markdown
func formatRuns(ticker string, runs []*models.RunRecord) string {
	var sb strings.Builder
	if ticker != "" {
		sb.WriteString(fmt.Sprintf("## Runs for %s (%d results)\n\n", strings.ToUpper(ticker), len(runs)))
	} else {
		sb.WriteString(fmt.Sprintf("## Recent Runs (%d results)\n\n", len(runs)))
	}

	if len(runs) == 0 {
		sb.WriteString("No runs recorded.\n")
		return sb.String()
	}

	for _, run := range runs {
		sb.WriteString(fmt.Sprintf("### %s %s\n", run.Ticker, run.StartedAt.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("**ID:** %s\n", run.ID))
		sb.WriteString(fmt.Sprintf("**Status:** %s (%d stages)\n", run.Status, len(run.Stages)))
		sb.WriteString(fmt.Sprintf("**Model:** %s/%s\n", run.Provider, run.Model))
		if run.FailedStage != "" {
			sb.WriteString(fmt.Sprintf("**Failed at:** %s\n", run.FailedStage))
		}
		if run.ReportPath != "" {
			sb.WriteString(fmt.Sprintf("**Report:** %s\n", run.ReportPath))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
