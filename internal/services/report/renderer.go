// Package report renders analysis reports to markdown and writes them to disk.
package report

import (
	"fmt"
	"strings"

	"github.com/ternarybob/stockcrew/internal/models"
)

// TitleTimeFormat is the generation date format used in report titles.
const TitleTimeFormat = "2006-01-02 15:04 MST"

// Render returns the markdown form of report: an H1 title naming the ticker
// and generation time, then one H2 section per stage in pipeline order.
// Stages without a result or with blank output are omitted. Render is pure.
func Render(report *models.Report) string {
	var b strings.Builder

	title := fmt.Sprintf("# %s Investment Analysis (%s)", report.Ticker, report.GeneratedAt.Format(TitleTimeFormat))
	if report.Incomplete {
		title += " [INCOMPLETE]"
	}
	b.WriteString(title)
	b.WriteString("\n")

	for _, stage := range models.AllStages() {
		result, ok := report.Result(stage)
		if !ok {
			continue
		}
		output := strings.TrimSpace(result.OutputText)
		if output == "" {
			continue
		}

		b.WriteString("\n## ")
		b.WriteString(stageHeading(result))
		b.WriteString("\n\n")
		b.WriteString(output)
		b.WriteString("\n")
	}

	return b.String()
}

func stageHeading(result models.StageResult) string {
	heading := result.Stage.Title()
	var labels []string
	if result.Degraded {
		labels = append(labels, "degraded")
	}
	if result.Truncated {
		labels = append(labels, "truncated")
	}
	if len(labels) > 0 {
		heading += " (" + strings.Join(labels, ", ") + ")"
	}
	return heading
}
