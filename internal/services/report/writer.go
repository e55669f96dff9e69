package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/models"
)

// FileTimeFormat is the timestamp format used in report file names.
const FileTimeFormat = "20060102_150405"

// maxCollisionSuffix bounds the numeric suffixes tried for one file name.
const maxCollisionSuffix = 1000

// pdfConverter converts a markdown report to PDF bytes.
type pdfConverter interface {
	ConvertMarkdownToPDF(markdown, title string) ([]byte, error)
}

// Writer writes rendered reports into a directory without ever overwriting
// an existing file.
type Writer struct {
	dir             string
	writeIncomplete bool
	pdf             pdfConverter
	logger          arbor.ILogger
}

// NewWriter creates a writer for config.Dir. A PDF copy is written next to
// each markdown report when config.PDF is set.
func NewWriter(config common.ReportsConfig, logger arbor.ILogger) *Writer {
	w := &Writer{
		dir:             config.Dir,
		writeIncomplete: config.WriteIncomplete,
		logger:          logger,
	}
	if config.PDF {
		w.pdf = NewPDFConverter(logger)
	}
	return w
}

// Write renders report and stores it as <dir>/<TICKER>_<YYYYmmdd_HHMMSS>.md,
// inserting "_incomplete" before the extension for incomplete reports. It
// returns the markdown path, or "" when incomplete reports are not written.
// The PDF copy is best effort: a PDF failure is logged and the markdown path
// is still returned without error.
func (w *Writer) Write(report *models.Report) (string, error) {
	if report.Incomplete && !w.writeIncomplete {
		w.logger.Info().Str("ticker", report.Ticker).Msg("Skipping incomplete report (reports.write_incomplete=false)")
		return "", nil
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	markdown := Render(report)
	base := baseName(report)

	path, err := createExclusive(w.dir, base, ".md", []byte(markdown))
	if err != nil {
		return "", err
	}

	w.logger.Info().
		Str("ticker", report.Ticker).
		Str("path", path).
		Int("stages", len(report.Results)).
		Msg("Report written")

	if w.pdf != nil {
		if pdfPath, err := w.writePDF(path, markdown); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("PDF copy not written, markdown report kept")
		} else {
			w.logger.Info().Str("path", pdfPath).Msg("PDF report written")
		}
	}

	return path, nil
}

func (w *Writer) writePDF(markdownPath, markdown string) (string, error) {
	pdfBytes, err := w.pdf.ConvertMarkdownToPDF(markdown, strings.TrimPrefix(firstLine(markdown), "# "))
	if err != nil {
		return "", fmt.Errorf("failed to render PDF: %w", err)
	}
	pdfBase := strings.TrimSuffix(filepath.Base(markdownPath), ".md")
	return createExclusive(w.dir, pdfBase, ".pdf", pdfBytes)
}

// FileName returns the file name a report is first tried under.
func FileName(report *models.Report) string {
	return baseName(report) + ".md"
}

func baseName(report *models.Report) string {
	ticker := report.Ticker
	if parsed, err := common.ParseTicker(report.Ticker); err == nil {
		ticker = parsed.FileSafe()
	}
	name := ticker + "_" + report.GeneratedAt.Format(FileTimeFormat)
	if report.Incomplete {
		name += "_incomplete"
	}
	return name
}

// createExclusive writes data to dir/base+ext, or dir/base_N+ext for the
// first free N when the name is taken.
func createExclusive(dir, base, ext string, data []byte) (string, error) {
	return writeExclusive(dir, base, ext, func(out io.Writer) error {
		_, err := out.Write(data)
		return err
	})
}

// writeExclusive creates the first free name and fills it with write. A file
// that cannot be completely written is removed.
func writeExclusive(dir, base, ext string, write func(io.Writer) error) (string, error) {
	for n := 1; n <= maxCollisionSuffix; n++ {
		name := base + ext
		if n > 1 {
			name = fmt.Sprintf("%s_%d%s", base, n, ext)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create report file: %w", err)
		}

		if err := write(f); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to write report file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("failed to close report file: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free report file name for %s%s", base, ext)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
