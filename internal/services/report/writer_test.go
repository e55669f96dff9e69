package report

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
)

func TestWriter_WritesMarkdown(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(common.ReportsConfig{Dir: dir, WriteIncomplete: true}, arbor.NewLogger())

	report := sampleReport()
	path, err := writer.Write(report)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "AAPL_20260302_183005.md"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Render(report), string(data))
}

func TestWriter_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(common.ReportsConfig{Dir: dir, WriteIncomplete: true}, arbor.NewLogger())
	report := sampleReport()

	first, err := writer.Write(report)
	require.NoError(t, err)
	second, err := writer.Write(report)
	require.NoError(t, err)
	third, err := writer.Write(report)
	require.NoError(t, err)

	assert.Equal(t, "AAPL_20260302_183005.md", filepath.Base(first))
	assert.Equal(t, "AAPL_20260302_183005_2.md", filepath.Base(second))
	assert.Equal(t, "AAPL_20260302_183005_3.md", filepath.Base(third))
}

func TestWriter_Incomplete(t *testing.T) {
	report := sampleReport()
	report.Incomplete = true

	t.Run("written with suffix", func(t *testing.T) {
		dir := t.TempDir()
		writer := NewWriter(common.ReportsConfig{Dir: dir, WriteIncomplete: true}, arbor.NewLogger())

		path, err := writer.Write(report)
		require.NoError(t, err)
		assert.Equal(t, "AAPL_20260302_183005_incomplete.md", filepath.Base(path))
	})

	t.Run("skipped when disabled", func(t *testing.T) {
		dir := t.TempDir()
		writer := NewWriter(common.ReportsConfig{Dir: dir, WriteIncomplete: false}, arbor.NewLogger())

		path, err := writer.Write(report)
		require.NoError(t, err)
		assert.Empty(t, path)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestWriter_ExchangeTickerFileName(t *testing.T) {
	report := sampleReport()
	report.Ticker = "ASX:BHP"
	assert.Equal(t, "ASX_BHP_20260302_183005.md", FileName(report))
}

func TestWriter_PDF(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(common.ReportsConfig{Dir: dir, PDF: true, WriteIncomplete: true}, arbor.NewLogger())

	report := sampleReport()
	report.Results[0].OutputText = "**Revenue** grew 8% — services led.\n\n| Metric | Value |\n|---|---|\n| P/E | 29.4 |\n\n- one\n- two"

	path, err := writer.Write(report)
	require.NoError(t, err)

	pdfData, err := os.ReadFile(path[:len(path)-len(".md")] + ".pdf")
	require.NoError(t, err)
	assert.True(t, len(pdfData) > 4)
	assert.Equal(t, "%PDF", string(pdfData[:4]))
}

type failingPDF struct{}

func (failingPDF) ConvertMarkdownToPDF(markdown, title string) ([]byte, error) {
	return nil, errors.New("font not found")
}

func TestWriter_PDFFailureKeepsMarkdown(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(common.ReportsConfig{Dir: dir, PDF: true, WriteIncomplete: true}, arbor.NewLogger())
	writer.pdf = failingPDF{}

	path, err := writer.Write(sampleReport())
	require.NoError(t, err)
	require.NotEmpty(t, path)
	assert.FileExists(t, path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the markdown report")
}

func TestWriteExclusive_RemovesPartialFile(t *testing.T) {
	dir := t.TempDir()

	path, err := writeExclusive(dir, "AAPL_20260302_183005", ".md", func(out io.Writer) error {
		if _, err := out.Write([]byte("# partial")); err != nil {
			return err
		}
		return errors.New("disk full")
	})
	require.Error(t, err)
	assert.Empty(t, path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// the freed name is used by the next write
	path, err = createExclusive(dir, "AAPL_20260302_183005", ".md", []byte("# full"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "AAPL_20260302_183005.md"), path)
}
