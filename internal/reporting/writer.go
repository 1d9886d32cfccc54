package reporting

import (
	"os"
	"path/filepath"
)

// Output file names.
const (
	ReportFileName = "SESSION_REPORT.md"
	CSVFileName    = "window_records.csv"
)

// WriteFiles writes the report to dir as Markdown plus a window CSV.
// Returns the paths written.
func WriteFiles(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	mdPath := filepath.Join(dir, ReportFileName)
	if err := os.WriteFile(mdPath, []byte(RenderMarkdown(r)), 0644); err != nil {
		return nil, err
	}

	csvPath := filepath.Join(dir, CSVFileName)
	if err := os.WriteFile(csvPath, []byte(RenderCSV(r.Windows)), 0644); err != nil {
		return nil, err
	}

	return []string{mdPath, csvPath}, nil
}
