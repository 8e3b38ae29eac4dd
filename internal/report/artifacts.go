package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
)

// WriteRunArtifacts writes the analysis report, district summary and
// diagnostic log of a run into dir and returns their paths.
func WriteRunArtifacts(dir string, run *models.RunSummary, generated time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	period := fmt.Sprintf("%02d_%d", int(run.Month), run.Year)

	outputs := []struct {
		name  string
		write func(*os.File) error
	}{
		{"Metering_Report_" + period + ".txt", func(f *os.File) error { return WriteAnalysisReport(f, run, generated) }},
		{"District_Summary.txt", func(f *os.File) error { return WriteDistrictSummary(f, run, generated) }},
		{"Diagnostic_Log_" + period + ".txt", func(f *os.File) error { return WriteDiagnosticLog(f, run, generated) }},
	}

	paths := make([]string, 0, len(outputs))
	for _, o := range outputs {
		path := filepath.Join(dir, o.name)
		if err := writeFile(path, o.write); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
