// Package report renders run results as text reports, console tables and
// per-block CSV and Parquet exports.
package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
)

const (
	generatedLayout = "2006-01-02 15:04:05"
	ruleWidth       = 80
)

var rule = strings.Repeat("=", ruleWidth)

// textWriter formats numbers with thousands separators and remembers the
// first write error.
type textWriter struct {
	w   *bufio.Writer
	p   *message.Printer
	err error
}

func newTextWriter(w io.Writer) *textWriter {
	return &textWriter{w: bufio.NewWriter(w), p: message.NewPrinter(language.English)}
}

func (t *textWriter) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = t.p.Fprintf(t.w, format, args...)
}

func (t *textWriter) header(title string, month time.Month, year int, generated time.Time) {
	// years and months are not grouped
	period := fmt.Sprintf("%02d/%d", int(month), year)
	t.printf("%s\n%s\nMonth: %s\nGenerated: %s\n", rule, title, period, generated.Format(generatedLayout))
}

func (t *textWriter) flush() error {
	if t.err != nil {
		return t.err
	}
	return t.w.Flush()
}

// WriteAnalysisReport writes block and meter statistics of every successful block.
func WriteAnalysisReport(w io.Writer, run *models.RunSummary, generated time.Time) error {
	t := newTextWriter(w)
	t.header("METERING DATA ANALYSIS REPORT", run.Month, run.Year, generated)
	t.printf("%s\n\n", rule)

	for _, b := range run.BlocksWithStatus(models.StatusSuccess) {
		writeBlock(t, b)
	}

	t.printf("\n%s\nEND OF REPORT\n%s\n", rule, rule)
	return t.flush()
}

// WriteBlockReport writes the statistics of one block.
func WriteBlockReport(w io.Writer, b models.BlockSummary, month time.Month, year int, generated time.Time) error {
	t := newTextWriter(w)
	t.header(fmt.Sprintf("BLOCK %s REPORT", b.Block), month, year, generated)
	t.printf("%s\n", rule)
	writeBlock(t, b)
	return t.flush()
}

func writeBlock(t *textWriter, b models.BlockSummary) {
	t.printf("\n%s\nBLOCK %s - SUMMARY\n%s\n", rule, b.Block, rule)

	t.printf("\n--- Block RT Statistics ---\n")
	t.printf("  Number of Meters:       %15d\n", b.Rate.Meters)
	t.printf("  Block Totalized Value:  %15.4f\n", b.Rate.Totalized)
	t.printf("  Block Average Value:    %15.4f\n", b.Rate.Average)
	t.printf("  Total Operating Hours:  %15.2f\n", b.Rate.OperatingHours)
	t.printf("  Data Completeness:      %15.2f%%\n", b.Rate.Completeness)

	t.printf("\n--- Block RTH Statistics ---\n")
	t.printf("  Number of Meters:       %15d\n", b.Cumulative.Meters)
	t.printf("  Monthly Consumption:    %15.4f  (BILLING)\n", b.Cumulative.MonthlyConsumption)
	t.printf("  Block Totalized Value:  %15.4f\n", b.Cumulative.Totalized)
	t.printf("  Data Completeness:      %15.2f%%\n", b.Cumulative.Completeness)

	if b.FailedFiles > 0 {
		t.printf("\n  Unreadable Files:       %15d\n", b.FailedFiles)
	}

	for i, rt := range b.RateMeters {
		t.printf("\n%s\nMETER: %s\n%s\n", rule, rt.Device, rule)

		t.printf("\n--- RT Statistics ---\n")
		t.printf("  Totalized Value:        %15.4f\n", rt.Totalized)
		t.printf("  Average Value:          %15.4f\n", rt.Average)
		t.printf("  Operating Hours:        %15.2f\n", rt.OperatingHours)
		t.printf("  Healthy Data Points:    %15d\n", rt.HealthyPoints)
		t.printf("  Faulty Data Points:     %15d\n", rt.FaultyPoints)
		t.printf("  Data Completeness:      %15.2f%%\n", rt.Completeness)

		if i >= len(b.CumulativeMeters) {
			continue
		}
		rth := b.CumulativeMeters[i]
		t.printf("\n--- RTH Statistics ---\n")
		t.printf("  Monthly Consumption:    %15.4f  (BILLING)\n", rth.MonthlyConsumption)
		t.printf("  Totalized Value:        %15.4f\n", rth.Totalized)
		t.printf("  Unfiltered Totalized:   %15.4f\n", rth.UnfilteredTotalized)
		t.printf("  First Value:            %15.4f\n", rth.FirstValue)
		t.printf("  First Timestamp:        %19s\n", rth.FirstTimestamp)
		t.printf("  Last Value:             %15.4f\n", rth.LastValue)
		t.printf("  Last Timestamp:         %19s\n", rth.LastTimestamp)
		t.printf("  Healthy Data Points:    %15d\n", rth.HealthyPoints)
		t.printf("  Faulty Data Points:     %15d\n", rth.FaultyPoints)
		t.printf("  Data Completeness:      %15.2f%%\n", rth.Completeness)
	}
}

// WriteDistrictSummary writes the district rollup and a block-by-block breakdown.
func WriteDistrictSummary(w io.Writer, run *models.RunSummary, generated time.Time) error {
	d := run.District
	t := newTextWriter(w)
	t.header("DISTRICT-LEVEL SUMMARY", run.Month, run.Year, generated)
	t.printf("%s\n\n", rule)

	t.printf("Total Meters Processed: %d\n", d.Meters)
	t.printf("Successful Blocks: %d\n", d.SuccessfulBlocks)
	t.printf("Empty Blocks: %d\n", d.EmptyBlocks)
	t.printf("No Data Blocks: %d\n", d.NoDataBlocks)
	t.printf("Failed Blocks: %d\n\n", d.FailedBlocks)

	t.printf("--- RT Statistics (District) ---\n")
	t.printf("  Total Totalized Value:        %20.4f\n", d.RateTotalized)
	t.printf("  Total Operating Hours:        %20.2f\n", d.RateOperatingHours)
	t.printf("  Average Data Completeness:    %20.2f%%\n\n", d.RateCompleteness)

	t.printf("--- RTH Statistics (District) ---\n")
	t.printf("  Total Monthly Consumption:    %20.4f  (BILLING)\n", d.MonthlyConsumption)
	t.printf("  Total Totalized Value:        %20.4f\n", d.CumulativeTotalized)
	t.printf("  Average Data Completeness:    %20.2f%%\n\n", d.CumulativeCompleteness)

	t.printf("%s\nBLOCK-BY-BLOCK BREAKDOWN\n%s\n\n", rule, rule)
	for _, b := range run.BlocksWithStatus(models.StatusSuccess) {
		t.printf("Block %s:\n", b.Block)
		t.printf("  Meters: %d\n", b.Meters)
		t.printf("  RT Totalized: %.4f\n", b.Rate.Totalized)
		t.printf("  RTH Monthly Consumption: %.4f\n", b.Cumulative.MonthlyConsumption)
		t.printf("  RT Completeness: %.2f%%\n", b.Rate.Completeness)
		t.printf("  RTH Completeness: %.2f%%\n", b.Cumulative.Completeness)
		if b.FailedFiles > 0 {
			t.printf("  Unreadable Files: %d\n", b.FailedFiles)
		}
		t.printf("\n")
	}

	var other []models.BlockSummary
	for _, b := range run.Blocks {
		if b.Status != models.StatusSuccess {
			other = append(other, b)
		}
	}
	if len(other) > 0 {
		t.printf("%s\nBLOCKS NOT INCLUDED\n%s\n\n", rule, rule)
		for _, b := range other {
			if b.Error != "" {
				t.printf("Block %s: %s (%s)\n", b.Block, b.Status, b.Error)
			} else {
				t.printf("Block %s: %s\n", b.Block, b.Status)
			}
		}
	}
	return t.flush()
}

// WriteDiagnosticLog writes every per-file diagnostics record of the run.
func WriteDiagnosticLog(w io.Writer, run *models.RunSummary, generated time.Time) error {
	runtime := run.Runtime().Seconds()
	t := newTextWriter(w)
	t.header("DIAGNOSTIC LOG", run.Month, run.Year, generated)
	t.printf("Total Runtime: %.2f seconds (%.2f minutes)\n", runtime, runtime/60)
	t.printf("%s\n\n", rule)

	for _, d := range run.Diagnostics() {
		t.printf("file=%s kind=%s\n", d.ID, d.Kind)
		if d.Failed() {
			t.printf("  error=%s\n\n", d.Error)
			continue
		}
		t.printf("  encoding=%s total_lines=%d parsed=%d healthy=%d faulty=%d faulty_pct=%.2f\n",
			d.Encoding, d.TotalLines, d.ParsedLines, d.HealthyLines, d.FaultyLines, d.FaultyPercentage)
		t.printf("  corrupted=%d comments=%d empty=%d out_of_order=%d\n",
			d.CorruptedLines, d.CommentLines, d.EmptyLines, d.OutOfOrderLines)
		t.printf("  failures=[%s]\n", strings.Join(d.FailureTimestamps, ", "))
		t.printf("  recoveries=[%s]\n\n", strings.Join(d.RecoveryTimestamps, ", "))
	}
	return t.flush()
}
