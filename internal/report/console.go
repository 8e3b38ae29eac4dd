package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
)

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetRowLine(true)
	return table
}

// RenderBlockTable prints one row per block followed by a district row.
func RenderBlockTable(w io.Writer, run *models.RunSummary) {
	table := newTable(w)
	table.SetHeader([]string{
		"Block", "Status", "Meters", "Files",
		"RT Totalized", "RT Avg", "Op Hours", "RT\n(%)",
		"RTH Consumption", "RTH\n(%)", "Note",
	})

	for _, b := range run.Blocks {
		if b.Status != models.StatusSuccess {
			table.Append([]string{
				b.Block, string(b.Status),
				fmt.Sprintf("%d", b.Meters),
				fmt.Sprintf("%d", b.Files),
				"", "", "", "", "", "", b.Error,
			})
			continue
		}
		note := ""
		if b.FailedFiles > 0 {
			note = fmt.Sprintf("%d unreadable file(s)", b.FailedFiles)
		}
		table.Append([]string{
			b.Block, string(b.Status),
			fmt.Sprintf("%d", b.Meters),
			fmt.Sprintf("%d", b.Files),
			fmt.Sprintf("%.4f", b.Rate.Totalized),
			fmt.Sprintf("%.4f", b.Rate.Average),
			fmt.Sprintf("%.2f", b.Rate.OperatingHours),
			fmt.Sprintf("%.2f", b.Rate.Completeness),
			fmt.Sprintf("%.4f", b.Cumulative.MonthlyConsumption),
			fmt.Sprintf("%.2f", b.Cumulative.Completeness),
			note,
		})
	}

	d := run.District
	table.SetFooter([]string{
		"District", fmt.Sprintf("%d ok", d.SuccessfulBlocks),
		fmt.Sprintf("%d", d.Meters), "",
		fmt.Sprintf("%.4f", d.RateTotalized), "",
		fmt.Sprintf("%.2f", d.RateOperatingHours),
		fmt.Sprintf("%.2f", d.RateCompleteness),
		fmt.Sprintf("%.4f", d.MonthlyConsumption),
		fmt.Sprintf("%.2f", d.CumulativeCompleteness),
		fmt.Sprintf("%d empty, %d no data, %d failed", d.EmptyBlocks, d.NoDataBlocks, d.FailedBlocks),
	})
	table.Render()
}

// CatalogRow is one device line of a catalog listing
type CatalogRow struct {
	Device          string
	Block           string
	Unit            string
	RateFiles       int
	CumulativeFiles int
}

// RenderCatalog prints the devices found by a scan with their file counts.
func RenderCatalog(w io.Writer, rows []CatalogRow) {
	table := newTable(w)
	table.SetHeader([]string{"Device", "Block", "Unit", "RT\nfiles", "RTH\nfiles"})

	prevBlock := ""
	for _, r := range rows {
		block := r.Block
		if block == prevBlock {
			block = ""
		}
		prevBlock = r.Block
		table.Append([]string{
			r.Device, block, r.Unit,
			fmt.Sprintf("%d", r.RateFiles),
			fmt.Sprintf("%d", r.CumulativeFiles),
		})
	}
	table.Render()
}
