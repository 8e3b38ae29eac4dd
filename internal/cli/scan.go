package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/catalog"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/report"
)

type ScanCmd struct{}

func NewScanCmd() *ScanCmd {
	return &ScanCmd{}
}

func (c *ScanCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the devices, blocks and log files found for a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			overrides, err := runOverrides(cmd)
			if err != nil {
				return err
			}
			cfg.ApplyOverrides(overrides)
			if err := cfg.Validate(); err != nil {
				return err
			}

			scanner, err := catalog.NewScanner(catalogConfig(cfg, log))
			if err != nil {
				return err
			}
			rows, err := catalogRows(scanner)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Root: %s\nMonth prefix: %s\n", cfg.Catalog.Root, scanner.MonthPrefix())
			report.RenderCatalog(out, rows)

			blocks := map[string]struct{}{}
			for _, r := range rows {
				blocks[r.Block] = struct{}{}
			}
			fmt.Fprintf(out, "Found %d meters in %d blocks\n", len(rows), len(blocks))

			return listFiles(out, scanner)
		},
	}

	addMonthFlags(cmd)
	return cmd
}

// listFiles prints the month's files of each kind as device/file identifiers.
func listFiles(w io.Writer, scanner *catalog.Scanner) error {
	devices, err := scanner.Devices()
	if err != nil {
		return err
	}
	for _, kind := range models.Kinds {
		ids, err := scanner.FileIDs(devices, kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s files (%d):\n", kind, len(ids))
		for _, id := range ids {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	return nil
}

func catalogRows(scanner *catalog.Scanner) ([]report.CatalogRow, error) {
	devices, err := scanner.Devices()
	if err != nil {
		return nil, err
	}

	rows := make([]report.CatalogRow, 0, len(devices))
	for _, d := range devices {
		rate, err := scanner.Files([]models.Device{d}, models.KindRate)
		if err != nil {
			return nil, err
		}
		cumulative, err := scanner.Files([]models.Device{d}, models.KindCumulative)
		if err != nil {
			return nil, err
		}
		rows = append(rows, report.CatalogRow{
			Device:          d.Name,
			Block:           d.Block,
			Unit:            d.Unit,
			RateFiles:       len(rate),
			CumulativeFiles: len(cumulative),
		})
	}
	return rows, nil
}
