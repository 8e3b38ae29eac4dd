package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/report"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/status"
)

type runStatusReader interface {
	GetRun(ctx context.Context, runID string) (*models.RunSummary, error)
	BlockStatuses(ctx context.Context, runID string) (map[string]models.BlockStatus, error)
	LatestRun(ctx context.Context, month time.Month, year int) (string, error)
	RecentRuns(ctx context.Context, limit int) ([]string, error)
}

type statusQuery struct {
	RunID  string
	Month  int
	Year   int
	Recent int
}

type StatusCmd struct{}

func NewStatusCmd() *StatusCmd {
	return &StatusCmd{}
}

func (c *StatusCmd) Command() *cobra.Command {
	var q statusQuery

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show runs recorded in the Redis status store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Status.Enabled {
				return errors.New("status store is not enabled (set status.enabled or REDIS_ENABLED)")
			}
			if q.Month != 0 && q.Year == 0 {
				q.Year = cfg.Run.Year
			}

			store, err := status.NewStore(cmd.Context(), cfg.Status, log)
			if err != nil {
				return err
			}
			defer store.Close()

			return showStatus(cmd.Context(), cmd.OutOrStdout(), store, q)
		},
	}

	cmd.Flags().StringVar(&q.RunID, "run", "", "run ID to show")
	cmd.Flags().IntVar(&q.Month, "month", 0, "show the latest run of this billing month")
	cmd.Flags().IntVar(&q.Year, "year", 0, "year of --month (default: config year)")
	cmd.Flags().IntVar(&q.Recent, "recent", 10, "number of recent runs to list when no run is selected")
	return cmd
}

// showStatus prints one run, or the recent run IDs when the query selects none.
// A run that is still processing has block statuses but no summary yet.
func showStatus(ctx context.Context, w io.Writer, r runStatusReader, q statusQuery) error {
	runID := q.RunID
	if runID == "" && q.Month != 0 {
		id, err := r.LatestRun(ctx, time.Month(q.Month), q.Year)
		if err != nil {
			return err
		}
		runID = id
	}

	if runID == "" {
		ids, err := r.RecentRuns(ctx, max(q.Recent, 1))
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(w, "No runs recorded")
			return nil
		}
		fmt.Fprintln(w, "Recent runs:")
		for _, id := range ids {
			fmt.Fprintf(w, "  %s\n", id)
		}
		return nil
	}

	statuses, err := r.BlockStatuses(ctx, runID)
	if err != nil {
		return err
	}
	run, err := r.GetRun(ctx, runID)
	switch {
	case errors.Is(err, status.ErrNotFound) && len(statuses) > 0:
		fmt.Fprintf(w, "Run %s in progress, %d blocks done:\n", runID, len(statuses))
		for _, block := range slices.Sorted(maps.Keys(statuses)) {
			fmt.Fprintf(w, "  Block %-6s %s\n", block, statuses[block])
		}
		return nil
	case err != nil:
		return err
	}

	fmt.Fprintf(w, "Run: %s\nMonth: %02d/%d\nFinished: %s\n",
		run.ID, int(run.Month), run.Year, run.FinishedAt.Format(time.RFC3339))
	report.RenderBlockTable(w, run)
	return nil
}
