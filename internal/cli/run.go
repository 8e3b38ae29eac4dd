package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/report"
)

type RunCmd struct{}

func NewRunCmd() *RunCmd {
	return &RunCmd{}
}

func (c *RunCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one billing month and write the block and district reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			overrides, err := runOverrides(cmd)
			if err != nil {
				return err
			}
			if overrides.Output, err = cmd.Flags().GetString("output"); err != nil {
				return fmt.Errorf("failed to get output flag: %w", err)
			}
			if overrides.Workers, err = cmd.Flags().GetInt("workers"); err != nil {
				return fmt.Errorf("failed to get workers flag: %w", err)
			}
			if overrides.Blocks, err = cmd.Flags().GetStringSlice("blocks"); err != nil {
				return fmt.Errorf("failed to get blocks flag: %w", err)
			}
			cfg.ApplyOverrides(overrides)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s := openSinks(ctx, log, cfg)
			defer s.Close(log)

			run, err := executeRun(ctx, log, clockwork.NewRealClock(), cfg, s)
			if err != nil {
				return err
			}

			report.RenderBlockTable(cmd.OutOrStdout(), run)
			fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\nRuntime: %s\n", run.OutputDir, run.Runtime().Round(time.Millisecond))

			if !run.Succeeded() {
				return errNoSuccessfulBlocks
			}
			return nil
		},
	}

	addMonthFlags(cmd)
	cmd.Flags().String("output", "", "base folder for reports (a MM_YYYY sub-folder is created)")
	cmd.Flags().Int("workers", 0, "block worker count (default: one per block, capped at CPU count)")
	cmd.Flags().StringSlice("blocks", nil, "process only these blocks, e.g. --blocks 82,83")

	return cmd
}
