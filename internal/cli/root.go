// Package cli implements the meterparser command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/config"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

var errNoSuccessfulBlocks = errors.New("no block was processed successfully")

func Run() ExitCode {
	if err := newRootCmd().Execute(); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "meterparser",
		Short:        "Monthly billing statistics from district cooling BTU meter logs.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(
		NewRunCmd().Command(),
		NewScanCmd().Command(),
		NewExtractCmd().Command(),
		NewServeCmd().Command(),
		NewStatusCmd().Command(),
	)
	return rootCmd
}

// loadConfig reads the config file named by --config and builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cmd.ErrOrStderr(), verbose || cfg.Debug), nil
}

// runOverrides reads the month selection flags shared by run, scan and extract.
func runOverrides(cmd *cobra.Command) (config.Overrides, error) {
	var o config.Overrides
	var err error
	if o.Month, err = cmd.Flags().GetInt("month"); err != nil {
		return o, fmt.Errorf("failed to get month flag: %w", err)
	}
	if o.Year, err = cmd.Flags().GetInt("year"); err != nil {
		return o, fmt.Errorf("failed to get year flag: %w", err)
	}
	if o.Root, err = cmd.Flags().GetString("data"); err != nil {
		return o, fmt.Errorf("failed to get data flag: %w", err)
	}
	return o, nil
}

func addMonthFlags(cmd *cobra.Command) {
	cmd.Flags().Int("month", 0, "billing month 1-12 (default: config or previous month)")
	cmd.Flags().Int("year", 0, "billing year (default: config or the previous month's year)")
	cmd.Flags().String("data", "", "root folder holding one sub-folder per device")
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if w == nil {
		w = os.Stderr
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
