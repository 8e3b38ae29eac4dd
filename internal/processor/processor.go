// Package processor runs the per-block parse, merge and analysis pipeline
// and rolls the blocks up to a district.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/analysis"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/blocktable"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/catalog"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/parser"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/timeline"
)

// BlockExporter writes the artifacts of a successful block and returns their paths
type BlockExporter interface {
	ExportBlock(ctx context.Context, table *blocktable.Table, summary *models.BlockSummary) ([]string, error)
}

// BlockTracker records block outcomes as they complete
type BlockTracker interface {
	RecordBlock(ctx context.Context, runID string, summary models.BlockSummary) error
}

// Config holds processor configuration
type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Catalog catalog.Config

	Encoding      string
	HealthMarkers bool

	// Workers of 0 means one per block, capped at the CPU count.
	Workers int
	// Blocks pins the block list; blocks without devices report empty.
	Blocks []string

	Exporter BlockExporter
	Tracker  BlockTracker
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %d", c.Workers)
	}
	if c.Catalog.Month < 1 || c.Catalog.Month > 12 {
		return fmt.Errorf("invalid month %d", c.Catalog.Month)
	}
	return nil
}

// Processor processes one billing month
type Processor struct {
	log     *slog.Logger
	cfg     Config
	clock   clockwork.Clock
	scanner *catalog.Scanner
}

// NewProcessor creates a new processor
func NewProcessor(cfg Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Catalog.Logger == nil {
		cfg.Catalog.Logger = cfg.Logger
	}

	scanner, err := catalog.NewScanner(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog scanner: %w", err)
	}

	return &Processor{
		log:     cfg.Logger,
		cfg:     cfg,
		clock:   cfg.Clock,
		scanner: scanner,
	}, nil
}

// Run processes every block of the month concurrently and computes the
// district rollup. Block failures are reported in the summary; only an
// unreadable catalog root or a cancelled context fails the run.
func (p *Processor) Run(ctx context.Context) (*models.RunSummary, error) {
	run := &models.RunSummary{
		ID:        uuid.NewString(),
		Month:     p.cfg.Catalog.Month,
		Year:      p.cfg.Catalog.Year,
		StartedAt: p.clock.Now(),
	}
	log := p.log.With("run_id", run.ID)

	grid, err := timeline.New(p.cfg.Catalog.Year, p.cfg.Catalog.Month)
	if err != nil {
		return nil, fmt.Errorf("failed to build timeline: %w", err)
	}

	devices, err := p.scanner.Devices()
	if err != nil {
		return nil, err
	}
	blocks := p.cfg.Blocks
	if len(blocks) == 0 {
		blocks = catalog.Blocks(devices)
	}
	log.Info("Processing month",
		"month", int(run.Month),
		"year", run.Year,
		"from", grid.Start(),
		"to", grid.End(),
		"devices", len(devices),
		"blocks", len(blocks))

	if len(blocks) > 0 {
		results, err := p.fanOut(ctx, run.ID, grid, blocks, devices)
		if err != nil {
			return nil, err
		}
		run.Blocks = results
	}

	run.District = analysis.District(run.Blocks)
	run.FinishedAt = p.clock.Now()

	result := "success"
	if !run.Succeeded() {
		result = "failure"
	}
	metrics.RunsCompleted.WithLabelValues(result).Inc()

	log.Info("Run complete",
		"successful", run.District.SuccessfulBlocks,
		"empty", run.District.EmptyBlocks,
		"no_data", run.District.NoDataBlocks,
		"failed", run.District.FailedBlocks,
		"duration", run.Runtime())
	return run, nil
}

func (p *Processor) fanOut(ctx context.Context, runID string, grid *timeline.Grid, blocks []string, devices []models.Device) ([]models.BlockSummary, error) {
	pool := pond.NewResultPool[models.BlockSummary](p.workers(len(blocks)))
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	for _, block := range blocks {
		block := block
		group.Submit(func() models.BlockSummary {
			summary := p.ProcessBlock(ctx, grid, block, catalog.InBlock(devices, block))
			if p.cfg.Tracker != nil {
				if err := p.cfg.Tracker.RecordBlock(ctx, runID, summary); err != nil {
					metrics.SinkErrors.WithLabelValues("status").Inc()
					p.log.Warn("Failed to record block status", "block", block, "error", err)
				}
			}
			return summary
		})
	}

	results, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to process blocks: %w", err)
	}
	return results, nil
}

func (p *Processor) workers(blocks int) int {
	if p.cfg.Workers > 0 {
		return p.cfg.Workers
	}
	return max(1, min(blocks, runtime.NumCPU()))
}

// ProcessBlock scans, parses, merges and analyzes one block. It never
// panics or returns an error; the outcome is carried by the summary status.
func (p *Processor) ProcessBlock(ctx context.Context, grid *timeline.Grid, block string, devices []models.Device) (summary models.BlockSummary) {
	start := p.clock.Now()
	log := p.log.With("block", block)
	summary = models.BlockSummary{Block: block, Meters: len(devices)}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Block worker panicked", "panic", r)
			summary.Status = models.StatusFailed
			summary.Error = fmt.Sprintf("panic: %v", r)
		}
		summary.Duration = p.clock.Since(start)
		metrics.BlocksProcessed.WithLabelValues(string(summary.Status)).Inc()
		metrics.BlockDuration.Observe(summary.Duration.Seconds())
	}()

	if len(devices) == 0 {
		log.Warn("No devices found for block")
		summary.Status = models.StatusEmpty
		return summary
	}

	files := make(map[models.Kind][]catalog.FileEntry, len(models.Kinds))
	for _, kind := range models.Kinds {
		entries, err := p.scanner.Files(devices, kind)
		if err != nil {
			return failBlock(log, summary, err)
		}
		files[kind] = entries
		summary.Files += len(entries)
	}
	if summary.Files == 0 {
		log.Warn("No data files found for block", "meters", len(devices))
		summary.Status = models.StatusNoData
		return summary
	}

	table := blocktable.New(block, grid, catalog.Names(devices))
	for _, kind := range models.Kinds {
		for _, entry := range files[kind] {
			if err := ctx.Err(); err != nil {
				return failBlock(log, summary, err)
			}
			diag := p.mergeFile(log, table, kind, entry)
			if diag.Failed() {
				summary.FailedFiles++
			}
			summary.Diagnostics = append(summary.Diagnostics, diag)
		}
	}
	if summary.FailedFiles == summary.Files {
		return failBlock(log, summary, fmt.Errorf("all %d data files are unreadable", summary.Files))
	}

	stats, err := analysis.AnalyzeBlock(table)
	if err != nil {
		return failBlock(log, summary, err)
	}
	summary.RateMeters = stats.RateMeters
	summary.CumulativeMeters = stats.CumulativeMeters
	summary.Rate = stats.Rate
	summary.Cumulative = stats.Cumulative
	summary.Status = models.StatusSuccess

	if p.cfg.Exporter != nil {
		artifacts, err := p.cfg.Exporter.ExportBlock(ctx, table, &summary)
		if err != nil {
			return failBlock(log, summary, fmt.Errorf("failed to export block: %w", err))
		}
		summary.Artifacts = artifacts
	}

	metrics.MonthlyConsumption.WithLabelValues(block).Set(summary.Cumulative.MonthlyConsumption)
	metrics.BlockCompleteness.WithLabelValues(block, models.KindRate.String()).Set(summary.Rate.Completeness)
	metrics.BlockCompleteness.WithLabelValues(block, models.KindCumulative.String()).Set(summary.Cumulative.Completeness)

	log.Info("Block processed",
		"meters", summary.Meters,
		"files", summary.Files,
		"failed_files", summary.FailedFiles,
		"monthly_consumption", summary.Cumulative.MonthlyConsumption,
		"rt_completeness", summary.Rate.Completeness,
		"rth_completeness", summary.Cumulative.Completeness)
	return summary
}

func failBlock(log *slog.Logger, summary models.BlockSummary, err error) models.BlockSummary {
	log.Error("Block failed", "error", err)
	summary.Status = models.StatusFailed
	summary.Error = err.Error()
	return summary
}

// mergeFile parses one log onto the table. An unreadable file yields a
// diagnostics record with Error set and leaves the column at zero.
func (p *Processor) mergeFile(log *slog.Logger, table *blocktable.Table, kind models.Kind, entry catalog.FileEntry) models.Diagnostics {
	log = log.With("device", entry.Device, "file", entry.Name, "kind", kind)

	failed := func(err error) models.Diagnostics {
		log.Warn("Failed to read meter log", "error", err)
		metrics.FilesParsed.WithLabelValues(kind.String(), "error").Inc()
		return models.Diagnostics{
			ID:                 entry.ID(p.cfg.Catalog.Delimiter),
			Device:             entry.Device,
			File:               entry.Name,
			Kind:               kind,
			FailureTimestamps:  []string{},
			RecoveryTimestamps: []string{},
			Error:              err.Error(),
		}
	}

	res, err := parser.ParseFile(entry.Path(p.cfg.Catalog.Root), parser.Options{
		Logger:        log,
		Encoding:      p.cfg.Encoding,
		HealthMarkers: p.cfg.HealthMarkers,
		Device:        entry.Device,
		File:          entry.Name,
		Kind:          kind,
	})
	if err != nil {
		return failed(err)
	}

	merged, err := table.Merge(entry.Device, kind, res.Readings)
	if err != nil {
		return failed(err)
	}
	metrics.FilesParsed.WithLabelValues(kind.String(), "ok").Inc()

	diag := res.Diagnostics
	diag.ID = entry.ID(p.cfg.Catalog.Delimiter)
	metrics.LinesParsed.WithLabelValues(kind.String(), "healthy").Add(float64(diag.HealthyLines))
	metrics.LinesParsed.WithLabelValues(kind.String(), "faulty").Add(float64(diag.FaultyLines))
	metrics.LinesParsed.WithLabelValues(kind.String(), "corrupted").Add(float64(diag.CorruptedLines))

	if diag.OutOfOrderLines > 0 {
		log.Warn("Log is not in chronological order, billing values may be wrong", "out_of_order", diag.OutOfOrderLines)
	}
	if diag.CorruptedLines > 0 {
		log.Debug("Skipped corrupted lines", "corrupted", diag.CorruptedLines)
	}
	if merged.Dropped > 0 {
		metrics.ReadingsDropped.WithLabelValues(kind.String()).Add(float64(merged.Dropped))
		log.Warn("Dropped readings outside the month", "dropped", merged.Dropped)
	}
	return diag
}
