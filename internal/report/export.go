package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/compress"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/jonboulle/clockwork"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/blocktable"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
)

// RunDir is the output folder of one month, e.g. <base>/10_2025.
func RunDir(base string, month time.Month, year int) string {
	return filepath.Join(base, fmt.Sprintf("%02d_%d", int(month), year))
}

// ExporterConfig holds the block export settings
type ExporterConfig struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Dir     string
	Month   time.Month
	Year    int
	CSV     bool
	Parquet bool
	Reports bool
}

func (c *ExporterConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Dir == "" {
		return errors.New("output dir is required")
	}
	return nil
}

// FileExporter writes each successful block as CSV, Parquet and a text report
type FileExporter struct {
	log   *slog.Logger
	cfg   ExporterConfig
	clock clockwork.Clock
}

func NewFileExporter(cfg ExporterConfig) (*FileExporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &FileExporter{log: cfg.Logger, cfg: cfg, clock: cfg.Clock}, nil
}

// Dir returns the run folder the exporter writes into.
func (e *FileExporter) Dir() string {
	return e.cfg.Dir
}

// ExportBlock writes the enabled artifacts for the block and returns their paths.
func (e *FileExporter) ExportBlock(ctx context.Context, table *blocktable.Table, summary *models.BlockSummary) ([]string, error) {
	base := filepath.Join(e.cfg.Dir, "Block_"+table.Block())

	var paths []string
	if e.cfg.CSV {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := base + ".csv"
		if err := WriteCSV(path, table); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	if e.cfg.Parquet {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := base + ".parquet"
		if err := WriteParquet(path, table); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	if e.cfg.Reports {
		path := base + "_Report.txt"
		err := writeFile(path, func(f *os.File) error {
			return WriteBlockReport(f, *summary, e.cfg.Month, e.cfg.Year, e.clock.Now())
		})
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	e.log.Debug("Exported block", "block", table.Block(), "files", len(paths))
	return paths, nil
}

// WriteCSV writes the wide block table: timestamp, date, time, then RT and RTH per device.
func WriteCSV(path string, table *blocktable.Table) error {
	cols, err := tableColumns(table)
	if err != nil {
		return err
	}
	grid := table.Grid()

	return writeFile(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(table.Header()); err != nil {
			return err
		}
		row := make([]string, 3+len(cols))
		for i := 0; i < table.Len(); i++ {
			row[0], row[1], row[2] = grid.Timestamp(i), grid.Date(i), grid.Time(i)
			for j, col := range cols {
				row[3+j] = strconv.FormatFloat(col[i], 'f', -1, 64)
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

// WriteParquet writes the block table as a single Snappy-compressed row group.
func WriteParquet(path string, table *blocktable.Table) error {
	cols, err := tableColumns(table)
	if err != nil {
		return err
	}
	header := table.Header()

	fields := []arrow.Field{
		{Name: header[0], Type: arrow.FixedWidthTypes.Timestamp_s},
		{Name: header[1], Type: arrow.BinaryTypes.String},
		{Name: header[2], Type: arrow.BinaryTypes.String},
	}
	for _, name := range header[3:] {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64})
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()

	grid := table.Grid()
	stamps := b.Field(0).(*array.TimestampBuilder)
	dates := b.Field(1).(*array.StringBuilder)
	times := b.Field(2).(*array.StringBuilder)
	for i := 0; i < table.Len(); i++ {
		stamps.Append(arrow.Timestamp(grid.At(i).Unix()))
		dates.Append(grid.Date(i))
		times.Append(grid.Time(i))
	}
	for j, col := range cols {
		b.Field(3+j).(*array.Float64Builder).AppendValues(col, nil)
	}

	rec := b.NewRecord()
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to write parquet record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// tableColumns returns the device columns in header order.
func tableColumns(table *blocktable.Table) ([][]float64, error) {
	var cols [][]float64
	for _, d := range table.Devices() {
		for _, kind := range models.Kinds {
			col, err := table.Column(d, kind)
			if err != nil {
				return nil, err
			}
			cols = append(cols, col)
		}
	}
	return cols, nil
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
