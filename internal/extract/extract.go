// Package extract copies the lines of one calendar day out of the monthly
// meter logs into a date-partitioned folder tree.
package extract

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/catalog"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/parser"
)

// FileStats describes the extraction of one monthly file
type FileStats struct {
	Device         string `json:"device"`
	File           string `json:"file"`
	Kind           string `json:"kind"`
	Output         string `json:"output,omitempty"`
	Encoding       string `json:"encoding,omitempty"`
	LinesRead      int    `json:"lines_read"`
	LinesWritten   int    `json:"lines_written"`
	CommentLines   int    `json:"comment_lines"`
	EmptyLines     int    `json:"empty_lines"`
	ParseErrors    int    `json:"parse_errors"`
	DateMismatches int    `json:"date_mismatches"`
	FirstDataLine  string `json:"first_data_line,omitempty"`
	Skipped        string `json:"skipped,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (s FileStats) Failed() bool { return s.Error != "" }

// Summary is the outcome of a day extraction
type Summary struct {
	Date         time.Time
	Files        []FileStats
	Processed    int
	Succeeded    int
	LinesWritten int
}

func (s *Summary) Failed() int {
	return s.Processed - s.Succeeded
}

// Config holds extraction configuration
type Config struct {
	Logger   *slog.Logger
	Catalog  catalog.Config
	Encoding string
	Day      int
	Dir      string
	Kinds    []config.ExtractKind
	Workers  int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Dir == "" {
		return errors.New("output dir is required")
	}
	if len(c.Kinds) == 0 {
		return errors.New("at least one extract kind is required")
	}
	if c.Catalog.Month < 1 || c.Catalog.Month > 12 {
		return fmt.Errorf("invalid month %d", c.Catalog.Month)
	}
	date := c.date()
	if c.Day < 1 || date.Month() != c.Catalog.Month {
		return fmt.Errorf("invalid day %d for %04d-%02d", c.Day, c.Catalog.Year, int(c.Catalog.Month))
	}
	return nil
}

func (c *Config) date() time.Time {
	return time.Date(c.Catalog.Year, c.Catalog.Month, c.Day, 0, 0, 0, 0, time.UTC)
}

// Extractor runs a day extraction over the catalog
type Extractor struct {
	log     *slog.Logger
	cfg     Config
	scanner *catalog.Scanner
}

func New(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Catalog.Logger == nil {
		cfg.Catalog.Logger = cfg.Logger
	}
	scanner, err := catalog.NewScanner(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog scanner: %w", err)
	}
	return &Extractor{log: cfg.Logger, cfg: cfg, scanner: scanner}, nil
}

// OutputPath is <dir>/Year=YYYY/Month=MM/Date=DD/<device>/<YYYY>_<MM>_<DD>_<name>.txt
func OutputPath(dir, device, name string, date time.Time) string {
	y, m, d := date.Format("2006"), date.Format("01"), date.Format("02")
	return filepath.Join(dir, "Year="+y, "Month="+m, "Date="+d, device,
		fmt.Sprintf("%s_%s_%s_%s.txt", y, m, d, name))
}

// Run extracts the configured day from every catalogued file of every kind.
func (e *Extractor) Run(ctx context.Context) (*Summary, error) {
	date := e.cfg.date()
	summary := &Summary{Date: date}

	devices, err := e.scanner.Devices()
	if err != nil {
		return nil, err
	}

	type job struct {
		kind  config.ExtractKind
		entry catalog.FileEntry
	}
	var jobs []job
	for _, kind := range e.cfg.Kinds {
		for _, entry := range e.scanner.FilesWithSuffix(devices, kind.Suffix) {
			jobs = append(jobs, job{kind: kind, entry: entry})
		}
	}
	e.log.Info("Extracting day", "date", date.Format("2006-01-02"), "devices", len(devices), "files", len(jobs))
	if len(jobs) == 0 {
		return summary, nil
	}

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	pool := pond.NewResultPool[FileStats](workers)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	for _, j := range jobs {
		j := j
		group.Submit(func() FileStats {
			return e.extractFile(j.kind, j.entry, date)
		})
	}
	results, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to extract files: %w", err)
	}

	for _, st := range results {
		if st.Skipped != "" {
			continue
		}
		summary.Processed++
		if !st.Failed() {
			summary.Succeeded++
			summary.LinesWritten += st.LinesWritten
		}
	}
	summary.Files = results

	e.log.Info("Extraction complete",
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed(),
		"lines_written", summary.LinesWritten)
	return summary, nil
}

func (e *Extractor) extractFile(kind config.ExtractKind, entry catalog.FileEntry, date time.Time) FileStats {
	log := e.log.With("device", entry.Device, "file", entry.Name, "kind", kind.Name)
	st := FileStats{Device: entry.Device, File: entry.Name, Kind: kind.Name}

	raw, err := os.ReadFile(entry.Path(e.cfg.Catalog.Root))
	if err != nil {
		log.Warn("Failed to read meter log", "error", err)
		st.Error = err.Error()
		return st
	}
	if len(raw) == 0 {
		log.Debug("Skipping empty file")
		st.Skipped = "empty file"
		return st
	}

	data, used, err := parser.Decode(raw, e.cfg.Encoding)
	if err != nil {
		log.Warn("Failed to decode meter log", "error", err)
		st.Error = err.Error()
		return st
	}
	st.Encoding = used

	var out bytes.Buffer
	counts, err := FilterDay(bytes.NewReader(data), &out, date)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	counts.Device, counts.File, counts.Kind, counts.Encoding = st.Device, st.File, st.Kind, st.Encoding

	counts.Output = OutputPath(e.cfg.Dir, entry.Device, kind.Name, date)
	if err := os.MkdirAll(filepath.Dir(counts.Output), 0o755); err != nil {
		counts.Error = err.Error()
		return counts
	}
	if err := os.WriteFile(counts.Output, out.Bytes(), 0o644); err != nil {
		counts.Error = err.Error()
		return counts
	}

	if counts.LinesWritten == 0 {
		log.Debug("No lines for day",
			"lines_read", counts.LinesRead,
			"comments", counts.CommentLines,
			"mismatches", counts.DateMismatches,
			"first_line", counts.FirstDataLine)
	}
	return counts
}

// FilterDay copies the data lines of date from r to w. Marker and comment
// lines are dropped; kept lines are written trimmed.
func FilterDay(r io.Reader, w io.Writer, date time.Time) (FileStats, error) {
	var st FileStats
	y, m, d := date.Date()

	bw := bufio.NewWriter(w)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		st.LinesRead++
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			st.EmptyLines++
			continue
		case strings.HasPrefix(line, "#"):
			st.CommentLines++
			continue
		}

		ts, ok := parser.LineTimestamp(line)
		if !ok {
			st.ParseErrors++
			continue
		}
		if st.FirstDataLine == "" {
			st.FirstDataLine = line
		}
		if ly, lm, ld := ts.Date(); ly != y || lm != m || ld != d {
			st.DateMismatches++
			continue
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return st, err
		}
		st.LinesWritten++
	}
	if err := sc.Err(); err != nil {
		return st, err
	}
	return st, bw.Flush()
}
