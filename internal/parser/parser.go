// Package parser reads single-month meter logs into readings and diagnostics.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
)

const (
	lineLayout = "02.01.2006 15:04:05"

	markerStart = "#start"
	markerStop  = "#stop"

	maxLineSize = 1024 * 1024
)

// Options controls how a log is parsed
type Options struct {
	// Logger receives health transitions at debug level. Nil discards them.
	Logger *slog.Logger

	Encoding string
	// HealthMarkers enables #start/#stop interpretation. When false the
	// markers are skipped and every reading is healthy.
	HealthMarkers bool

	// Labels copied into the diagnostics record.
	Device string
	File   string
	Kind   models.Kind
}

// Result holds the readings of one log in file order
type Result struct {
	Readings    []models.Reading
	Diagnostics models.Diagnostics
}

// ParseFile reads and parses the log at path. Open, read and decode
// failures are returned as errors.
func ParseFile(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	return Parse(f, opts)
}

// Parse parses a log from r. Malformed lines are counted, never returned as errors.
func Parse(r io.Reader, opts Options) (*Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	data, used, err := Decode(raw, opts.Encoding)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Diagnostics: models.Diagnostics{
			Device:   opts.Device,
			File:     opts.File,
			Kind:     opts.Kind,
			Encoding: used,
		},
	}
	diag := &res.Diagnostics
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	health := &healthMachine{log: log}

	var (
		prev    time.Time
		hasPrev bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		diag.TotalLines++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			diag.EmptyLines++
			continue
		case strings.EqualFold(line, markerStop):
			if opts.HealthMarkers {
				health.stop(diag.TotalLines)
			}
			continue
		case strings.EqualFold(line, markerStart):
			if opts.HealthMarkers {
				health.start(diag.TotalLines)
			}
			continue
		case strings.HasPrefix(line, "#"):
			diag.CommentLines++
			continue
		}

		ts, value, ok := parseLine(line)
		if !ok {
			diag.CorruptedLines++
			continue
		}

		if hasPrev && !ts.After(prev) {
			diag.OutOfOrderLines++
		}
		prev, hasPrev = ts, true

		healthy := health.observe(ts)
		if !healthy {
			value = 0
			diag.FaultyLines++
		} else {
			diag.HealthyLines++
		}
		res.Readings = append(res.Readings, models.Reading{
			Timestamp: ts,
			Value:     value,
			Healthy:   healthy,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log: %w", err)
	}

	diag.ParsedLines = len(res.Readings)
	diag.FaultyPercentage = models.Percentage(diag.FaultyLines, diag.ParsedLines)
	diag.FailureTimestamps = nonNil(health.failures)
	diag.RecoveryTimestamps = nonNil(health.recoveries)
	return res, nil
}

// parseLine parses "DD.MM.YYYY HH:MM:SS [VALUE]". A missing value reads as 0.
func parseLine(line string) (time.Time, float64, bool) {
	ts, ok := LineTimestamp(line)
	if !ok {
		return time.Time{}, 0, false
	}
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return ts, 0, true
	}
	v, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, 0, false
	}
	return ts, v, true
}

// LineTimestamp parses the leading "DD.MM.YYYY HH:MM:SS" of a data line.
func LineTimestamp(line string) (time.Time, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return time.Time{}, false
	}
	ts, err := time.Parse(lineLayout, fields[0]+" "+fields[1])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
