package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// BlocksProcessed counts block outcomes by status
	BlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterparser_blocks_processed_total",
			Help: "Total number of blocks processed by outcome",
		},
		[]string{"status"},
	)

	// BlockDuration is the wall time of one block worker
	BlockDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meterparser_block_duration_seconds",
			Help:    "Block processing duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// FilesParsed counts parsed log files by kind and result
	FilesParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterparser_files_parsed_total",
			Help: "Total number of meter log files parsed",
		},
		[]string{"kind", "result"},
	)

	// LinesParsed counts log lines by classification
	LinesParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterparser_lines_total",
			Help: "Total number of log lines read by classification",
		},
		[]string{"kind", "class"},
	)

	// ReadingsDropped counts readings that matched no minute of the month
	ReadingsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterparser_readings_dropped_total",
			Help: "Readings outside the billing month grid",
		},
		[]string{"kind"},
	)

	// MonthlyConsumption is the latest billing value per block
	MonthlyConsumption = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meterparser_block_monthly_consumption",
			Help: "Monthly RTH consumption of the last processed run per block",
		},
		[]string{"block"},
	)

	// BlockCompleteness is the latest data completeness per block and kind
	BlockCompleteness = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meterparser_block_completeness_percent",
			Help: "Point-weighted data completeness of the last processed run",
		},
		[]string{"block", "kind"},
	)

	// SinkErrors counts failed writes to external sinks
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterparser_sink_errors_total",
			Help: "Total number of failed exports to external systems",
		},
		[]string{"sink"},
	)

	// RunsCompleted counts finished runs by result
	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterparser_runs_total",
			Help: "Total number of monthly runs",
		},
		[]string{"result"},
	)
)

// Push sends every registered metric to a Pushgateway. Batch runs exit
// before a scrape would see them.
func Push(url, job string) error {
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
