// Package influxdb publishes billing results of a run to InfluxDB v2.
package influxdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
)

const (
	MeasurementBlock    = "block_billing"
	MeasurementMeter    = "meter_billing"
	MeasurementDistrict = "district_billing"
	MeasurementFile     = "file_diagnostics"
)

// Client represents an InfluxDB v2 client
type Client struct {
	log      *slog.Logger
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	config   config.InfluxDBConfig
}

// NewClient initializes the InfluxDB v2 client and verifies connectivity
func NewClient(ctx context.Context, cfg config.InfluxDBConfig, logger *slog.Logger) (*Client, error) {
	opts := influxdb2.DefaultOptions()
	if cfg.Timeout > 0 {
		opts.SetHTTPRequestTimeout(uint(cfg.Timeout.Seconds()))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != domain.HealthCheckStatusPass {
		client.Close()
		return nil, fmt.Errorf("influxdb is not healthy: %s", health.Status)
	}

	logger.Info("Connected to InfluxDB", "url", cfg.URL, "bucket", cfg.Bucket)
	return &Client{
		log:      logger,
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		config:   cfg,
	}, nil
}

// WriteRun writes the block, meter, district and file points of a run.
func (c *Client) WriteRun(ctx context.Context, run *models.RunSummary) error {
	points := RunPoints(run)
	if len(points) == 0 {
		return nil
	}
	if err := c.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write points: %w", err)
	}
	c.log.Info("Wrote run to InfluxDB", "run_id", run.ID, "points", len(points))
	return nil
}

// Close closes the InfluxDB client
func (c *Client) Close() {
	c.client.Close()
}

// RunPoints builds the points of a run, all stamped at the start of the billing month.
func RunPoints(run *models.RunSummary) []*write.Point {
	ts := time.Date(run.Year, run.Month, 1, 0, 0, 0, 0, time.UTC)
	var points []*write.Point

	for _, b := range run.Blocks {
		points = append(points, write.NewPoint(
			MeasurementBlock,
			map[string]string{"block": b.Block},
			map[string]interface{}{
				"status":              string(b.Status),
				"meters":              b.Meters,
				"files":               b.Files,
				"failed_files":        b.FailedFiles,
				"rt_totalized":        b.Rate.Totalized,
				"rt_average":          b.Rate.Average,
				"operating_hours":     b.Rate.OperatingHours,
				"rt_completeness":     b.Rate.Completeness,
				"monthly_consumption": b.Cumulative.MonthlyConsumption,
				"rth_totalized":       b.Cumulative.Totalized,
				"rth_completeness":    b.Cumulative.Completeness,
			},
			ts,
		))

		if b.Status != models.StatusSuccess {
			continue
		}
		points = append(points, meterPoints(b, ts)...)
		for _, d := range b.Diagnostics {
			points = append(points, diagnosticsPoint(b.Block, d, ts))
		}
	}

	d := run.District
	points = append(points, write.NewPoint(
		MeasurementDistrict,
		map[string]string{},
		map[string]interface{}{
			"meters":              d.Meters,
			"successful_blocks":   d.SuccessfulBlocks,
			"empty_blocks":        d.EmptyBlocks,
			"no_data_blocks":      d.NoDataBlocks,
			"failed_blocks":       d.FailedBlocks,
			"rt_totalized":        d.RateTotalized,
			"operating_hours":     d.RateOperatingHours,
			"rt_completeness":     d.RateCompleteness,
			"monthly_consumption": d.MonthlyConsumption,
			"rth_totalized":       d.CumulativeTotalized,
			"rth_completeness":    d.CumulativeCompleteness,
		},
		ts,
	))
	return points
}

func meterPoints(b models.BlockSummary, ts time.Time) []*write.Point {
	type meter struct {
		rate       *models.RateStatistics
		cumulative *models.CumulativeStatistics
	}
	meters := make(map[string]*meter)
	var order []string
	get := func(device string) *meter {
		m, ok := meters[device]
		if !ok {
			m = &meter{}
			meters[device] = m
			order = append(order, device)
		}
		return m
	}
	for i := range b.RateMeters {
		get(b.RateMeters[i].Device).rate = &b.RateMeters[i]
	}
	for i := range b.CumulativeMeters {
		get(b.CumulativeMeters[i].Device).cumulative = &b.CumulativeMeters[i]
	}

	points := make([]*write.Point, 0, len(order))
	for _, device := range order {
		m := meters[device]
		fields := map[string]interface{}{}
		if m.rate != nil {
			fields["rt_totalized"] = m.rate.Totalized
			fields["rt_average"] = m.rate.Average
			fields["operating_hours"] = m.rate.OperatingHours
			fields["rt_completeness"] = m.rate.Completeness
		}
		if m.cumulative != nil {
			fields["monthly_consumption"] = m.cumulative.MonthlyConsumption
			fields["rth_totalized"] = m.cumulative.Totalized
			fields["rth_unfiltered_totalized"] = m.cumulative.UnfilteredTotalized
			fields["rth_completeness"] = m.cumulative.Completeness
		}
		points = append(points, write.NewPoint(
			MeasurementMeter,
			map[string]string{
				"block":  b.Block,
				"device": device,
			},
			fields,
			ts,
		))
	}
	return points
}

func diagnosticsPoint(block string, d models.Diagnostics, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementFile,
		map[string]string{
			"block":  block,
			"device": d.Device,
			"kind":   d.Kind.String(),
		},
		map[string]interface{}{
			"total_lines":       d.TotalLines,
			"healthy_lines":     d.HealthyLines,
			"faulty_lines":      d.FaultyLines,
			"corrupted_lines":   d.CorruptedLines,
			"out_of_order":      d.OutOfOrderLines,
			"faulty_percentage": d.FaultyPercentage,
			"failures":          len(d.FailureTimestamps),
			"unreadable":        d.Failed(),
		},
		ts,
	)
}
