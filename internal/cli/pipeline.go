package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/catalog"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/influxdb"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/kafka"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/objectstore"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/processor"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/report"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/status"
)

// catalogConfig maps the file layout settings of a month onto the scanner config.
func catalogConfig(cfg *config.Config, log *slog.Logger) catalog.Config {
	return catalog.Config{
		Logger:         log,
		Root:           cfg.Catalog.Root,
		DevicePrefixes: cfg.Catalog.DevicePrefixes,
		FilePrefix:     cfg.Catalog.FilePrefix,
		Suffixes: map[models.Kind]string{
			models.KindRate:       cfg.Catalog.RateSuffix,
			models.KindCumulative: cfg.Catalog.CumulativeSuffix,
		},
		Year:      cfg.Run.Year,
		Month:     time.Month(cfg.Run.Month),
		Delimiter: cfg.Catalog.Delimiter,
	}
}

// sinks are the optional external collaborators of a run. A sink that
// cannot be opened is logged and left nil.
type sinks struct {
	influx   *influxdb.Client
	producer *kafka.Producer
	store    *objectstore.Store
	status   *status.Store
}

func openSinks(ctx context.Context, log *slog.Logger, cfg *config.Config) *sinks {
	s := &sinks{}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.NewClient(ctx, cfg.InfluxDB, log)
		if err != nil {
			log.Warn("InfluxDB disabled", "error", err)
		} else {
			s.influx = client
		}
	}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("Kafka summary producer disabled", "error", err)
		} else {
			s.producer = producer
		}
	}
	if cfg.ObjectStore.Enabled {
		client, err := objectstore.NewS3Client(ctx, cfg.ObjectStore)
		if err == nil {
			s.store, err = objectstore.New(objectstore.Config{
				Logger:     log,
				Client:     client,
				Bucket:     cfg.ObjectStore.Bucket,
				MaxRetries: uint(max(cfg.ObjectStore.MaxRetries, 0)),
			})
		}
		if err != nil {
			log.Warn("Object store disabled", "error", err)
		}
	}
	if cfg.Status.Enabled {
		store, err := status.NewStore(ctx, cfg.Status, log)
		if err != nil {
			log.Warn("Status store disabled", "error", err)
		} else {
			s.status = store
		}
	}
	return s
}

func (s *sinks) Close(log *slog.Logger) {
	if s.influx != nil {
		s.influx.Close()
	}
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			log.Warn("Failed to close Kafka producer", "error", err)
		}
	}
	if s.status != nil {
		if err := s.status.Close(); err != nil {
			log.Warn("Failed to close status store", "error", err)
		}
	}
}

// executeRun processes one month end to end: optional raw log mirror,
// block processing, reports, then publication to every open sink.
func executeRun(ctx context.Context, log *slog.Logger, clock clockwork.Clock, cfg *config.Config, s *sinks) (*models.RunSummary, error) {
	month := time.Month(cfg.Run.Month)

	if s.store != nil {
		if _, err := s.store.Mirror(ctx, cfg.ObjectStore.RawPrefix, cfg.Catalog.Root); err != nil {
			metrics.SinkErrors.WithLabelValues("s3").Inc()
			log.Warn("Failed to mirror raw logs, using local files", "error", err)
		}
	}

	exporter, err := report.NewFileExporter(report.ExporterConfig{
		Logger:  log,
		Clock:   clock,
		Dir:     report.RunDir(cfg.Output.Dir, month, cfg.Run.Year),
		Month:   month,
		Year:    cfg.Run.Year,
		CSV:     cfg.Output.CSV,
		Parquet: cfg.Output.Parquet,
		Reports: cfg.Output.Reports,
	})
	if err != nil {
		return nil, err
	}

	procCfg := processor.Config{
		Logger:        log,
		Clock:         clock,
		Catalog:       catalogConfig(cfg, log),
		Encoding:      cfg.Parser.Encoding,
		HealthMarkers: cfg.Parser.HealthMarkers,
		Workers:       cfg.Processor.WorkerCount,
		Blocks:        cfg.Catalog.Blocks,
		Exporter:      exporter,
	}
	if s.status != nil {
		procCfg.Tracker = s.status
	}
	proc, err := processor.NewProcessor(procCfg)
	if err != nil {
		return nil, err
	}

	run, err := proc.Run(ctx)
	if err != nil {
		return nil, err
	}
	run.OutputDir = exporter.Dir()

	if cfg.Output.Reports {
		artifacts, err := report.WriteRunArtifacts(run.OutputDir, run, clock.Now())
		if err != nil {
			return run, fmt.Errorf("failed to write run reports: %w", err)
		}
		run.Artifacts = artifacts
	}

	publish(ctx, log, cfg, s, run)
	return run, nil
}

// publish sends a finished run to the open sinks. Failures are counted and
// logged; they never change the run outcome.
func publish(ctx context.Context, log *slog.Logger, cfg *config.Config, s *sinks, run *models.RunSummary) {
	log = log.With("run_id", run.ID)
	warn := func(sink string, err error) {
		metrics.SinkErrors.WithLabelValues(sink).Inc()
		log.Warn("Failed to publish run", "sink", sink, "error", err)
	}

	if s.store != nil {
		files := append([]string(nil), run.Artifacts...)
		for _, b := range run.Blocks {
			files = append(files, b.Artifacts...)
		}
		prefix := path.Join(cfg.ObjectStore.ArtifactPrefix, fmt.Sprintf("%02d_%d", int(run.Month), run.Year))
		if _, err := s.store.UploadFiles(ctx, prefix, files); err != nil {
			warn("s3", err)
		}
	}
	if s.influx != nil {
		if err := s.influx.WriteRun(ctx, run); err != nil {
			warn("influxdb", err)
		}
	}
	if s.producer != nil {
		if err := s.producer.PublishRun(ctx, run); err != nil {
			warn("kafka", err)
		}
	}
	if s.status != nil {
		if err := s.status.RecordRun(ctx, run); err != nil {
			warn("status", err)
		}
	}
	if cfg.Metrics.PushURL != "" {
		if err := metrics.Push(cfg.Metrics.PushURL, cfg.Metrics.Job); err != nil {
			warn("pushgateway", err)
		}
	}
}
