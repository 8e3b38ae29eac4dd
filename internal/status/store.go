// Package status keeps run and block outcomes in Redis so a service
// deployment can be polled while a month is being processed.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
)

const (
	keyPrefix  = "meterparser"
	recentRuns = keyPrefix + ":runs"
	defaultTTL = 30 * 24 * time.Hour
)

var ErrNotFound = errors.New("run not found")

func RunKey(runID string) string    { return fmt.Sprintf("%s:run:%s", keyPrefix, runID) }
func BlocksKey(runID string) string { return RunKey(runID) + ":blocks" }

func BlockKey(runID, block string) string {
	return fmt.Sprintf("%s:block:%s", RunKey(runID), block)
}

// LatestKey points at the most recent run of a billing month.
func LatestKey(month time.Month, year int) string {
	return fmt.Sprintf("%s:latest:%04d-%02d", keyPrefix, year, int(month))
}

// Store records run progress in Redis
type Store struct {
	log    *slog.Logger
	client *redis.Client
	ttl    time.Duration
}

// NewStore connects to Redis and verifies the connection
func NewStore(ctx context.Context, cfg config.StatusConfig, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: 3,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{log: logger, client: client, ttl: ttl}, nil
}

// RecordBlock stores a finished block and its status under the run.
func (s *Store) RecordBlock(ctx context.Context, runID string, summary models.BlockSummary) error {
	summary.Diagnostics = nil
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal block summary: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, BlockKey(runID, summary.Block), data, s.ttl)
	pipe.HSet(ctx, BlocksKey(runID), summary.Block, string(summary.Status))
	pipe.Expire(ctx, BlocksKey(runID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record block %s: %w", summary.Block, err)
	}
	return nil
}

// RecordRun stores the run summary and marks it as the latest run of its month.
func (s *Store) RecordRun(ctx context.Context, run *models.RunSummary) error {
	msg := *run
	msg.Blocks = make([]models.BlockSummary, len(run.Blocks))
	for i, b := range run.Blocks {
		b.Diagnostics = nil
		msg.Blocks[i] = b
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, RunKey(run.ID), data, s.ttl)
	pipe.Set(ctx, LatestKey(run.Month, run.Year), run.ID, s.ttl)
	pipe.ZAdd(ctx, recentRuns, redis.Z{Score: float64(run.FinishedAt.Unix()), Member: run.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	s.log.Debug("Recorded run status", "run_id", run.ID)
	return nil
}

// GetRun loads a recorded run summary.
func (s *Store) GetRun(ctx context.Context, runID string) (*models.RunSummary, error) {
	data, err := s.client.Get(ctx, RunKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}

	var run models.RunSummary
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return &run, nil
}

// BlockStatuses returns the statuses recorded so far for a run.
func (s *Store) BlockStatuses(ctx context.Context, runID string) (map[string]models.BlockStatus, error) {
	raw, err := s.client.HGetAll(ctx, BlocksKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get block statuses: %w", err)
	}
	out := make(map[string]models.BlockStatus, len(raw))
	for block, st := range raw {
		out[block] = models.BlockStatus(st)
	}
	return out, nil
}

// LatestRun returns the ID of the most recent run of a month.
func (s *Store) LatestRun(ctx context.Context, month time.Month, year int) (string, error) {
	id, err := s.client.Get(ctx, LatestKey(month, year)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %04d-%02d", ErrNotFound, year, int(month))
	}
	return id, err
}

// RecentRuns returns up to limit run IDs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]string, error) {
	ids, err := s.client.ZRevRange(ctx, recentRuns, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return ids, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
