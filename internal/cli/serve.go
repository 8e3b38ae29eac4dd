package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/kafka"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
)

const shutdownTimeout = 30 * time.Second

type ServeCmd struct{}

func NewServeCmd() *ServeCmd {
	return &ServeCmd{}
}

func (c *ServeCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume run requests from Kafka and process each requested month",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.RequestTopic == "" {
				return errors.New("kafka brokers and request topic are required to serve")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			s := openSinks(ctx, log, cfg)
			clock := clockwork.NewRealClock()

			handler := func(ctx context.Context, req models.RunRequest) error {
				runCfg := requestConfig(cfg, req)
				if err := runCfg.Validate(); err != nil {
					return err
				}
				run, err := executeRun(ctx, log.With("request_id", req.RequestID), clock, runCfg, s)
				if err != nil {
					return err
				}
				if !run.Succeeded() {
					return errNoSuccessfulBlocks
				}
				return nil
			}

			consumer, err := kafka.NewConsumer("consumer-0", cfg.Kafka, handler, log)
			if err != nil {
				s.Close(log)
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			var wg sync.WaitGroup
			consumeErr := make(chan error, 1)
			wg.Add(1)
			go func() {
				defer wg.Done()
				log.Info("Starting consumer", "topic", cfg.Kafka.RequestTopic, "group", cfg.Kafka.GroupID)
				if err := consumer.Consume(ctx); err != nil {
					consumeErr <- err
				}
				log.Info("Consumer stopped")
			}()

			var runErr error
			select {
			case <-sigChan:
				log.Info("Received termination signal, shutting down")
			case runErr = <-consumeErr:
				log.Error("Consumer failed", "error", runErr)
			}
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()

			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()

			select {
			case <-done:
				log.Info("Consumer stopped cleanly")
			case <-shutdownCtx.Done():
				log.Warn("Shutdown timed out, forcing exit")
			}

			if err := consumer.Close(); err != nil {
				log.Warn("Failed to close consumer", "error", err)
			}
			s.Close(log)
			log.Info("Shutdown complete")
			return runErr
		},
	}
	return cmd
}

// requestConfig copies the service config for one requested month.
func requestConfig(base *config.Config, req models.RunRequest) *config.Config {
	cfg := *base
	cfg.Run.Month = req.Month
	cfg.Run.Year = req.Year
	if len(req.Blocks) > 0 {
		cfg.Catalog.Blocks = req.Blocks
	}
	return &cfg
}
