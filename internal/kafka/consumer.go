// Package kafka receives run requests and publishes run summaries.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shopify/sarama"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
)

// RequestHandler processes one run request
type RequestHandler func(ctx context.Context, req models.RunRequest) error

// Consumer represents a Kafka consumer of run requests
type Consumer struct {
	id       string
	log      *slog.Logger
	config   config.KafkaConfig
	consumer sarama.ConsumerGroup
	handler  RequestHandler
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(id string, cfg config.KafkaConfig, handler RequestHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	// a month run can take minutes between polls
	saramaConfig.Consumer.MaxProcessingTime = 30 * time.Minute
	saramaConfig.Consumer.Group.Session.Timeout = 30 * time.Second

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		id:       id,
		log:      logger.With("consumer", id),
		config:   cfg,
		consumer: client,
		handler:  handler,
	}, nil
}

// Consume starts consuming run requests until ctx is cancelled
func (c *Consumer) Consume(ctx context.Context) error {
	errorChan := make(chan error, 1)
	go func() {
		for err := range c.consumer.Errors() {
			c.log.Error("Consumer error", "error", err)
			select {
			case errorChan <- err:
			default:
			}
		}
	}()

	handler := &consumerGroupHandler{
		log:     c.log,
		handler: c.handler,
		ctx:     ctx,
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errorChan:
			return err
		default:
			if err := c.consumer.Consume(ctx, []string{c.config.RequestTopic}, handler); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return nil
				}
				return err
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}

// DecodeRequest parses and validates a run request message.
func DecodeRequest(data []byte) (models.RunRequest, error) {
	var req models.RunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to decode run request: %w", err)
	}
	if req.Month < 1 || req.Month > 12 {
		return req, fmt.Errorf("%w: %d", config.ErrInvalidMonth, req.Month)
	}
	if req.Year < 1970 || req.Year > 9999 {
		return req, fmt.Errorf("%w: %d", config.ErrInvalidYear, req.Year)
	}
	return req, nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	log     *slog.Logger
	handler RequestHandler
	ctx     context.Context
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim runs requests one at a time. Malformed and failed requests
// are logged and committed so they are not redelivered.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if h.ctx.Err() != nil {
			return h.ctx.Err()
		}
		log := h.log.With("topic", message.Topic, "partition", message.Partition, "offset", message.Offset)

		req, err := DecodeRequest(message.Value)
		if err != nil {
			log.Warn("Skipping invalid run request", "error", err)
			session.MarkMessage(message, "")
			continue
		}
		if req.RequestID == "" {
			req.RequestID = string(message.Key)
		}

		log.Info("Received run request", "request_id", req.RequestID, "month", req.Month, "year", req.Year, "blocks", req.Blocks)
		if err := h.handler(h.ctx, req); err != nil {
			log.Error("Run request failed", "request_id", req.RequestID, "error", err)
		}
		session.MarkMessage(message, "")
	}
	return nil
}
