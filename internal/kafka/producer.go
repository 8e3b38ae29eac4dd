package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Shopify/sarama"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/models"
)

// Producer publishes run summaries
type Producer struct {
	log      *slog.Logger
	producer sarama.SyncProducer
	topic    string
}

// NewProducer creates a synchronous producer for the summary topic
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return NewProducerFrom(producer, cfg.SummaryTopic, logger), nil
}

// NewProducerFrom wraps an existing sarama producer
func NewProducerFrom(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Producer {
	return &Producer{log: logger, producer: producer, topic: topic}
}

// PublishRun sends the run summary keyed by run ID. Per-file diagnostics
// are left out of the message; they live in the diagnostic log.
func (p *Producer) PublishRun(ctx context.Context, run *models.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := *run
	msg.Blocks = make([]models.BlockSummary, len(run.Blocks))
	for i, b := range run.Blocks {
		b.Diagnostics = nil
		msg.Blocks[i] = b
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(run.ID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("failed to publish run summary: %w", err)
	}
	p.log.Info("Published run summary", "run_id", run.ID, "topic", p.topic, "partition", partition, "offset", offset)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
