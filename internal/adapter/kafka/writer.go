package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/duck57/poke-db/internal/config"
	"github.com/duck57/poke-db/internal/domain"
)

// Writer publishes reconciliation outcomes to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes outcomes in a single WriteMessages call. Messages keep
// the source report's key so outcomes for one report land on one partition.
func (w *Writer) LoadBatch(ctx context.Context, outcomes []domain.OutcomeMessage) error {
	if len(outcomes) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(outcomes))
	for i := range outcomes {
		msg, err := serializeToMessage(outcomes[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d outcomes: %w", len(msgs), err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(out domain.OutcomeMessage) (kafkago.Message, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize outcome: %w", err)
	}
	return kafkago.Message{
		Key:   out.Key,
		Value: data,
		Headers: []kafkago.Header{
			{Key: "outcome", Value: []byte(out.Outcome)},
			{Key: "code", Value: []byte(strconv.Itoa(int(out.Code)))},
			{Key: "processed_at", Value: []byte(out.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
