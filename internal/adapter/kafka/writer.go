package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/couchcryptid/city-temperature-etl/internal/config"
	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/city-temperature-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes a run's processed records and summary rows.
// It implements pipeline.Loader.
type Writer struct {
	writer       messageWriter
	recordsTopic string
	summaryTopic string
	logger       *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topics.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{
		writer:       w,
		recordsTopic: cfg.KafkaRecordsTopic,
		summaryTopic: cfg.KafkaSummaryTopic,
		logger:       logger,
	}
}

// Load serializes the result and publishes it in a single WriteMessages call.
// Records are keyed by city so each city's series lands on one partition in
// chronological order.
func (w *Writer) Load(ctx context.Context, result pipeline.Result) error {
	msgs := make([]kafkago.Message, 0, len(result.Records)+len(result.Summary))
	for i := range result.Records {
		ev, err := domain.SerializeProcessedRecord(result.Records[i])
		if err != nil {
			return err
		}
		msgs = append(msgs, toMessage(w.recordsTopic, ev, result))
	}
	for i := range result.Summary {
		ev, err := domain.SerializeSummaryRow(result.Summary[i])
		if err != nil {
			return err
		}
		msgs = append(msgs, toMessage(w.summaryTopic, ev, result))
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish run output: %w", err)
	}
	w.logger.Info("run output published",
		"records", len(result.Records), "summary_rows", len(result.Summary),
		"records_topic", w.recordsTopic, "summary_topic", w.summaryTopic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// toMessage converts an OutputEvent into a message for topic, adding the
// run's mode and fingerprint headers. Headers are sorted by key.
func toMessage(topic string, ev domain.OutputEvent, result pipeline.Result) kafkago.Message {
	headers := make(map[string]string, len(ev.Headers)+2)
	for k, v := range ev.Headers {
		headers[k] = v
	}
	headers["mode"] = string(result.Mode)
	headers["fingerprint"] = result.Fingerprint

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]kafkago.Header, len(keys))
	for i, k := range keys {
		out[i] = kafkago.Header{Key: k, Value: []byte(headers[k])}
	}
	return kafkago.Message{
		Topic:   topic,
		Key:     ev.Key,
		Value:   ev.Value,
		Headers: out,
	}
}
