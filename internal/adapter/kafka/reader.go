package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/city-temperature-etl/internal/config"
	"github.com/couchcryptid/city-temperature-etl/internal/domain"
	"github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	offsetAttempts = 3
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second

	// snapshotIdleTimeout ends a snapshot when no message arrives in time.
	// Offsets below the high-water mark can be undeliverable: transaction
	// markers are never returned and compaction removes records.
	snapshotIdleTimeout = 5 * time.Second
)

var errSnapshotIdle = errors.New("no message before idle timeout")

type messageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
}

// Reader takes a full snapshot of one source topic partition per Extract
// call, from the first retained offset up to the high-water mark observed
// when the call starts. It does not join a consumer group or commit offsets.
// It implements pipeline.Extractor.
type Reader struct {
	brokers     []string
	topic       string
	partition   int
	idleTimeout time.Duration
	logger      *slog.Logger
}

// NewReader creates a snapshot reader for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	return &Reader{
		brokers:     cfg.KafkaBrokers,
		topic:       cfg.KafkaSourceTopic,
		partition:   cfg.KafkaSourcePartition,
		idleTimeout: snapshotIdleTimeout,
		logger:      logger,
	}
}

// Extract reads every message currently in the partition. Messages that do
// not decode into a record are logged and skipped. The read stops at the
// high-water mark, or earlier when the partition goes idle for the snapshot
// idle timeout.
func (r *Reader) Extract(ctx context.Context) ([]domain.Record, error) {
	first, last, err := r.offsets(ctx)
	if err != nil {
		return nil, err
	}
	if last <= first {
		return []domain.Record{}, nil
	}

	kr := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   r.brokers,
		Topic:     r.topic,
		Partition: r.partition,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer kr.Close()

	if err := kr.SetOffset(first); err != nil {
		return nil, fmt.Errorf("seek %s/%d: %w", r.topic, r.partition, err)
	}
	return r.readSnapshot(ctx, kr, first, last)
}

// readSnapshot reads src until the message at last-1 or until it goes idle.
func (r *Reader) readSnapshot(ctx context.Context, src messageReader, first, last int64) ([]domain.Record, error) {
	records := make([]domain.Record, 0, last-first)
	skipped := 0
	for {
		msg, err := r.readNext(ctx, src)
		if errors.Is(err, errSnapshotIdle) {
			r.logger.Warn("snapshot ended before high-water mark",
				"topic", r.topic, "partition", r.partition, "high_water_mark", last, "records", len(records))
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s/%d: %w", r.topic, r.partition, err)
		}

		rec, err := decodeRecord(mapMessageToRawEvent(msg))
		if err != nil {
			skipped++
			r.logger.Warn("skipping undecodable record",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		} else {
			if rec.Timestamp.IsZero() {
				r.logger.Warn("unparseable timestamp", "offset", msg.Offset, "city", rec.City)
			}
			records = append(records, rec)
		}

		if msg.Offset >= last-1 {
			break
		}
	}

	r.logger.Debug("topic snapshot read",
		"topic", r.topic, "partition", r.partition, "records", len(records), "skipped", skipped)
	return records, nil
}

func (r *Reader) readNext(ctx context.Context, src messageReader) (kafkago.Message, error) {
	readCtx, cancel := context.WithTimeout(ctx, r.idleTimeout)
	defer cancel()

	msg, err := src.ReadMessage(readCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return msg, errSnapshotIdle
	}
	return msg, err
}

// offsets returns the first and high-water offsets of the partition. Each
// attempt tries every broker; failed attempts back off before retrying.
func (r *Reader) offsets(ctx context.Context) (first, last int64, err error) {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		first, last, err = r.readOffsets(ctx)
		if err == nil || attempt == offsetAttempts {
			return first, last, err
		}
		r.logger.Warn("read offsets failed, retrying", "topic", r.topic, "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return 0, 0, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

func (r *Reader) readOffsets(ctx context.Context) (first, last int64, err error) {
	var errs []error
	for _, broker := range r.brokers {
		conn, dialErr := kafkago.DialLeader(ctx, "tcp", broker, r.topic, r.partition)
		if dialErr != nil {
			errs = append(errs, dialErr)
			continue
		}
		first, last, err = conn.ReadOffsets()
		_ = conn.Close()
		if err != nil {
			return 0, 0, fmt.Errorf("read offsets %s/%d: %w", r.topic, r.partition, err)
		}
		return first, last, nil
	}
	return 0, 0, fmt.Errorf("dial leader for %s/%d: %w", r.topic, r.partition, errors.Join(errs...))
}

// mapMessageToRawEvent converts a kafka-go message into a RawEvent.
func mapMessageToRawEvent(msg kafkago.Message) domain.RawEvent {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawEvent{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}

// decodeRecord parses a JSON RawRecord payload. A message without a city
// field falls back to the message key.
func decodeRecord(raw domain.RawEvent) (domain.Record, error) {
	var rr domain.RawRecord
	if err := json.Unmarshal(raw.Value, &rr); err != nil {
		return domain.Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	if strings.TrimSpace(rr.City) == "" {
		rr.City = string(raw.Key)
	}
	return domain.ParseRecord(rr)
}
