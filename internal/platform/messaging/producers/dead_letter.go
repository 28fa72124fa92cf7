// Package producers publishes permanently failed webhook jobs to a Kafka dead-letter topic
package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/vly-payment-engine/internal/config"
	"github.com/vly-payment-engine/internal/domain/notification"
)

const dlqReasonRetriesExhausted = "retries_exhausted"

type DLQProducer struct {
	logger   *slog.Logger
	writer   KafkaWriter
	dlqTopic string
}

// dlqMessage is the value written to the dead-letter topic. Payload is the
// unsigned webhook body so a consumer can re-sign and redeliver it.
type dlqMessage struct {
	JobID        int64           `json:"job_id"`
	PaymentID    string          `json:"payment_id"`
	MerchantID   string          `json:"merchant_id"`
	Event        string          `json:"event"`
	TargetURL    string          `json:"target_url"`
	AttemptCount int             `json:"attempt_count"`
	LastError    string          `json:"last_error"`
	Payload      json.RawMessage `json:"payload"`
	DLQReason    string          `json:"dlq_reason"`
	Timestamp    string          `json:"timestamp"`
}

// Returns nil producer if cfg.DLQTopic is empty (DLQ disabled)
func NewDLQProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*DLQProducer, error) {
	if cfg.DLQTopic == "" {
		logger.Info("DLQ topic is not configured. DLQProducer will not be initialized.")
		return nil, nil // DLQ is disabled, not an error.
	}

	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for dlq producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.DLQTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		// Return error to make DLQ topic creation failure explicit
		return nil, fmt.Errorf("failed to ensure DLQ topic %s exists for dlq producer: %w", cfg.DLQTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.DLQTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.WriteTimeout,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write DLQ messages synchronously", "topic", cfg.DLQTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Successfully wrote DLQ messages synchronously", "topic", cfg.DLQTopic, "count", len(messages))
			}
		},
	}

	return &DLQProducer{
		logger:   logger,
		writer:   writer,
		dlqTopic: cfg.DLQTopic,
	}, nil
}

// RecordFailure publishes a job that exhausted its attempts. Messages are keyed by
// payment ID so every failure of one payment lands on the same partition.
func (p *DLQProducer) RecordFailure(ctx context.Context, job *notification.Job) error {
	if p == nil || p.writer == nil {
		return fmt.Errorf("DLQ producer not initialized")
	}

	value, err := json.Marshal(dlqMessage{
		JobID:        job.ID,
		PaymentID:    job.PaymentID.String(),
		MerchantID:   job.MerchantID.String(),
		Event:        string(job.Event),
		TargetURL:    job.TargetURL,
		AttemptCount: job.AttemptCount,
		LastError:    job.LastError,
		Payload:      job.Payload,
		DLQReason:    dlqReasonRetriesExhausted,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message value for dlq producer: %w", err)
	}

	key := job.PaymentID.String()
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "dlq-reason", Value: []byte(dlqReasonRetriesExhausted)},
			{Key: "event", Value: []byte(job.Event)},
			{Key: "job-id", Value: []byte(strconv.FormatInt(job.ID, 10))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish notification to DLQ",
			"topic", p.dlqTopic,
			"job_id", job.ID,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to DLQ %s via dlq producer: %w", p.dlqTopic, err)
	}

	p.logger.Info("Published failed notification to DLQ",
		"topic", p.dlqTopic,
		"job_id", job.ID,
		"payment_id", key,
	)
	return nil
}

func (p *DLQProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.logger.Info("Closing DLQ Kafka message producer", "topic", p.dlqTopic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close dlq kafka writer for topic %s: %w", p.dlqTopic, err)
	}
	return nil
}
