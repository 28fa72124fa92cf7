package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the part of kafka.Writer the DLQ producer uses; tests swap in a mock
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
