package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka publishes trade events to a topic, keyed by account so per-account
// ordering survives partitioning.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 200 * time.Millisecond,
		RequiredAcks: int(kafka.RequireOne),
	})
	return &Kafka{writer: w}
}

func (k *Kafka) PublishTrade(ctx context.Context, ev TradeEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.AccountID),
		Value: value,
		Time:  ev.ExecutedAt,
	})
}

func (k *Kafka) Close() error { return k.writer.Close() }
