package telemetry

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaEmitter writes JSON points keyed by meter, so one BMS stays on one partition.
type KafkaEmitter struct {
	writer *kafka.Writer
}

func NewKafkaEmitter(brokers []string, topic string) *KafkaEmitter {
	return &KafkaEmitter{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			WriteTimeout:           10 * time.Second,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (e *KafkaEmitter) Emit(ctx context.Context, p Point) error {
	return e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(p.Meter),
		Value: FormatJSON.Encode(p),
		Time:  p.Time,
		Headers: []kafka.Header{
			{Key: "measurement", Value: []byte(p.Measurement)},
		},
	})
}

func (e *KafkaEmitter) Close() error {
	return e.writer.Close()
}
