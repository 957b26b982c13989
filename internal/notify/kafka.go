package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaDispatcher publishes order events to a Kafka topic, one message
// per event keyed by order id. Delivery failures are logged and dropped;
// the lifecycle core never waits on the broker.
type KafkaDispatcher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaDispatcher(brokers []string, topic string, log *zap.Logger) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		log: log,
	}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.log.Error("encode notification event", zap.Error(err))
		return
	}

	err = d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: payload,
	})
	if err != nil {
		d.log.Warn("notification dispatch failed",
			zap.String("type", string(ev.Type)),
			zap.String("order_id", ev.OrderID),
			zap.Error(err),
		)
	}
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
