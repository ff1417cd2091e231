package stats

import (
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"ridesim/logging"
)

// Broadcaster publishes live MarketEvents to Kafka for external dashboards,
// an optional extension point beyond spec.md's CSV-only output (observer
// only, never feeds back into simulated state). Grounded on
// pedeveaux-kafka-ride-sharing/producer/main.go's producer setup and
// delivery-report loop.
type Broadcaster struct {
	producer *kafka.Producer
	topic    string
}

// NewBroadcaster dials brokers and starts the delivery-report drain
// goroutine.
func NewBroadcaster(brokers, topic string) (*Broadcaster, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": brokers})
	if err != nil {
		return nil, fmt.Errorf("new kafka producer: %w", err)
	}
	go func() {
		for e := range p.Events() {
			if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
				logging.Logger.Warn("kafka delivery failed", "err", m.TopicPartition.Error)
			}
		}
	}()
	return &Broadcaster{producer: p, topic: topic}, nil
}

// Publish serialises evt and enqueues it for delivery; publish failures are
// logged, never fatal — the broadcaster is strictly observational.
func (b *Broadcaster) Publish(evt MarketEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		logging.Logger.Warn("marshal market event failed", "err", err)
		return
	}
	err = b.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &b.topic, Partition: kafka.PartitionAny},
		Value:          body,
	}, nil)
	if err != nil {
		logging.Logger.Warn("kafka produce failed", "err", err)
	}
}

func (b *Broadcaster) Close() {
	b.producer.Flush(2000)
	b.producer.Close()
}
