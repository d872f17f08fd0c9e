package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/vsinha/fruitalloc/pkg/infrastructure/events"
)

// DefaultTopic receives ledger events when no topic is configured
const DefaultTopic = "fruitalloc.allocations"

// Message is the JSON body written to Kafka for every ledger event
type Message struct {
	Type      string      `json:"type"`
	Stream    string      `json:"stream"`
	Version   int         `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Publisher forwards ledger events to a Kafka topic. It subscribes to an
// event store as an EventHandler.
type Publisher struct {
	producer   sarama.SyncProducer
	topic      string
	eventTypes map[string]bool
	logger     zerolog.Logger
}

// NewProducer creates a synchronous producer waiting for all in-sync replicas
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Retry.Max = 3
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return producer, nil
}

// NewPublisher creates a publisher for the given event types; no types means
// every ledger event
func NewPublisher(producer sarama.SyncProducer, topic string, logger zerolog.Logger, eventTypes ...string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if len(eventTypes) == 0 {
		eventTypes = events.AllEventTypes
	}
	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	return &Publisher{
		producer:   producer,
		topic:      topic,
		eventTypes: types,
		logger:     logger.With().Str("component", "kafka_publisher").Str("topic", topic).Logger(),
	}
}

// Verify interface compliance
var _ events.EventHandler = (*Publisher)(nil)

// EventTypes returns the event types the publisher forwards
func (p *Publisher) EventTypes() []string {
	types := make([]string, 0, len(p.eventTypes))
	for _, t := range events.AllEventTypes {
		if p.eventTypes[t] {
			types = append(types, t)
		}
	}
	return types
}

// CanHandle reports whether the event type is forwarded
func (p *Publisher) CanHandle(eventType string) bool {
	return p.eventTypes[eventType]
}

// Handle sends one event to Kafka, keyed by its stream
func (p *Publisher) Handle(event events.Event) error {
	body, err := json.Marshal(Message{
		Type:      event.Type(),
		Stream:    event.StreamID(),
		Version:   event.Version(),
		Timestamp: event.Timestamp(),
		Data:      event.Data(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.StreamID()),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type())},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", event.Type()).Msg("failed to publish event")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Debug().
		Str("event_type", event.Type()).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("event published")
	return nil
}

// Close closes the producer
func (p *Publisher) Close() error {
	return p.producer.Close()
}
