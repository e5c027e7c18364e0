// Package redpanda publishes domain events to a Redpanda/Kafka topic.
package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// DefaultTopic receives every domain event.
const DefaultTopic = "interview-events"

// producer is the part of *kgo.Client used by Publisher.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher implements domain.EventPublisher.
type Publisher struct {
	client producer
	topic  string
}

// NewPublisher connects to brokers, instruments the client with kotel and
// makes sure topic exists.
func NewPublisher(ctx context.Context, brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no seed brokers provided")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	k := kotel.NewKotel(kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))))
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.WithHooks(k.Hooks()...),
		kgo.RequestRetries(5),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.RecordDeliveryTimeout(10*time.Second),
		kgo.DialTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}
	if err := ensureTopic(ctx, client, topic, 1, 1); err != nil {
		slog.Warn("failed to ensure events topic", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("redpanda publisher ready", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &Publisher{client: client, topic: topic}, nil
}

// newPublisherWith builds a Publisher over any producer.
func newPublisherWith(p producer, topic string) *Publisher {
	return &Publisher{client: p, topic: topic}
}

// eventRecord keys the record by interview id so one interview's events stay
// ordered within a partition.
func eventRecord(topic string, ev domain.Event) (*kgo.Record, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.InterviewID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "interview_id", Value: []byte(ev.InterviewID)},
		},
		Timestamp: ev.OccurredAt,
	}, nil
}

// Publish writes ev and waits for the broker acknowledgement.
func (p *Publisher) Publish(ctx domain.Context, ev domain.Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	rec, err := eventRecord(p.topic, ev)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("op=events.publish type=%s: %w", ev.Type, err)
	}
	return nil
}

// Close flushes and closes the client.
func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
