// Package redpanda publishes order status change events to a Redpanda/Kafka
// topic so downstream consumers (notifications, analytics) can react without
// polling the orders table. Publishing is best-effort: a broker outage never
// blocks or fails order processing.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/fairyhunter13/orderflow/internal/domain"
)

// TopicOrderStatus carries one record per order status transition.
const TopicOrderStatus = "order-status"

// Publisher implements domain.EventPublisher on a Kafka client.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// NewPublisher connects to the given brokers and ensures the status topic
// exists.
func NewPublisher(brokers []string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=events.publisher: no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
	)
	if err != nil {
		return nil, fmt.Errorf("op=events.publisher: %w", err)
	}
	if err := createTopicIfNotExists(context.Background(), client, TopicOrderStatus, 1, 1); err != nil {
		slog.Warn("ensure status topic", slog.String("topic", TopicOrderStatus), slog.Any("error", err))
	}
	return &Publisher{client: client, topic: TopicOrderStatus}, nil
}

// PublishStatus emits one status event keyed by order id, so all events for
// an order land on the same partition in order.
func (p *Publisher) PublishStatus(ctx context.Context, ev domain.OrderStatusEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=events.publish_status: %w", err)
	}
	record := &kgo.Record{Topic: p.topic, Key: []byte(ev.OrderID), Value: b}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("op=events.publish_status: %w", err)
	}
	return nil
}

// Close flushes and releases the Kafka client.
func (p *Publisher) Close() {
	p.client.Close()
}

// createTopicIfNotExists creates the topic via the admin API, treating
// TOPIC_ALREADY_EXISTS (error code 36) as success.
func createTopicIfNotExists(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000
	topicReq := kmsg.NewCreateTopicsRequestTopic()
	topicReq.Topic = topic
	topicReq.NumPartitions = partitions
	topicReq.ReplicationFactor = replicationFactor
	req.Topics = append(req.Topics, topicReq)

	resp, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("create topics request: %w", err)
	}
	createResp, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("unexpected response type: %T", resp)
	}
	for _, t := range createResp.Topics {
		if t.ErrorCode != 0 && t.ErrorCode != 36 {
			msg := ""
			if t.ErrorMessage != nil {
				msg = *t.ErrorMessage
			}
			return fmt.Errorf("create topic %s: %s (code %d)", t.Topic, msg, t.ErrorCode)
		}
	}
	return nil
}

// Nop discards every event; used when no brokers are configured.
type Nop struct{}

// PublishStatus implements domain.EventPublisher.
func (Nop) PublishStatus(context.Context, domain.OrderStatusEvent) error { return nil }
