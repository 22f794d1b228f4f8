package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/marketplace-orders/pkg/outbox/registry"
)

const (
	sinkPubSub = "pubsub"
	sinkKafka  = "kafka"
)

// message is one outbox row ready for the broker. Key is the aggregate id so
// every event of one order lands on the same partition/ordering key.
type message struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

// sink delivers messages to a broker topic.
type sink interface {
	Name() string
	Ping(ctx context.Context) error
	Publish(ctx context.Context, topic string, msg message) error
	Close() error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type pubSubSink struct {
	client  pubSubClient
	factory publisherFactory
}

func newPubSubSink(client pubSubClient, factory publisherFactory) (*pubSubSink, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(client.Publisher(topic))
		}
	}
	return &pubSubSink{client: client, factory: factory}, nil
}

func (s *pubSubSink) Name() string { return sinkPubSub }

func (s *pubSubSink) Ping(ctx context.Context) error { return s.client.Ping(ctx) }

func (s *pubSubSink) Publish(ctx context.Context, topic string, msg message) error {
	pub := s.factory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.Key,
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}

func (s *pubSubSink) Close() error { return nil }

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaDialer func(ctx context.Context) error

// kafkaSink writes synchronously with acks from all replicas; the outbox row is
// only marked published after the broker confirmed it.
type kafkaSink struct {
	writer kafkaWriter
	dial   kafkaDialer
}

func newKafkaSink(brokers []string) (*kafkaSink, error) {
	addrs := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	dial := func(ctx context.Context) error {
		conn, err := kafka.DialContext(ctx, "tcp", addrs[0])
		if err != nil {
			return err
		}
		return conn.Close()
	}
	return &kafkaSink{writer: writer, dial: dial}, nil
}

func (s *kafkaSink) Name() string { return sinkKafka }

func (s *kafkaSink) Ping(ctx context.Context) error {
	if s.dial == nil {
		return nil
	}
	return s.dial(ctx)
}

func (s *kafkaSink) Publish(ctx context.Context, topic string, msg message) error {
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
		Time:    time.Now().UTC(),
	})
}

func (s *kafkaSink) Close() error { return s.writer.Close() }
