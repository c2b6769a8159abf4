// Package kafka builds franz-go clients for the audit relay and the asset
// change consumer.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"policykernel/internal/platform/config"
)

// NewProducer returns a client for synchronous produce calls. Returns nil
// when no brokers are configured.
func NewProducer(ctx context.Context, cfg config.KafkaConfig) (*kgo.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}
	return client, nil
}

// NewConsumer returns a group consumer for topic with manual commits.
func NewConsumer(cfg config.KafkaConfig, topic string) (*kgo.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return client, nil
}

type topicCreator interface {
	CreateTopics(ctx context.Context, partitions int32, replicationFactor int16, configs map[string]*string, topics ...string) (kadm.CreateTopicResponses, error)
}

// EnsureTopics creates topics with the broker's default partitioning and
// replication. Topics that already exist are left untouched.
func EnsureTopics(ctx context.Context, client *kgo.Client, topics ...string) error {
	return ensureTopics(ctx, kadm.NewClient(client), topics...)
}

func ensureTopics(ctx context.Context, admin topicCreator, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	resp, err := admin.CreateTopics(ctx, -1, -1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create kafka topics: %w", err)
	}
	var errs []error
	for _, topic := range topics {
		r, ok := resp[topic]
		if !ok || r.Err == nil || errors.Is(r.Err, kerr.TopicAlreadyExists) {
			continue
		}
		errs = append(errs, fmt.Errorf("topic %s: %w", topic, r.Err))
	}
	return errors.Join(errs...)
}
