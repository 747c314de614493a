//go:build integration

package containers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaContainer is a single-broker Redpanda instance standing in for the
// registry's audit event topic.
type KafkaContainer struct {
	Container testcontainers.Container
	Brokers   string
}

func NewKafkaContainer(t *testing.T) *KafkaContainer {
	t.Helper()
	ctx := context.Background()

	container, err := kafka.Run(ctx,
		"redpandadata/redpanda:latest",
		kafka.WithClusterID("credreg-test"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	brokers, err := container.Brokers(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(ctx)
	})
	return &KafkaContainer{Container: container, Brokers: brokers[0]}
}

// CreateEventTopic creates topic with one partition, which is how the
// registry keeps relayed events in ledger order. An existing topic is fine.
func (k *KafkaContainer) CreateEventTopic(ctx context.Context, topic string) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(k.Brokers))
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := kadm.NewClient(client).CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil {
		return err
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return resp.Err
	}
	return nil
}

// ReadEvents reads the first n records of topic from the start, without a
// consumer group, and fails if fewer arrive within timeout.
func (k *KafkaContainer) ReadEvents(ctx context.Context, topic string, n int, timeout time.Duration) ([]*kgo.Record, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.Brokers),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	records := make([]*kgo.Record, 0, n)
	for len(records) < n {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil {
			return records, fmt.Errorf("read %d of %d records from %s: %w", len(records), n, topic, ctx.Err())
		}
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}
	return records, nil
}

// Headers flattens record headers for assertions.
func Headers(r *kgo.Record) map[string]string {
	out := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
