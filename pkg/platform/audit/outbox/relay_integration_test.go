//go:build integration

package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"policykernel/internal/platform/config"
	"policykernel/internal/platform/kafka"
	audit "policykernel/pkg/platform/audit"
	"policykernel/pkg/platform/audit/store/postgres"
	"policykernel/pkg/testutil/containers"
)

func TestRelayDeliversToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := containers.GetManager().GetPostgres(t)
	broker := containers.GetManager().GetRedpanda(t).Broker
	require.NoError(t, pg.Truncate(ctx))

	topic := "audit-" + uuid.NewString()
	producer, err := kafka.NewProducer(ctx, config.KafkaConfig{Brokers: []string{broker}})
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, kafka.EnsureTopics(ctx, producer, topic))

	store := postgres.New(pg.DB)
	assetID := uuid.NewString()
	require.NoError(t, store.Append(ctx, audit.Event{
		Timestamp: time.Now(),
		AssetID:   assetID,
		Action:    string(audit.EventComplianceEvaluated),
		ActorID:   "system",
	}))

	relay := New(store, producer, topic)
	n, err := relay.RelayOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "published rows are not relayed twice")

	reader, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer reader.Close()

	fetches := reader.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, assetID, string(records[0].Key))
	require.Equal(t, "event_type", records[0].Headers[0].Key)
	require.Equal(t, string(audit.EventComplianceEvaluated), string(records[0].Headers[0].Value))
}
