//go:build testcontainers

// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/z5labs/queuein/config"
	"github.com/z5labs/queuein/event"
	"github.com/z5labs/queuein/queue"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// setupKafkaContainer starts a Kafka container and returns the broker address and cleanup function.
func setupKafkaContainer(t *testing.T) (brokers []string, cleanup func()) {
	t.Helper()

	ctx := context.Background()

	// Configure Kafka container with KRaft mode settings
	// Using host network mode for simplicity with advertised listeners
	req := testcontainers.ContainerRequest{
		Image: "docker.io/apache/kafka-native:latest",
		HostConfigModifier: func(hc *container.HostConfig) {
			// Use host network mode to avoid port mapping issues
			// This makes the container accessible on localhost at the actual Kafka port
			hc.NetworkMode = "host"
		},
		User: "root", // Run as root to avoid permission issues with /var/lib/kafka/data
		Env: map[string]string{
			// KRaft mode settings
			"KAFKA_NODE_ID":                   "1",
			"KAFKA_PROCESS_ROLES":             "broker,controller",
			"KAFKA_CONTROLLER_QUORUM_VOTERS":  "1@localhost:9093",
			"KAFKA_CONTROLLER_LISTENER_NAMES": "CONTROLLER",

			// Listener configuration
			"KAFKA_LISTENERS":                      "PLAINTEXT://0.0.0.0:9092,CONTROLLER://0.0.0.0:9093",
			"KAFKA_ADVERTISED_LISTENERS":           "PLAINTEXT://localhost:9092",
			"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP": "PLAINTEXT:PLAINTEXT,CONTROLLER:PLAINTEXT",
			"KAFKA_INTER_BROKER_LISTENER_NAME":     "PLAINTEXT",

			// Log settings
			"KAFKA_LOG_DIRS": "/var/lib/kafka/data",

			// Kafka cluster ID
			"KAFKA_CLUSTER_ID": "WmV3pZkQR0O6n5j3x8j6bg==",

			// Cluster settings
			"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR":         "1",
			"KAFKA_TRANSACTION_STATE_LOG_REPLICATION_FACTOR": "1",
			"KAFKA_TRANSACTION_STATE_LOG_MIN_ISR":            "1",
			"KAFKA_GROUP_INITIAL_REBALANCE_DELAY_MS":         "0",
			"KAFKA_AUTO_CREATE_TOPICS_ENABLE":                "false",
		},
		WaitingFor: wait.ForLog("Kafka Server started").WithStartupTimeout(60 * time.Second),
	}

	// Start Kafka container
	kafkaContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Kafka container")

	// With host networking, Kafka is accessible on localhost:9092
	brokerAddr := "localhost:9092"

	// Give Kafka a moment to fully start up
	time.Sleep(2 * time.Second)

	cleanup = func() {
		ctx := context.Background()
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
	}

	return []string{brokerAddr}, cleanup
}

// createTopic creates a Kafka topic with the specified number of partitions.
func createTopic(t *testing.T, brokers []string, topic string, partitions int32) {
	t.Helper()

	ctx := context.Background()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
	)
	require.NoError(t, err, "failed to create Kafka client")
	defer client.Close()

	admin := kadm.NewClient(client)

	resp, err := admin.CreateTopics(ctx, partitions, 1, nil, topic)
	require.NoError(t, err, "failed to create topic")

	for _, topicResp := range resp {
		require.NoError(t, topicResp.Err, "failed to create topic %s", topic)
	}

	// Wait for topic to be ready
	time.Sleep(1 * time.Second)
}

// consumeRecords reads n records from the beginning of topic.
func consumeRecords(t *testing.T, brokers []string, topic string, n int) []*kgo.Record {
	t.Helper()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err, "failed to create Kafka client")
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var records []*kgo.Record
	for len(records) < n {
		fetches := client.PollFetches(ctx)
		require.NoError(t, ctx.Err(), "timed out waiting for records")
		fetches.EachError(func(topic string, partition int32, err error) {
			require.NoError(t, err, "fetch failed for %s/%d", topic, partition)
		})
		records = append(records, fetches.Records()...)
	}
	return records
}

func TestProducer_Kafka(t *testing.T) {
	brokers, cleanup := setupKafkaContainer(t)
	defer cleanup()

	t.Run("will deliver events and acknowledge them", func(t *testing.T) {
		createTopic(t, brokers, "azure-events", 1)

		deletes := queue.NewChannel[event.Event](10)
		p, err := Build(
			Config{
				Brokers: config.ReaderOf(brokers),
				Topic:   config.ReaderOf("azure-events"),
			},
			HeadersFrom("tmp.azure"),
			OnDelivered(queue.AcknowledgerFunc[event.Event](deletes.Process)),
		).Build(context.Background())
		require.NoError(t, err)

		sent := make([]event.Event, 0, 3)
		for _, payload := range []string{"one", "two", "three"} {
			ev := event.New(payload, "")
			require.NoError(t, ev.Set(payload, "tmp.azure.id"))
			require.NoError(t, p.Process(context.Background(), ev))
			sent = append(sent, ev)
		}
		require.NoError(t, p.Close(context.Background()))
		require.Equal(t, 3, deletes.Len())

		records := consumeRecords(t, brokers, "azure-events", 3)
		require.Len(t, records, 3)
		for i, r := range records {
			require.Equal(t, sent[i].UUID.String(), string(r.Key))
			require.Equal(t, []kgo.RecordHeader{{Key: "id", Value: []byte(sent[i].Data["data"].(string))}}, r.Headers)

			got, err := event.Unmarshal(r.Value)
			require.NoError(t, err)
			require.Equal(t, sent[i].UUID, got.UUID)
		}
	})
}
