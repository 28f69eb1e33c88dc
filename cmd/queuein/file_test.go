// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/z5labs/queuein/config"
	"github.com/z5labs/queuein/queue/azqueue"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "queuein.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigFromFile(t *testing.T) {
	t.Run("will prefer settings from the file over the environment", func(t *testing.T) {
		t.Setenv("QUEUEIN_SINK", "stdout")
		t.Setenv("AZURE_QUEUE_NAME", "from-env")
		t.Setenv("AZURE_QUEUE_ACCOUNT_NAME", "envaccount")
		t.Setenv("KAFKA_TOPIC", "env-topic")

		path := writeConfigFile(t, `sink: kafka
pipeline_size: 7
azure_queue:
  queue_name: orders
  visibility_timeout: 30s
  batch_size: 16
  auto_message_delete: false
kafka:
  brokers: [localhost:9092, localhost:9093]
  produce_timeout: 5s
`)

		cfg := ConfigFromFile(config.ReaderOf(path), ConfigFromEnv())
		ctx := context.Background()

		require.Equal(t, SinkKafka, config.Must(ctx, cfg.Sink))
		require.Equal(t, 7, config.Must(ctx, cfg.PipelineSize))
		require.Equal(t, "orders", config.Must(ctx, cfg.Queue.QueueName))
		require.Equal(t, 30*time.Second, config.Must(ctx, cfg.Queue.VisibilityTimeout))
		require.Equal(t, int32(16), config.Must(ctx, cfg.Queue.BatchSize))
		require.False(t, config.Must(ctx, cfg.Queue.AutoMessageDelete))
		require.Equal(t, []string{"localhost:9092", "localhost:9093"}, config.Must(ctx, cfg.Kafka.Brokers))
		require.Equal(t, 5*time.Second, config.Must(ctx, cfg.Kafka.ProduceTimeout))

		require.Equal(t, "envaccount", config.Must(ctx, cfg.Queue.AccountName))
		require.Equal(t, "env-topic", config.Must(ctx, cfg.Kafka.Topic))
	})

	t.Run("will only use the environment if no file is named", func(t *testing.T) {
		t.Setenv("AZURE_QUEUE_NAME", "from-env")

		cfg := ConfigFromFile(config.EmptyReader[string](), ConfigFromEnv())

		require.Equal(t, "from-env", config.Must(context.Background(), cfg.Queue.QueueName))
		_, err := config.Read(context.Background(), cfg.Sink)
		require.ErrorIs(t, err, config.ErrValueNotSet)
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the file does not exist", func(t *testing.T) {
			cfg := ConfigFromFile(config.ReaderOf(filepath.Join(t.TempDir(), "missing.yaml")), Config{})

			_, err := config.Read(context.Background(), cfg.Name)
			require.ErrorIs(t, err, os.ErrNotExist)
		})

		t.Run("if the file is not valid yaml", func(t *testing.T) {
			path := writeConfigFile(t, "azure_queue: [orders\n")

			cfg := ConfigFromFile(config.ReaderOf(path), Config{})

			_, err := config.Read(context.Background(), cfg.Queue.QueueName)
			require.ErrorContains(t, err, "failed to unmarshal yaml")
		})

		t.Run("if a duration is malformed", func(t *testing.T) {
			path := writeConfigFile(t, "azure_queue:\n  visibility_timeout: soon\n")

			cfg := ConfigFromFile(config.ReaderOf(path), Config{})

			_, err := config.Read(context.Background(), cfg.Queue.VisibilityTimeout)
			require.Error(t, err)
		})
	})

	t.Run("will be validated by Build", func(t *testing.T) {
		testCases := map[string]struct {
			Content string
			Message string
		}{
			"unknown sink": {
				Content: "sink: s3\n",
				Message: `unknown sink: "s3"`,
			},
			"sub second visibility timeout": {
				Content: "azure_queue:\n  visibility_timeout: 500ms\n",
				Message: "visibility timeout must be between",
			},
		}

		for name, tc := range testCases {
			t.Run(name, func(t *testing.T) {
				cfg := ConfigFromFile(config.ReaderOf(writeConfigFile(t, tc.Content)), testConfig(true))

				_, err := Build(cfg, &syncBuffer{}, azqueue.WithClient(&fakeClient{})).Build(context.Background())
				require.ErrorContains(t, err, tc.Message)
			})
		}
	})
}
