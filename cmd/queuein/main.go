// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command queuein forwards the messages of an Azure Storage queue to
// stdout or a Kafka topic.
//
// It is configured through the environment, see [ConfigFromEnv] and
// [github.com/z5labs/queuein/otel/otlp.SDKFromEnv]. QUEUEIN_CONFIG may
// name a YAML [FileConfig] whose settings take precedence.
package main

import (
	"context"
	"os"

	"github.com/z5labs/queuein/config"
	"github.com/z5labs/queuein/otel"
	"github.com/z5labs/queuein/otel/otlp"
	"github.com/z5labs/queuein/queue"
)

func main() {
	cfg := ConfigFromFile(config.Env("QUEUEIN_CONFIG"), ConfigFromEnv())
	builder := otel.Build(otlp.SDKFromEnv(), Build(cfg, os.Stdout))

	err := queue.Run(context.Background(), builder)
	if err != nil {
		os.Exit(1)
	}
}
