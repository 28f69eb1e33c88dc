// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kafka

import (
	"context"
	"log/slog"

	"github.com/z5labs/queuein"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/z5labs/queuein/queue/kafka"
)

func logger() *slog.Logger {
	return queuein.Logger(meterName)
}

// metricsRecorder holds OTel metric instruments for tracking produced records.
type metricsRecorder struct {
	recordsProduced metric.Int64Counter
	produceFailures metric.Int64Counter
}

// newMetricsRecorder creates a new metricsRecorder with initialized metric instruments.
func newMetricsRecorder() (*metricsRecorder, error) {
	meter := otel.GetMeterProvider().Meter(meterName)

	recordsProduced, err := meter.Int64Counter(
		"kafka.producer.records.produced",
		metric.WithDescription("Total number of events delivered to Kafka"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	produceFailures, err := meter.Int64Counter(
		"kafka.producer.failures",
		metric.WithDescription("Total number of events which could not be delivered to Kafka"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsRecorder{
		recordsProduced: recordsProduced,
		produceFailures: produceFailures,
	}, nil
}

// recordProduced records a record acknowledged by the broker.
func (m *metricsRecorder) recordProduced(ctx context.Context, topic string, partition int32) {
	m.recordsProduced.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("topic", topic),
			attribute.Int("partition", int(partition)),
		),
	)
}

// recordProduceFailure records a record which failed to be delivered.
func (m *metricsRecorder) recordProduceFailure(ctx context.Context, topic string) {
	m.produceFailures.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("topic", topic),
		),
	)
}
