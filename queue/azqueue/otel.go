// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package azqueue

import (
	"context"
	"log/slog"

	"github.com/z5labs/queuein"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/z5labs/queuein/queue/azqueue"

// messagingSystem identifies Azure Queue Storage in telemetry. There is
// no semconv constant for it.
var messagingSystem = semconv.MessagingSystemKey.String("azure_queue_storage")

func logger() *slog.Logger {
	return queuein.Logger(instrumentationName)
}

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// metricsRecorder holds the instruments for one queue.
type metricsRecorder struct {
	queueAttr attribute.KeyValue

	messagesReceived   metric.Int64Counter
	messagesProcessed  metric.Int64Counter
	messagesDeleted    metric.Int64Counter
	processingFailures metric.Int64Counter
}

func newMetricsRecorder(queueName string) (*metricsRecorder, error) {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	messagesReceived, err := meter.Int64Counter(
		"azqueue.consumer.messages.received",
		metric.WithDescription("Total number of messages retrieved from Azure Queue Storage"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	messagesProcessed, err := meter.Int64Counter(
		"azqueue.consumer.messages.processed",
		metric.WithDescription("Total number of messages forwarded as events"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	messagesDeleted, err := meter.Int64Counter(
		"azqueue.consumer.messages.deleted",
		metric.WithDescription("Total number of messages deleted from Azure Queue Storage"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	processingFailures, err := meter.Int64Counter(
		"azqueue.consumer.processing.failures",
		metric.WithDescription("Total number of messages which could not be turned into events"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsRecorder{
		queueAttr:          semconv.MessagingDestinationName(queueName),
		messagesReceived:   messagesReceived,
		messagesProcessed:  messagesProcessed,
		messagesDeleted:    messagesDeleted,
		processingFailures: processingFailures,
	}, nil
}

func (m *metricsRecorder) recordMessagesReceived(ctx context.Context, n int) {
	m.messagesReceived.Add(ctx, int64(n), metric.WithAttributes(messagingSystem, m.queueAttr))
}

func (m *metricsRecorder) recordMessageProcessed(ctx context.Context, events int) {
	m.messagesProcessed.Add(ctx, 1, metric.WithAttributes(
		messagingSystem,
		m.queueAttr,
		attribute.Int("queuein.events", events),
	))
}

func (m *metricsRecorder) recordMessageDeleted(ctx context.Context, trigger string) {
	m.messagesDeleted.Add(ctx, 1, metric.WithAttributes(
		messagingSystem,
		m.queueAttr,
		attribute.String("queuein.delete.trigger", trigger),
	))
}

func (m *metricsRecorder) recordProcessingFailure(ctx context.Context, reason string) {
	m.processingFailures.Add(ctx, 1, metric.WithAttributes(
		messagingSystem,
		m.queueAttr,
		attribute.String("queuein.failure.reason", reason),
	))
}
