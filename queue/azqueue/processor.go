// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package azqueue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/z5labs/queuein/event"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

// Metadata keys stamped below [Runtime.MetadataPath].
const (
	MetadataID              = "id"
	MetadataInsertionTime   = "insertion_time"
	MetadataExpirationTime  = "expiration_time"
	MetadataDequeueCount    = "dequeue_count"
	MetadataPopReceipt      = "pop_receipt"
	MetadataTimeNextVisible = "time_next_visible"
)

// ProcessError reports a message whose content could not be turned into
// events. The message is left on the queue.
type ProcessError struct {
	MessageID string
	Reason    string
	Cause     error
}

// Error implements the [error] interface.
func (e ProcessError) Error() string {
	return fmt.Sprintf("azqueue: failed to process message %s: %s: %s", e.MessageID, e.Reason, e.Cause)
}

// Unwrap returns the underlying error.
func (e ProcessError) Unwrap() error {
	return e.Cause
}

// processMessage turns msg into events and forwards them to the outbox.
func (r *Runtime) processMessage(ctx context.Context, msg Message) error {
	spanCtx, span := tracer().Start(
		ctx,
		"process "+r.queueName,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			messagingSystem,
			semconv.MessagingOperationTypeProcess,
			semconv.MessagingDestinationName(r.queueName),
			semconv.MessagingMessageID(msg.ID),
			attribute.Int64("messaging.azure.queue.dequeue_count", msg.DequeueCount),
		),
	)
	defer span.End()

	events, err := r.eventsFrom(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	for _, ev := range events {
		err := r.outbox.Process(spanCtx, ev)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("azqueue: failed to submit event to outbox: %w", err)
		}
	}

	span.SetAttributes(attribute.Int("queuein.events", len(events)))
	r.metrics.recordMessageProcessed(spanCtx, len(events))
	r.log.DebugContext(
		spanCtx,
		"forwarded message",
		MessageIDAttr(msg.ID),
		DequeueCountAttr(msg.DequeueCount),
		slog.Int("events", len(events)),
	)
	return nil
}

func (r *Runtime) eventsFrom(msg Message) ([]event.Event, error) {
	content := []byte(msg.Content)
	if r.base64Decode {
		b, err := base64.StdEncoding.DecodeString(msg.Content)
		if err != nil {
			return nil, ProcessError{MessageID: msg.ID, Reason: "base64", Cause: err}
		}
		content = b
	}

	dec := r.decoder()
	var payloads []any
	if len(content) > 0 {
		out, err := dec.Decode(content)
		if err != nil {
			return nil, ProcessError{MessageID: msg.ID, Reason: "decode", Cause: err}
		}
		payloads = append(payloads, out...)
	}
	rest, err := dec.Decode(nil)
	if err != nil {
		return nil, ProcessError{MessageID: msg.ID, Reason: "decode", Cause: err}
	}
	payloads = append(payloads, rest...)

	events := make([]event.Event, 0, len(payloads))
	for _, payload := range payloads {
		ev, err := r.newEvent(payload)
		if err != nil {
			return nil, ProcessError{MessageID: msg.ID, Reason: "native", Cause: err}
		}

		err = ev.Set(metadata(msg), r.MetadataPath())
		if err != nil {
			return nil, ProcessError{MessageID: msg.ID, Reason: "metadata", Cause: err}
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r *Runtime) newEvent(payload any) (event.Event, error) {
	if !r.nativeEvents {
		return event.New(payload, r.destination), nil
	}

	switch p := payload.(type) {
	case string:
		return event.Unmarshal([]byte(p))
	case []byte:
		return event.Unmarshal(p)
	case map[string]any:
		b, err := json.Marshal(p)
		if err != nil {
			return event.Event{}, err
		}
		return event.Unmarshal(b)
	default:
		return event.Event{}, fmt.Errorf("native events require text payloads, got %T", payload)
	}
}

func metadata(msg Message) map[string]any {
	return map[string]any{
		MetadataID:              msg.ID,
		MetadataInsertionTime:   epochSeconds(msg.InsertionTime),
		MetadataExpirationTime:  epochSeconds(msg.ExpirationTime),
		MetadataDequeueCount:    msg.DequeueCount,
		MetadataPopReceipt:      msg.PopReceipt,
		MetadataTimeNextVisible: epochSeconds(msg.TimeNextVisible),
	}
}

func epochSeconds(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.Unix(), 10)
}
