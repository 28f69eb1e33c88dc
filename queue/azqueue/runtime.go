// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package azqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/z5labs/queuein/event"
	"github.com/z5labs/queuein/queue"

	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/conc/pool"
)

// ErrMissingMessageMetadata is reported when an event asked to be deleted
// carries no message id or pop receipt.
var ErrMissingMessageMetadata = errors.New("azqueue: event is missing message metadata")

const initialIdleInterval = 100 * time.Millisecond

// ProcessQueue implements the [queue.QueueRuntime] interface.
//
// It creates the queue if needed and then polls it while deleting messages
// requested through [Runtime.Delete], until ctx is cancelled or either
// loop fails.
func (r *Runtime) ProcessQueue(ctx context.Context) error {
	url := r.client.URL()
	err := r.client.CreateQueue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return ConnectError{URL: url, Cause: err}
	}
	r.log.InfoContext(ctx, "connected to Azure Queue Service", QueueURLAttr(url))

	r.health.MarkHealthy()
	defer r.health.MarkUnhealthy()

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(r.pollMessages)
	p.Go(r.deleteRequested)

	err = p.Wait()
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	if errors.Is(err, queue.ErrEndOfQueue) {
		return nil
	}
	return err
}

func (r *Runtime) pollMessages(ctx context.Context) error {
	consumer := &messageConsumer{
		client:     r.client,
		batchSize:  r.batchSize,
		visibility: r.visibilityTimeout,
		idle:       newIdleBackOff(r.maxIdleInterval),
		metrics:    r.metrics,
	}

	item := queue.ProcessAtLeastOnce[Message](
		consumer,
		queue.ProcessorFunc[Message](r.processMessage),
		r.acknowledger(),
	)

	for {
		err := item.ProcessItem(ctx)
		var perr ProcessError
		if errors.As(err, &perr) {
			r.log.WarnContext(
				ctx,
				"failed to process message",
				MessageIDAttr(perr.MessageID),
				slog.String("reason", perr.Reason),
				slog.Any("error", perr.Cause),
			)
			r.metrics.recordProcessingFailure(ctx, perr.Reason)
			continue
		}
		if err != nil {
			return err
		}
	}
}

func (r *Runtime) acknowledger() queue.Acknowledger[Message] {
	if !r.autoDelete {
		return queue.AcknowledgerFunc[Message](func(context.Context, Message) error {
			return nil
		})
	}
	return queue.AcknowledgerFunc[Message](func(ctx context.Context, msg Message) error {
		return r.deleteMessage(ctx, msg.ID, msg.PopReceipt, "auto")
	})
}

func (r *Runtime) deleteRequested(ctx context.Context) error {
	for {
		ev, err := r.deletes.Consume(ctx)
		if errors.Is(err, queue.ErrEndOfQueue) {
			return nil
		}
		if err != nil {
			return err
		}

		id, popReceipt, err := r.messageRef(ev)
		if err != nil {
			r.log.WarnContext(
				ctx,
				"skipping delete request",
				slog.String("event.uuid", ev.UUID.String()),
				slog.Any("error", err),
			)
			continue
		}

		err = r.deleteMessage(ctx, id, popReceipt, "request")
		if err != nil {
			return err
		}
	}
}

func (r *Runtime) messageRef(ev event.Event) (id string, popReceipt string, err error) {
	id, err = ev.GetString(r.MetadataPath() + "." + MetadataID)
	if err != nil || id == "" {
		return "", "", fmt.Errorf("%w: %s.%s", ErrMissingMessageMetadata, r.MetadataPath(), MetadataID)
	}
	popReceipt, err = ev.GetString(r.MetadataPath() + "." + MetadataPopReceipt)
	if err != nil || popReceipt == "" {
		return "", "", fmt.Errorf("%w: %s.%s", ErrMissingMessageMetadata, r.MetadataPath(), MetadataPopReceipt)
	}
	return id, popReceipt, nil
}

func (r *Runtime) deleteMessage(ctx context.Context, id, popReceipt, trigger string) error {
	err := r.client.DeleteMessage(ctx, id, popReceipt)
	if errors.Is(err, ErrMessageNotFound) {
		r.log.WarnContext(ctx, "message already deleted", MessageIDAttr(id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("azqueue: failed to delete message %s: %w", id, err)
	}

	r.metrics.recordMessageDeleted(ctx, trigger)
	r.log.DebugContext(ctx, "deleted message", MessageIDAttr(id), slog.String("trigger", trigger))
	return nil
}

// messageConsumer hands out dequeued messages one at a time, pausing
// between polls while the queue is empty.
type messageConsumer struct {
	client     Client
	batchSize  int32
	visibility time.Duration
	idle       backoff.BackOff
	metrics    *metricsRecorder

	buf []Message
}

func (c *messageConsumer) Consume(ctx context.Context) (Message, error) {
	for len(c.buf) == 0 {
		msgs, err := c.client.DequeueMessages(ctx, c.batchSize, c.visibility)
		if err != nil {
			if ctx.Err() != nil {
				return Message{}, ctx.Err()
			}
			return Message{}, fmt.Errorf("azqueue: failed to dequeue messages: %w", err)
		}
		if len(msgs) == 0 {
			err := sleep(ctx, c.idle.NextBackOff())
			if err != nil {
				return Message{}, err
			}
			continue
		}

		c.idle.Reset()
		c.metrics.recordMessagesReceived(ctx, len(msgs))
		c.buf = msgs
	}

	msg := c.buf[0]
	c.buf = c.buf[1:]
	return msg, nil
}

func newIdleBackOff(maxInterval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(initialIdleInterval, maxInterval)
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
