// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package queue

import (
	"context"
	"fmt"
)

// ItemProcessor handles a single item per call to ProcessItem.
type ItemProcessor interface {
	ProcessItem(context.Context) error
}

type atLeastOnce[T any] struct {
	consumer     Consumer[T]
	processor    Processor[T]
	acknowledger Acknowledger[T]
}

// ProcessAtLeastOnce consumes an item, processes it and only then
// acknowledges it. An item which fails processing is left on the queue
// to be delivered again, so processors must tolerate duplicates.
func ProcessAtLeastOnce[T any](c Consumer[T], p Processor[T], a Acknowledger[T]) ItemProcessor {
	return atLeastOnce[T]{
		consumer:     c,
		processor:    p,
		acknowledger: a,
	}
}

// ProcessItem implements the [ItemProcessor] interface.
func (x atLeastOnce[T]) ProcessItem(ctx context.Context) error {
	item, err := x.consumer.Consume(ctx)
	if err != nil {
		return err
	}

	err = x.processor.Process(ctx, item)
	if err != nil {
		return fmt.Errorf("queue: failed to process item: %w", err)
	}

	err = x.acknowledger.Acknowledge(ctx, item)
	if err != nil {
		return fmt.Errorf("queue: failed to acknowledge item: %w", err)
	}
	return nil
}

type atMostOnce[T any] struct {
	consumer     Consumer[T]
	processor    Processor[T]
	acknowledger Acknowledger[T]
}

// ProcessAtMostOnce consumes an item, acknowledges it and then processes
// it. An item which fails processing is lost.
func ProcessAtMostOnce[T any](c Consumer[T], p Processor[T], a Acknowledger[T]) ItemProcessor {
	return atMostOnce[T]{
		consumer:     c,
		processor:    p,
		acknowledger: a,
	}
}

// ProcessItem implements the [ItemProcessor] interface.
func (x atMostOnce[T]) ProcessItem(ctx context.Context) error {
	item, err := x.consumer.Consume(ctx)
	if err != nil {
		return err
	}

	err = x.acknowledger.Acknowledge(ctx, item)
	if err != nil {
		return fmt.Errorf("queue: failed to acknowledge item: %w", err)
	}

	err = x.processor.Process(ctx, item)
	if err != nil {
		return fmt.Errorf("queue: failed to process item: %w", err)
	}
	return nil
}
