// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package queue

import (
	"context"
	"sync"
)

// Channel is a bounded in-memory queue connecting two pipeline stages.
// Process enqueues and blocks while the queue is full, Consume dequeues
// and blocks while it is empty. It is safe for concurrent use.
type Channel[T any] struct {
	items     chan T
	done      chan struct{}
	closeOnce sync.Once
}

// NewChannel returns a [Channel] holding at most size items.
// A size below 1 creates an unbuffered channel.
func NewChannel[T any](size int) *Channel[T] {
	if size < 0 {
		size = 0
	}
	return &Channel[T]{
		items: make(chan T, size),
		done:  make(chan struct{}),
	}
}

// Process implements the [Processor] interface by enqueueing t.
// It returns [ErrEndOfQueue] once the channel is closed.
func (c *Channel[T]) Process(ctx context.Context, t T) error {
	select {
	case <-c.done:
		return ErrEndOfQueue
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrEndOfQueue
	case c.items <- t:
		return nil
	}
}

// Consume implements the [Consumer] interface. Items still buffered
// when the channel is closed are drained before [ErrEndOfQueue] is returned.
func (c *Channel[T]) Consume(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case t := <-c.items:
		return t, nil
	case <-c.done:
	}

	select {
	case t := <-c.items:
		return t, nil
	default:
		return zero, ErrEndOfQueue
	}
}

// Len reports the number of buffered items.
func (c *Channel[T]) Len() int {
	return len(c.items)
}

// Close stops accepting new items. It is safe to call more than once.
func (c *Channel[T]) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}
