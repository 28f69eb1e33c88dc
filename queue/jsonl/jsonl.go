// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package jsonl writes pipeline events as JSON lines.
package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/z5labs/queuein/event"
	"github.com/z5labs/queuein/queue"
)

// Writer writes one native event envelope per line. It implements the
// [queue.Processor] interface and is safe for concurrent use.
type Writer struct {
	ack queue.Acknowledger[event.Event]

	mu  sync.Mutex
	enc *json.Encoder
}

// Option configures a [Writer].
type Option func(*Writer)

// OnWritten registers an acknowledger called with every event after its
// line was written.
func OnWritten(a queue.Acknowledger[event.Event]) Option {
	return func(w *Writer) {
		w.ack = a
	}
}

// NewWriter returns a [Writer] writing to w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	jw := &Writer{enc: json.NewEncoder(w)}
	for _, opt := range opts {
		opt(jw)
	}
	return jw
}

// Process implements the [queue.Processor] interface.
func (w *Writer) Process(ctx context.Context, ev event.Event) error {
	err := w.write(ev)
	if err != nil {
		return err
	}
	if w.ack == nil {
		return nil
	}
	return w.ack.Acknowledge(ctx, ev)
}

func (w *Writer) write(ev event.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.enc.Encode(ev)
	if err != nil {
		return fmt.Errorf("jsonl: failed to write event %s: %w", ev.UUID, err)
	}
	return nil
}
