// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package azqueue

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/z5labs/queuein/config"
	"github.com/z5labs/queuein/event"
	"github.com/z5labs/queuein/queue"

	"github.com/stretchr/testify/require"
)

type deleteCall struct {
	ID         string
	PopReceipt string
}

type fakeClient struct {
	createErr  error
	dequeueErr error
	deleteErr  map[string]error

	mu             sync.Mutex
	batches        [][]Message
	dequeues       int
	lastN          int32
	lastVisibility time.Duration
	deleted        chan deleteCall
}

func newFakeClient(batches ...[]Message) *fakeClient {
	return &fakeClient{
		batches:   batches,
		deleteErr: map[string]error{},
		deleted:   make(chan deleteCall, 100),
	}
}

func (c *fakeClient) URL() string {
	return "http://127.0.0.1:10001/devstoreaccount1/test-queue"
}

func (c *fakeClient) CreateQueue(ctx context.Context) error {
	if c.createErr != nil {
		return c.createErr
	}
	return ctx.Err()
}

func (c *fakeClient) DequeueMessages(ctx context.Context, n int32, visibility time.Duration) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dequeues++
	c.lastN = n
	c.lastVisibility = visibility
	if len(c.batches) == 0 {
		if c.dequeueErr != nil {
			return nil, c.dequeueErr
		}
		return nil, ctx.Err()
	}
	batch := c.batches[0]
	c.batches = c.batches[1:]
	if len(batch) > int(n) {
		c.batches = append([][]Message{batch[n:]}, c.batches...)
		batch = batch[:n]
	}
	return batch, nil
}

// lastDequeue returns the arguments of the most recent dequeue call.
func (c *fakeClient) lastDequeue() (int32, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastN, c.lastVisibility
}

func (c *fakeClient) DeleteMessage(ctx context.Context, id, popReceipt string) error {
	if err, ok := c.deleteErr[id]; ok {
		return err
	}
	c.deleted <- deleteCall{ID: id, PopReceipt: popReceipt}
	return nil
}

func testConfig() Config {
	return Config{
		AccountName:     config.ReaderOf("devstoreaccount1"),
		AccountKey:      config.ReaderOf("a2V5"),
		QueueName:       config.ReaderOf("test-queue"),
		MaxIdleInterval: config.ReaderOf(5 * time.Millisecond),
	}
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func testMessage(id, content string) Message {
	return Message{
		ID:              id,
		PopReceipt:      "pop-" + id,
		Content:         content,
		InsertionTime:   time.Unix(1700000000, 0),
		ExpirationTime:  time.Unix(1700604800, 0),
		TimeNextVisible: time.Unix(1700000030, 0),
		DequeueCount:    1,
	}
}

func buildRuntime(t *testing.T, cfg Config, outbox queue.Processor[event.Event], opts ...Option) *Runtime {
	t.Helper()

	rt, err := Build("azure", cfg, outbox, opts...).Build(context.Background())
	require.NoError(t, err)
	return rt
}

// startRuntime runs rt in the background. The returned func cancels it
// and returns the result of ProcessQueue.
func startRuntime(t *testing.T, rt *Runtime) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.ProcessQueue(ctx)
	}()

	return func() error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("runtime did not stop")
			return nil
		}
	}
}

func nextEvent(t *testing.T, outbox *queue.Channel[event.Event]) event.Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev, err := outbox.Consume(ctx)
	require.NoError(t, err)
	return ev
}

func nextDelete(t *testing.T, c *fakeClient) deleteCall {
	t.Helper()

	select {
	case call := <-c.deleted:
		return call
	case <-time.After(5 * time.Second):
		t.Fatal("no message was deleted")
		return deleteCall{}
	}
}
