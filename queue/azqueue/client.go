// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package azqueue

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue/queueerror"
)

// ErrMessageNotFound is returned by a [Client] when the message to delete
// no longer exists or its pop receipt is stale.
var ErrMessageNotFound = errors.New("azqueue: message not found")

// Message is a single message retrieved from Azure Queue Storage.
type Message struct {
	ID              string
	PopReceipt      string
	Content         string
	InsertionTime   time.Time
	ExpirationTime  time.Time
	TimeNextVisible time.Time
	DequeueCount    int64
}

// Client is the subset of the Azure Queue Storage API used by [Runtime].
type Client interface {
	// URL returns the queue URL.
	URL() string

	// CreateQueue creates the queue. A queue which already exists is not an error.
	CreateQueue(ctx context.Context) error

	// DequeueMessages retrieves up to n messages. A zero visibility leaves
	// the service default in place.
	DequeueMessages(ctx context.Context, n int32, visibility time.Duration) ([]Message, error)

	// DeleteMessage deletes a message. It returns [ErrMessageNotFound]
	// when the message is already gone.
	DeleteMessage(ctx context.Context, id, popReceipt string) error
}

type sdkClient struct {
	queue *azqueue.QueueClient
}

func newSDKClient(serviceURL, queueName, accountName, accountKey string) (*sdkClient, error) {
	cred, err := azqueue.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	svc, err := azqueue.NewServiceClientWithSharedKeyCredential(serviceURL, cred, &azqueue.ClientOptions{})
	if err != nil {
		return nil, err
	}

	return &sdkClient{queue: svc.NewQueueClient(queueName)}, nil
}

func (c *sdkClient) URL() string {
	return c.queue.URL()
}

func (c *sdkClient) CreateQueue(ctx context.Context) error {
	_, err := c.queue.Create(ctx, nil)
	if queueerror.HasCode(err, queueerror.QueueAlreadyExists) {
		return nil
	}
	return err
}

func (c *sdkClient) DequeueMessages(ctx context.Context, n int32, visibility time.Duration) ([]Message, error) {
	opts := &azqueue.DequeueMessagesOptions{
		NumberOfMessages: to.Ptr(n),
	}
	if visibility > 0 {
		opts.VisibilityTimeout = to.Ptr(int32(visibility / time.Second))
	}

	resp, err := c.queue.DequeueMessages(ctx, opts)
	if err != nil {
		return nil, err
	}

	msgs := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil {
			continue
		}
		msgs = append(msgs, Message{
			ID:              deref(m.MessageID),
			PopReceipt:      deref(m.PopReceipt),
			Content:         deref(m.MessageText),
			InsertionTime:   deref(m.InsertionTime),
			ExpirationTime:  deref(m.ExpirationTime),
			TimeNextVisible: deref(m.TimeNextVisible),
			DequeueCount:    deref(m.DequeueCount),
		})
	}
	return msgs, nil
}

func (c *sdkClient) DeleteMessage(ctx context.Context, id, popReceipt string) error {
	_, err := c.queue.DeleteMessage(ctx, id, popReceipt, nil)
	if queueerror.HasCode(err, queueerror.MessageNotFound, queueerror.PopReceiptMismatch) {
		return ErrMessageNotFound
	}
	return err
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
