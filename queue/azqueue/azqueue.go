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
	"strings"
	"time"

	"github.com/z5labs/queuein/app"
	"github.com/z5labs/queuein/config"
	"github.com/z5labs/queuein/decode"
	"github.com/z5labs/queuein/event"
	"github.com/z5labs/queuein/health"
	"github.com/z5labs/queuein/queue"
)

// Limits enforced by Azure Queue Storage on a dequeue call.
const (
	MinBatchSize = 1
	MaxBatchSize = 32

	MinVisibilityTimeout = time.Second
	MaxVisibilityTimeout = 7 * 24 * time.Hour
)

// Config holds configuration readers for an Azure Queue Storage input.
// AccountName, AccountKey and QueueName are required.
type Config struct {
	AccountName       config.Reader[string]
	AccountKey        config.Reader[string]
	EndpointSuffix    config.Reader[string]
	Endpoint          config.Reader[string]
	QueueName         config.Reader[string]
	VisibilityTimeout config.Reader[time.Duration]
	AutoMessageDelete config.Reader[bool]
	Base64Decode      config.Reader[bool]
	Destination       config.Reader[string]
	NativeEvents      config.Reader[bool]
	BatchSize         config.Reader[int32]
	MaxIdleInterval   config.Reader[time.Duration]
	DeleteQueueSize   config.Reader[int]
}

// ConfigFromEnv returns a [Config] where every field is read from its
// AZURE_QUEUE_* environment variable.
func ConfigFromEnv() Config {
	return Config{
		AccountName:       AccountNameFromEnv(),
		AccountKey:        AccountKeyFromEnv(),
		EndpointSuffix:    EndpointSuffixFromEnv(),
		Endpoint:          EndpointFromEnv(),
		QueueName:         QueueNameFromEnv(),
		VisibilityTimeout: VisibilityTimeoutFromEnv(),
		AutoMessageDelete: AutoMessageDeleteFromEnv(),
		Base64Decode:      Base64DecodeFromEnv(),
		Destination:       DestinationFromEnv(),
		NativeEvents:      NativeEventsFromEnv(),
		BatchSize:         BatchSizeFromEnv(),
		MaxIdleInterval:   MaxIdleIntervalFromEnv(),
		DeleteQueueSize:   DeleteQueueSizeFromEnv(),
	}
}

// AccountNameFromEnv reads the storage account name from AZURE_QUEUE_ACCOUNT_NAME.
func AccountNameFromEnv() config.Reader[string] {
	return config.Env("AZURE_QUEUE_ACCOUNT_NAME")
}

// AccountKeyFromEnv reads the storage account key from AZURE_QUEUE_ACCOUNT_KEY.
func AccountKeyFromEnv() config.Reader[string] {
	return config.Env("AZURE_QUEUE_ACCOUNT_KEY")
}

// EndpointSuffixFromEnv reads the endpoint suffix from AZURE_QUEUE_ENDPOINT_SUFFIX.
func EndpointSuffixFromEnv() config.Reader[string] {
	return config.Env("AZURE_QUEUE_ENDPOINT_SUFFIX")
}

// EndpointFromEnv reads a full service URL from AZURE_QUEUE_ENDPOINT.
// When set it replaces the URL derived from the account name and suffix,
// e.g. "http://127.0.0.1:10001/devstoreaccount1" for Azurite.
func EndpointFromEnv() config.Reader[string] {
	return config.Env("AZURE_QUEUE_ENDPOINT")
}

// QueueNameFromEnv reads the queue name from AZURE_QUEUE_NAME.
func QueueNameFromEnv() config.Reader[string] {
	return config.Env("AZURE_QUEUE_NAME")
}

// VisibilityTimeoutFromEnv reads the visibility timeout from AZURE_QUEUE_VISIBILITY_TIMEOUT.
// The value should be a duration string (e.g., "30s", "5m").
func VisibilityTimeoutFromEnv() config.Reader[time.Duration] {
	return config.DurationFromString(config.Env("AZURE_QUEUE_VISIBILITY_TIMEOUT"))
}

// AutoMessageDeleteFromEnv reads AZURE_QUEUE_AUTO_MESSAGE_DELETE.
func AutoMessageDeleteFromEnv() config.Reader[bool] {
	return config.BoolFromString(config.Env("AZURE_QUEUE_AUTO_MESSAGE_DELETE"))
}

// Base64DecodeFromEnv reads AZURE_QUEUE_BASE64_DECODE.
func Base64DecodeFromEnv() config.Reader[bool] {
	return config.BoolFromString(config.Env("AZURE_QUEUE_BASE64_DECODE"))
}

// DestinationFromEnv reads the payload destination path from AZURE_QUEUE_DESTINATION.
func DestinationFromEnv() config.Reader[string] {
	return config.Env("AZURE_QUEUE_DESTINATION")
}

// NativeEventsFromEnv reads AZURE_QUEUE_NATIVE_EVENTS.
func NativeEventsFromEnv() config.Reader[bool] {
	return config.BoolFromString(config.Env("AZURE_QUEUE_NATIVE_EVENTS"))
}

// BatchSizeFromEnv reads the number of messages per dequeue call from AZURE_QUEUE_BATCH_SIZE.
func BatchSizeFromEnv() config.Reader[int32] {
	return config.Int32FromString(config.Env("AZURE_QUEUE_BATCH_SIZE"))
}

// MaxIdleIntervalFromEnv reads the longest pause between polls of an
// empty queue from AZURE_QUEUE_MAX_IDLE_INTERVAL.
func MaxIdleIntervalFromEnv() config.Reader[time.Duration] {
	return config.DurationFromString(config.Env("AZURE_QUEUE_MAX_IDLE_INTERVAL"))
}

// DeleteQueueSizeFromEnv reads the capacity of the delete queue from AZURE_QUEUE_DELETE_QUEUE_SIZE.
func DeleteQueueSizeFromEnv() config.Reader[int] {
	return config.IntFromString(config.Env("AZURE_QUEUE_DELETE_QUEUE_SIZE"))
}

// Option configures optional [Runtime] behaviour.
type Option func(*options)

type options struct {
	decoder decode.Factory
	client  Client
}

// WithDecoder sets the decoder used to split message content into payloads.
// A fresh decoder is created for every message. Defaults to [decode.PlainFactory].
func WithDecoder(f decode.Factory) Option {
	return func(o *options) {
		o.decoder = f
	}
}

// WithClient replaces the Azure SDK client, e.g. with a fake in tests.
func WithClient(c Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// Build returns an [app.Builder] for a [Runtime] which forwards every
// message of the configured queue to outbox. name identifies the input
// and selects where message metadata is stamped ("tmp.<name>").
//
// Example:
//
//	outbox := queue.NewChannel[event.Event](100)
//	builder := azqueue.Build("orders", azqueue.ConfigFromEnv(), outbox)
func Build(name string, cfg Config, outbox queue.Processor[event.Event], opts ...Option) app.Builder[*Runtime] {
	return app.BuilderFunc[*Runtime](func(ctx context.Context) (*Runtime, error) {
		if name == "" {
			return nil, errors.New("azqueue: input name must not be empty")
		}
		if outbox == nil {
			return nil, errors.New("azqueue: outbox must not be nil")
		}

		o := &options{
			decoder: decode.PlainFactory(),
		}
		for _, opt := range opts {
			opt(o)
		}

		accountName, err := requireString(ctx, "account name", cfg.AccountName)
		if err != nil {
			return nil, err
		}
		accountKey, err := requireString(ctx, "account key", cfg.AccountKey)
		if err != nil {
			return nil, err
		}
		queueName, err := requireString(ctx, "queue name", cfg.QueueName)
		if err != nil {
			return nil, err
		}

		endpointSuffix, err := readOr(ctx, "endpoint suffix", "core.windows.net", cfg.EndpointSuffix)
		if err != nil {
			return nil, err
		}
		endpoint, err := readOr(ctx, "endpoint", ServiceURL(accountName, endpointSuffix), cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		visibilityTimeout, err := readOr(ctx, "visibility timeout", 0, cfg.VisibilityTimeout)
		if err != nil {
			return nil, err
		}
		err = validateVisibilityTimeout(visibilityTimeout)
		if err != nil {
			return nil, err
		}
		autoDelete, err := readOr(ctx, "auto message delete", true, cfg.AutoMessageDelete)
		if err != nil {
			return nil, err
		}
		b64, err := readOr(ctx, "base64 decode", true, cfg.Base64Decode)
		if err != nil {
			return nil, err
		}
		destination, err := readOr(ctx, "destination", event.DefaultDestination, cfg.Destination)
		if err != nil {
			return nil, err
		}
		native, err := readOr(ctx, "native events", false, cfg.NativeEvents)
		if err != nil {
			return nil, err
		}
		batchSize, err := readOr(ctx, "batch size", int32(MinBatchSize), cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		if batchSize < MinBatchSize || batchSize > MaxBatchSize {
			return nil, fmt.Errorf("azqueue: batch size must be between %d and %d: %d", MinBatchSize, MaxBatchSize, batchSize)
		}
		maxIdle, err := readOr(ctx, "max idle interval", 5*time.Second, cfg.MaxIdleInterval)
		if err != nil {
			return nil, err
		}
		if maxIdle <= 0 {
			return nil, fmt.Errorf("azqueue: max idle interval must be positive: %s", maxIdle)
		}
		deleteQueueSize, err := readOr(ctx, "delete queue size", 100, cfg.DeleteQueueSize)
		if err != nil {
			return nil, err
		}

		client := o.client
		if client == nil {
			client, err = newSDKClient(endpoint, queueName, accountName, accountKey)
			if err != nil {
				return nil, fmt.Errorf("azqueue: failed to create client: %w", err)
			}
		}

		metrics, err := newMetricsRecorder(queueName)
		if err != nil {
			return nil, fmt.Errorf("azqueue: failed to initialize metrics: %w", err)
		}

		rt := &Runtime{
			log:               logger().With(slog.String("input", name), QueueAttr(queueName)),
			name:              name,
			queueName:         queueName,
			client:            client,
			outbox:            outbox,
			decoder:           o.decoder,
			visibilityTimeout: visibilityTimeout,
			autoDelete:        autoDelete,
			base64Decode:      b64,
			destination:       destination,
			nativeEvents:      native,
			batchSize:         batchSize,
			maxIdleInterval:   maxIdle,
			deletes:           queue.NewChannel[event.Event](deleteQueueSize),
			metrics:           metrics,
		}
		return rt, nil
	})
}

// ServiceURL returns the queue service URL of a storage account.
func ServiceURL(accountName, endpointSuffix string) string {
	return fmt.Sprintf("https://%s.queue.%s/", accountName, endpointSuffix)
}

// validateVisibilityTimeout accepts zero, meaning the queue default, or a
// whole number of seconds within the range Azure allows.
func validateVisibilityTimeout(d time.Duration) error {
	if d == 0 {
		return nil
	}
	if d < MinVisibilityTimeout || d > MaxVisibilityTimeout {
		return fmt.Errorf("azqueue: visibility timeout must be between %s and %s: %s", MinVisibilityTimeout, MaxVisibilityTimeout, d)
	}
	if d%time.Second != 0 {
		return fmt.Errorf("azqueue: visibility timeout must be a whole number of seconds: %s", d)
	}
	return nil
}

func requireString(ctx context.Context, field string, r config.Reader[string]) (string, error) {
	v, err := config.Read(ctx, r)
	if errors.Is(err, config.ErrValueNotSet) {
		return "", fmt.Errorf("azqueue: %s is required: %w", field, err)
	}
	if err != nil {
		return "", fmt.Errorf("azqueue: failed to read %s: %w", field, err)
	}
	return v, nil
}

func readOr[T any](ctx context.Context, field string, def T, r config.Reader[T]) (T, error) {
	v, err := config.Read(ctx, r)
	if errors.Is(err, config.ErrValueNotSet) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("azqueue: failed to read %s: %w", field, err)
	}
	return v, nil
}

// Runtime polls a single Azure queue and deletes messages on request.
type Runtime struct {
	log       *slog.Logger
	name      string
	queueName string
	client    Client
	outbox    queue.Processor[event.Event]
	decoder   decode.Factory

	visibilityTimeout time.Duration
	autoDelete        bool
	base64Decode      bool
	destination       string
	nativeEvents      bool
	batchSize         int32
	maxIdleInterval   time.Duration

	deletes *queue.Channel[event.Event]
	health  health.Binary
	metrics *metricsRecorder
}

// MetadataPath returns the event path message metadata is stamped at.
func (r *Runtime) MetadataPath() string {
	return "tmp." + r.name
}

// AutoMessageDelete reports whether messages are deleted as soon as their
// events reached the outbox. When false, callers delete them with [Runtime.Delete].
func (r *Runtime) AutoMessageDelete() bool {
	return r.autoDelete
}

// Healthy implements the [health.Monitor] interface. It reports true
// while the queue is connected and being processed.
func (r *Runtime) Healthy(ctx context.Context) (bool, error) {
	return r.health.Healthy(ctx)
}

// Delete requests deletion of the message ev was created from.
// It blocks while the delete queue is full.
func (r *Runtime) Delete(ctx context.Context, ev event.Event) error {
	return r.deletes.Process(ctx, ev)
}

// DeleteQueue returns the delete queue so sinks can acknowledge events
// once they are safely delivered.
func (r *Runtime) DeleteQueue() queue.Processor[event.Event] {
	return r.deletes
}

// Close stops accepting delete requests. Requests already queued are
// still processed while ProcessQueue runs.
func (r *Runtime) Close() error {
	return r.deletes.Close()
}

// ConnectError is returned when the queue can not be reached or created.
type ConnectError struct {
	URL   string
	Cause error
}

// Error implements the [error] interface.
func (e ConnectError) Error() string {
	reason := e.Cause.Error()
	if i := strings.IndexByte(reason, '\n'); i >= 0 {
		reason = reason[:i]
	}
	return fmt.Sprintf("failed to connect to Azure Queue Service %s: %s", e.URL, reason)
}

// Unwrap returns the underlying error.
func (e ConnectError) Unwrap() error {
	return e.Cause
}
