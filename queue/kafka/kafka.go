// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/z5labs/queuein"
	"github.com/z5labs/queuein/app"
	"github.com/z5labs/queuein/config"
	"github.com/z5labs/queuein/event"
	"github.com/z5labs/queuein/queue"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"github.com/twmb/franz-go/plugin/kslog"
	"go.opentelemetry.io/otel"
)

// Config holds configuration readers for the Kafka sink.
// Brokers and Topic are required.
type Config struct {
	Brokers        config.Reader[[]string]
	Topic          config.Reader[string]
	ProduceTimeout config.Reader[time.Duration]
	TLSConfig      config.Reader[*tls.Config]
}

// BrokersFromEnv reads Kafka broker addresses from the KAFKA_BROKERS environment variable.
// Brokers should be comma-separated (e.g., "localhost:9092,localhost:9093").
func BrokersFromEnv() config.Reader[[]string] {
	return config.Map(
		config.Env("KAFKA_BROKERS"),
		func(ctx context.Context, s string) ([]string, error) {
			return strings.Split(s, ","), nil
		},
	)
}

// TopicFromEnv reads the destination topic from the KAFKA_TOPIC environment variable.
func TopicFromEnv() config.Reader[string] {
	return config.Env("KAFKA_TOPIC")
}

// ProduceTimeoutFromEnv reads how long a record may wait for broker
// acknowledgement from the KAFKA_PRODUCE_TIMEOUT environment variable.
// The value should be a duration string (e.g., "10s").
func ProduceTimeoutFromEnv() config.Reader[time.Duration] {
	return config.DurationFromString(config.Env("KAFKA_PRODUCE_TIMEOUT"))
}

// TLSConfigFromFiles creates a config.Reader that loads TLS configuration from certificate files.
//
// Parameters:
//   - certFile: Path to client certificate file (required for mTLS)
//   - keyFile: Path to client key file (required for mTLS)
//   - caFile: Path to CA certificate file (required for TLS verification)
//
// No value is produced when certFile is unset, so TLS stays disabled.
//
// Example:
//
//	tlsConfig := kafka.TLSConfigFromFiles(
//	    config.Env("KAFKA_TLS_CERT_FILE"),
//	    config.Env("KAFKA_TLS_KEY_FILE"),
//	    config.Env("KAFKA_TLS_CA_FILE"),
//	)
func TLSConfigFromFiles(
	certFile config.Reader[string],
	keyFile config.Reader[string],
	caFile config.Reader[string],
) config.Reader[*tls.Config] {
	return config.ReaderFunc[*tls.Config](func(ctx context.Context) (config.Value[*tls.Config], error) {
		certPath, err := config.Read(ctx, certFile)
		if errors.Is(err, config.ErrValueNotSet) {
			return config.Value[*tls.Config]{}, nil
		}
		if err != nil {
			return config.Value[*tls.Config]{}, err
		}
		keyPath, err := config.Read(ctx, keyFile)
		if err != nil {
			return config.Value[*tls.Config]{}, fmt.Errorf("failed to read client key path: %w", err)
		}
		caPath, err := config.Read(ctx, caFile)
		if err != nil {
			return config.Value[*tls.Config]{}, fmt.Errorf("failed to read CA certificate path: %w", err)
		}

		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return config.Value[*tls.Config]{}, fmt.Errorf("failed to load client certificate: %w", err)
		}

		caCert, err := os.ReadFile(caPath)
		if err != nil {
			return config.Value[*tls.Config]{}, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return config.Value[*tls.Config]{}, fmt.Errorf("no certificates found in %s", caPath)
		}

		tlsConfig := &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      pool,
			MinVersion:   tls.VersionTLS12,
		}
		return config.ValueOf(tlsConfig), nil
	})
}

// Option configures optional [Producer] behaviour.
type Option func(*Producer)

// OnDelivered registers an acknowledger which is called with every event
// once the broker has acknowledged its record.
func OnDelivered(a queue.Acknowledger[event.Event]) Option {
	return func(p *Producer) {
		p.onDelivered = a
	}
}

// HeadersFrom copies the entries of the map found at path in each event
// into record headers, e.g. "tmp.azure" for message metadata.
func HeadersFrom(path string) Option {
	return func(p *Producer) {
		p.headersFrom = path
	}
}

// recordProducer is the subset of [kgo.Client] used by [Producer].
type recordProducer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// Producer writes events to a Kafka topic. It implements the
// [queue.Processor] interface for [event.Event].
//
// Records are produced asynchronously. A delivery failure is returned by
// the next call to Process or by Close.
type Producer struct {
	log         *slog.Logger
	client      recordProducer
	topic       string
	headersFrom string
	onDelivered queue.Acknowledger[event.Event]
	metrics     *metricsRecorder

	mu      sync.Mutex
	failure error
}

// Build creates an app.Builder for a Kafka [Producer].
//
// Example:
//
//	cfg := kafka.Config{
//	    Brokers: kafka.BrokersFromEnv(),
//	    Topic:   kafka.TopicFromEnv(),
//	}
//
//	builder := kafka.Build(cfg, kafka.HeadersFrom("tmp.azure"))
func Build(cfg Config, opts ...Option) app.Builder[*Producer] {
	return app.BuilderFunc[*Producer](func(ctx context.Context) (*Producer, error) {
		brokers, err := config.Read(ctx, cfg.Brokers)
		if err != nil {
			return nil, fmt.Errorf("kafka: brokers must be configured: %w", err)
		}
		topic, err := config.Read(ctx, cfg.Topic)
		if err != nil {
			return nil, fmt.Errorf("kafka: topic must be configured: %w", err)
		}

		produceTimeout := config.MustOr(ctx, 10*time.Second, cfg.ProduceTimeout)

		// TLS config is optional
		var tlsConfig *tls.Config
		if cfg.TLSConfig != nil {
			tlsConfig = config.MustOr(ctx, (*tls.Config)(nil), cfg.TLSConfig)
		}

		clientOpts := []kgo.Opt{
			kgo.WithLogger(kslog.New(queuein.Logger("github.com/twmb/franz-go/pkg/kgo"))),
			kgo.WithHooks(
				kotel.NewTracer(
					kotel.TracerProvider(otel.GetTracerProvider()),
					kotel.TracerPropagator(otel.GetTextMapPropagator()),
				),
				kotel.NewMeter(
					kotel.MeterProvider(otel.GetMeterProvider()),
					kotel.WithMergedConnectsMeter(),
				),
			),
			kgo.SeedBrokers(brokers...),
			kgo.DefaultProduceTopic(topic),
			kgo.RecordDeliveryTimeout(produceTimeout),
			kgo.RequiredAcks(kgo.AllISRAcks()),
		}

		// Configure TLS if provided
		if tlsConfig != nil {
			clientOpts = append(clientOpts, kgo.DialTLSConfig(tlsConfig))
		}

		client, err := kgo.NewClient(clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("kafka: failed to create client: %w", err)
		}

		p, err := newProducer(client, topic, opts...)
		if err != nil {
			client.Close()
			return nil, err
		}
		return p, nil
	})
}

func newProducer(client recordProducer, topic string, opts ...Option) (*Producer, error) {
	metrics, err := newMetricsRecorder()
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to initialize metrics: %w", err)
	}

	p := &Producer{
		log:     logger().With(TopicAttr(topic)),
		client:  client,
		topic:   topic,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process implements the [queue.Processor] interface.
func (p *Producer) Process(ctx context.Context, ev event.Event) error {
	err := p.Err()
	if err != nil {
		return err
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: failed to encode event %s: %w", ev.UUID, err)
	}

	record := &kgo.Record{
		Topic:   p.topic,
		Key:     []byte(ev.UUID.String()),
		Value:   value,
		Headers: p.headers(ev),
	}

	// Buffered records outlive a cancelled ctx so Close can still flush them.
	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		p.delivered(r, ev, err)
	})
	return nil
}

func (p *Producer) delivered(r *kgo.Record, ev event.Event, err error) {
	ctx := r.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if err != nil {
		p.metrics.recordProduceFailure(ctx, p.topic)
		p.fail(fmt.Errorf("kafka: failed to deliver event %s: %w", ev.UUID, err))
		return
	}
	p.metrics.recordProduced(ctx, p.topic, r.Partition)
	p.log.DebugContext(ctx, "delivered event", PartitionAttr(r.Partition), OffsetAttr(r.Offset))

	if p.onDelivered == nil {
		return
	}
	err = p.onDelivered.Acknowledge(ctx, ev)
	if err != nil {
		p.log.WarnContext(ctx, "failed to acknowledge delivered event", slog.Any("error", err))
	}
}

func (p *Producer) headers(ev event.Event) []kgo.RecordHeader {
	if p.headersFrom == "" {
		return nil
	}
	v, err := ev.Get(p.headersFrom)
	if err != nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kgo.RecordHeader, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kgo.RecordHeader{
			Key:   k,
			Value: []byte(fmt.Sprint(m[k])),
		})
	}
	return headers
}

func (p *Producer) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failure == nil {
		p.failure = err
	}
}

// Err returns the first delivery failure, if any. Once set, Process
// and Close return it.
func (p *Producer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failure
}

// Close waits for buffered records to be delivered and closes the client.
func (p *Producer) Close(ctx context.Context) error {
	defer p.client.Close()

	err := p.client.Flush(ctx)
	if err != nil {
		return fmt.Errorf("kafka: failed to flush records: %w", err)
	}
	return p.Err()
}
