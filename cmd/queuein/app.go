// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"time"

	"github.com/z5labs/queuein"
	"github.com/z5labs/queuein/app"
	"github.com/z5labs/queuein/config"
	"github.com/z5labs/queuein/decode"
	"github.com/z5labs/queuein/event"
	"github.com/z5labs/queuein/health"
	"github.com/z5labs/queuein/http"
	"github.com/z5labs/queuein/queue"
	"github.com/z5labs/queuein/queue/azqueue"
	"github.com/z5labs/queuein/queue/jsonl"
	"github.com/z5labs/queuein/queue/kafka"
)

// Supported sinks.
const (
	SinkStdout = "stdout"
	SinkKafka  = "kafka"
)

// Supported decoders.
const (
	DecoderPlain = "plain"
	DecoderJSON  = "json"
)

// DefaultName is the input name used when QUEUEIN_NAME is unset.
const DefaultName = "azure_queue_storage_in"

// Config wires an Azure queue input to a sink.
type Config struct {
	Name         config.Reader[string]
	Sink         config.Reader[string]
	Decoder      config.Reader[string]
	Delimiter    config.Reader[string]
	PipelineSize config.Reader[int]
	SDKLogging   config.Reader[bool]

	Queue azqueue.Config
	Kafka kafka.Config
	HTTP  http.Server
}

// ConfigFromEnv reads:
//   - QUEUEIN_NAME: input name, metadata is stamped at tmp.<name>
//   - QUEUEIN_SINK: "stdout" (default) or "kafka"
//   - QUEUEIN_DECODER: "plain" (default) or "json"
//   - QUEUEIN_DELIMITER: splits plain text payloads
//   - QUEUEIN_PIPELINE_SIZE: events buffered between input and sink
//   - AZURE_QUEUE_SDK_LOGGING: log Azure SDK requests at debug level
//
// along with the AZURE_QUEUE_*, KAFKA_* and HTTP_* variables of the
// input, the Kafka sink and the health server.
func ConfigFromEnv() Config {
	return Config{
		Name:         config.Env("QUEUEIN_NAME"),
		Sink:         config.Env("QUEUEIN_SINK"),
		Decoder:      config.Env("QUEUEIN_DECODER"),
		Delimiter:    config.Env("QUEUEIN_DELIMITER"),
		PipelineSize: config.IntFromString(config.Env("QUEUEIN_PIPELINE_SIZE")),
		SDKLogging:   config.BoolFromString(config.Env("AZURE_QUEUE_SDK_LOGGING")),
		Queue:        azqueue.ConfigFromEnv(),
		Kafka: kafka.Config{
			Brokers:        kafka.BrokersFromEnv(),
			Topic:          kafka.TopicFromEnv(),
			ProduceTimeout: kafka.ProduceTimeoutFromEnv(),
			TLSConfig: kafka.TLSConfigFromFiles(
				config.Env("KAFKA_TLS_CERT_FILE"),
				config.Env("KAFKA_TLS_KEY_FILE"),
				config.Env("KAFKA_TLS_CA_FILE"),
			),
		},
		HTTP: http.NewServer(
			http.NewTCPListener(http.Addr(http.AddrFromEnv())),
			http.ShutdownTimeout(http.ShutdownTimeoutFromEnv()),
		),
	}
}

// Build returns an [app.Builder] which runs the Azure queue input, the
// pipeline into the configured sink and the health server together.
// Events are written to out when the stdout sink is selected.
func Build(cfg Config, out io.Writer, opts ...azqueue.Option) app.Builder[app.Runtime] {
	return app.WithHooks(func(ctx context.Context, hooks *app.HookRegistry) (app.Runtime, error) {
		log := queuein.Logger("github.com/z5labs/queuein/cmd/queuein")

		name, err := config.Read(ctx, config.Default(DefaultName, cfg.Name))
		if err != nil {
			return nil, err
		}
		pipelineSize, err := config.Read(ctx, config.Default(100, cfg.PipelineSize))
		if err != nil {
			return nil, err
		}
		sdkLogging, err := config.Read(ctx, config.Default(false, cfg.SDKLogging))
		if err != nil {
			return nil, err
		}
		if sdkLogging {
			azqueue.LogSDKEvents(queuein.Logger("github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"))
		}

		decoder, err := decoderFactory(ctx, cfg)
		if err != nil {
			return nil, err
		}

		outbox := queue.NewChannel[event.Event](pipelineSize)
		in, err := azqueue.Build(name, cfg.Queue, outbox, append([]azqueue.Option{azqueue.WithDecoder(decoder)}, opts...)...).Build(ctx)
		if err != nil {
			return nil, err
		}

		// Without auto delete a message is only removed once the sink
		// delivered its event.
		var delivered queue.Acknowledger[event.Event] = queue.AcknowledgerFunc[event.Event](func(context.Context, event.Event) error {
			return nil
		})
		if !in.AutoMessageDelete() {
			delivered = queue.AcknowledgerFunc[event.Event](in.Delete)
		}

		sink, sinkHealth, err := buildSink(ctx, cfg, in.MetadataPath(), delivered, out, hooks)
		if err != nil {
			return nil, err
		}

		input, err := queue.Build(app.BuilderFunc[*azqueue.Runtime](func(ctx context.Context) (*azqueue.Runtime, error) {
			return in, nil
		})).Build(ctx)
		if err != nil {
			return nil, err
		}

		healthServer, err := http.Build(cfg.HTTP, app.BuilderFunc[nethttp.Handler](func(ctx context.Context) (nethttp.Handler, error) {
			return http.HealthHandler(health.And(in, sinkHealth)), nil
		})).Build(ctx)
		if err != nil {
			return nil, err
		}

		hooks.OnPostRun(func(ctx context.Context) error {
			return in.Close()
		})

		log.InfoContext(ctx, "built queuein", slog.String("input", name), slog.Int("pipeline_size", pipelineSize))

		return app.Concurrently(
			input,
			app.RuntimeFunc(func(ctx context.Context) error {
				return forward(ctx, outbox, sink)
			}),
			healthServer,
		), nil
	})
}

func decoderFactory(ctx context.Context, cfg Config) (decode.Factory, error) {
	name, err := config.Read(ctx, config.Default(DecoderPlain, cfg.Decoder))
	if err != nil {
		return nil, err
	}

	switch name {
	case DecoderPlain:
		delimiter, err := config.Read(ctx, cfg.Delimiter)
		if errors.Is(err, config.ErrValueNotSet) {
			return decode.PlainFactory(), nil
		}
		if err != nil {
			return nil, err
		}
		return decode.PlainFactory(decode.Delimiter(delimiter)), nil
	case DecoderJSON:
		return decode.JSONFactory(), nil
	default:
		return nil, fmt.Errorf("queuein: unknown decoder: %q", name)
	}
}

func buildSink(
	ctx context.Context,
	cfg Config,
	metadataPath string,
	delivered queue.Acknowledger[event.Event],
	out io.Writer,
	hooks *app.HookRegistry,
) (queue.Processor[event.Event], health.Monitor, error) {
	name, err := config.Read(ctx, config.Default(SinkStdout, cfg.Sink))
	if err != nil {
		return nil, nil, err
	}

	switch name {
	case SinkStdout:
		return jsonl.NewWriter(out, jsonl.OnWritten(delivered)), health.And(), nil
	case SinkKafka:
		producer, err := kafka.Build(
			cfg.Kafka,
			kafka.HeadersFrom(metadataPath),
			kafka.OnDelivered(delivered),
		).Build(ctx)
		if err != nil {
			return nil, nil, err
		}

		hooks.OnPostRun(func(ctx context.Context) error {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			return producer.Close(closeCtx)
		})
		return producer, deliveryMonitor(producer.Err), nil
	default:
		return nil, nil, fmt.Errorf("queuein: unknown sink: %q", name)
	}
}

// deliveryMonitor is unhealthy once failure reports an error.
func deliveryMonitor(failure func() error) health.Monitor {
	return health.MonitorFunc(func(ctx context.Context) (bool, error) {
		err := failure()
		return err == nil, err
	})
}

// forward moves events from the outbox to the sink until the outbox is
// closed or ctx is cancelled.
func forward(ctx context.Context, outbox queue.Consumer[event.Event], sink queue.Processor[event.Event]) error {
	p := queue.ProcessAtLeastOnce(
		outbox,
		sink,
		queue.AcknowledgerFunc[event.Event](func(context.Context, event.Event) error {
			return nil
		}),
	)

	for {
		err := p.ProcessItem(ctx)
		if errors.Is(err, queue.ErrEndOfQueue) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
