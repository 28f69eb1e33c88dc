// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otlp

import (
	"context"

	"github.com/z5labs/queuein/concurrent"
	"github.com/z5labs/queuein/config"
	"github.com/z5labs/queuein/otel"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// WhenSet only reads r once endpoint produces a value.
func WhenSet[T any](endpoint config.Reader[string], r config.Reader[T]) config.Reader[T] {
	return config.ReaderFunc[T](func(ctx context.Context) (config.Value[T], error) {
		if endpoint == nil {
			return config.Value[T]{}, nil
		}
		val, err := endpoint.Read(ctx)
		if err != nil {
			return config.Value[T]{}, err
		}
		if _, ok := val.Value(); !ok {
			return config.Value[T]{}, nil
		}
		return r.Read(ctx)
	})
}

// SDKFromEnv configures every signal from the environment.
//
// A signal without an OTLP endpoint falls back to a no-op provider,
// except logs which are then written to stderr as JSON lines. gRPC
// exporters targeting the same collector share one connection.
func SDKFromEnv() otel.SDK {
	conns := concurrent.NewCache[string, *grpc.ClientConn]()
	rsc := otel.ResourceFromEnv()

	shared := func(target config.Reader[string]) config.Reader[*grpc.ClientConn] {
		return &GrpcConn{Target: target, Cache: conns}
	}

	spanExporter := ByProtocol(
		TracesProtocolFromEnv(),
		config.Reader[sdktrace.SpanExporter](GrpcTraceExporter{Conn: shared(TracesEndpointFromEnv())}),
		config.Reader[sdktrace.SpanExporter](HttpTraceExporterFromEnv()),
	)
	metricExporter := ByProtocol(
		MetricsProtocolFromEnv(),
		config.Reader[sdkmetric.Exporter](GrpcMetricExporter{Conn: shared(MetricsEndpointFromEnv())}),
		config.Reader[sdkmetric.Exporter](HttpMetricExporterFromEnv()),
	)
	logExporter := ByProtocol(
		LogsProtocolFromEnv(),
		config.Reader[sdklog.Exporter](GrpcLogExporter{Conn: shared(LogsEndpointFromEnv())}),
		config.Reader[sdklog.Exporter](HttpLogExporterFromEnv()),
	)

	return otel.SDK{
		TracerProvider: WhenSet[trace.TracerProvider](TracesEndpointFromEnv(), otel.SdkTracerProvider{
			Resource: rsc,
			Sampler: otel.TraceIDRatioBasedSampler{
				Ratio: otel.TraceIDSampleRatioFromEnv(),
			},
			SpanProcessor: otel.BatchSpanProcessor{
				Exporter:       spanExporter,
				ExportInterval: otel.SpanExportIntervalFromEnv(),
			},
		}),
		MeterProvider: WhenSet[metric.MeterProvider](MetricsEndpointFromEnv(), otel.SdkMeterProvider{
			Resource: rsc,
			Reader: otel.PeriodicReader{
				Exporter:       metricExporter,
				ExportInterval: otel.MetricExportIntervalFromEnv(),
			},
		}),
		LoggerProvider: config.Or(
			WhenSet[log.LoggerProvider](LogsEndpointFromEnv(), otel.SdkLoggerProvider{
				Resource: rsc,
				LogProcessor: otel.BatchLogProcessor{
					Exporter:       logExporter,
					ExportInterval: otel.LogExportIntervalFromEnv(),
				},
				Levels: otel.LogLevelsFromEnv(),
			}),
			config.Reader[log.LoggerProvider](otel.SdkLoggerProvider{
				Resource: rsc,
				LogProcessor: otel.SimpleLogProcessor{
					Exporter: otel.StderrLogExporter{},
				},
				Levels: otel.LogLevelsFromEnv(),
			}),
		),
		RuntimeMetrics: otel.RuntimeMetricsFromEnv(),
	}
}
