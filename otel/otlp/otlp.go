// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otlp provides OpenTelemetry Protocol (OTLP) exporters for traces, metrics, and logs.
//
// Both gRPC and HTTP/protobuf transports are supported. Endpoints are read
// from the standard environment variables, signal specific ones first:
//   - OTEL_EXPORTER_OTLP_TRACES_ENDPOINT
//   - OTEL_EXPORTER_OTLP_METRICS_ENDPOINT
//   - OTEL_EXPORTER_OTLP_LOGS_ENDPOINT
//   - OTEL_EXPORTER_OTLP_ENDPOINT
//
// The transport is chosen by OTEL_EXPORTER_OTLP_PROTOCOL (and its signal
// specific variants), either "grpc" (default) or "http/protobuf".
package otlp

import (
	"context"
	"fmt"
	"strings"

	"github.com/z5labs/queuein/concurrent"
	"github.com/z5labs/queuein/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Supported OTLP transport protocols.
const (
	ProtocolGrpc         = "grpc"
	ProtocolHttpProtobuf = "http/protobuf"
)

// UnsupportedProtocolError is returned for an unknown OTLP protocol.
type UnsupportedProtocolError struct {
	Protocol string
}

// Error implements the [error] interface.
func (e UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("otlp: unsupported protocol: %q", e.Protocol)
}

// ByProtocol selects the gRPC or HTTP reader based on protocol, which
// defaults to [ProtocolGrpc].
func ByProtocol[T any](protocol config.Reader[string], grpcReader, httpReader config.Reader[T]) config.Reader[T] {
	return config.ReaderFunc[T](func(ctx context.Context) (config.Value[T], error) {
		p, err := config.Read(ctx, config.Default(ProtocolGrpc, protocol))
		if err != nil {
			return config.Value[T]{}, err
		}

		switch p {
		case ProtocolGrpc:
			return grpcReader.Read(ctx)
		case ProtocolHttpProtobuf:
			return httpReader.Read(ctx)
		default:
			return config.Value[T]{}, UnsupportedProtocolError{Protocol: p}
		}
	})
}

func signalEnv(signal, suffix string) config.Reader[string] {
	return config.Or(
		config.Env("OTEL_EXPORTER_OTLP_"+signal+"_"+suffix),
		config.Env("OTEL_EXPORTER_OTLP_"+suffix),
	)
}

// TracesEndpointFromEnv reads the OTLP endpoint for traces.
func TracesEndpointFromEnv() config.Reader[string] {
	return signalEnv("TRACES", "ENDPOINT")
}

// MetricsEndpointFromEnv reads the OTLP endpoint for metrics.
func MetricsEndpointFromEnv() config.Reader[string] {
	return signalEnv("METRICS", "ENDPOINT")
}

// LogsEndpointFromEnv reads the OTLP endpoint for logs.
func LogsEndpointFromEnv() config.Reader[string] {
	return signalEnv("LOGS", "ENDPOINT")
}

// TracesProtocolFromEnv reads the OTLP protocol for traces.
func TracesProtocolFromEnv() config.Reader[string] {
	return signalEnv("TRACES", "PROTOCOL")
}

// MetricsProtocolFromEnv reads the OTLP protocol for metrics.
func MetricsProtocolFromEnv() config.Reader[string] {
	return signalEnv("METRICS", "PROTOCOL")
}

// LogsProtocolFromEnv reads the OTLP protocol for logs.
func LogsProtocolFromEnv() config.Reader[string] {
	return signalEnv("LOGS", "PROTOCOL")
}

// GrpcConn creates an insecure gRPC client connection to Target. When
// Cache is set, connections are shared per target.
type GrpcConn struct {
	Target config.Reader[string]
	Cache  *concurrent.Cache[string, *grpc.ClientConn]
}

// Read implements the [config.Reader] interface.
func (gc *GrpcConn) Read(ctx context.Context) (config.Value[*grpc.ClientConn], error) {
	target, err := config.Read(ctx, gc.Target)
	if err != nil {
		return config.Value[*grpc.ClientConn]{}, fmt.Errorf("otlp: grpc target: %w", err)
	}
	target = grpcTarget(target)

	dial := func() (*grpc.ClientConn, error) {
		return grpc.NewClient(
			target,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	var cc *grpc.ClientConn
	if gc.Cache != nil {
		cc, err = gc.Cache.GetOr(target, dial)
	} else {
		cc, err = dial()
	}
	if err != nil {
		return config.Value[*grpc.ClientConn]{}, err
	}
	return config.ValueOf(cc), nil
}

// grpcTarget strips the URL scheme the OTLP environment variables carry.
func grpcTarget(endpoint string) string {
	for _, scheme := range []string{"http://", "https://"} {
		if rest, ok := strings.CutPrefix(endpoint, scheme); ok {
			return strings.TrimSuffix(rest, "/")
		}
	}
	return endpoint
}

func hasScheme(endpoint string) bool {
	return strings.Contains(endpoint, "://")
}

// GrpcTraceExporter exports spans over gRPC.
type GrpcTraceExporter struct {
	Conn config.Reader[*grpc.ClientConn]
}

// GrpcTraceExporterFromEnv targets [TracesEndpointFromEnv].
func GrpcTraceExporterFromEnv(overrides ...func(*GrpcTraceExporter)) GrpcTraceExporter {
	exp := GrpcTraceExporter{
		Conn: &GrpcConn{Target: TracesEndpointFromEnv()},
	}
	for _, o := range overrides {
		o(&exp)
	}
	return exp
}

// Read implements the [config.Reader] interface.
func (cfg GrpcTraceExporter) Read(ctx context.Context) (config.Value[sdktrace.SpanExporter], error) {
	conn, err := config.Read(ctx, cfg.Conn)
	if err != nil {
		return config.Value[sdktrace.SpanExporter]{}, err
	}

	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return config.Value[sdktrace.SpanExporter]{}, err
	}
	return config.ValueOf[sdktrace.SpanExporter](exp), nil
}

// GrpcMetricExporter exports metrics over gRPC.
type GrpcMetricExporter struct {
	Conn config.Reader[*grpc.ClientConn]
}

// GrpcMetricExporterFromEnv targets [MetricsEndpointFromEnv].
func GrpcMetricExporterFromEnv(overrides ...func(*GrpcMetricExporter)) GrpcMetricExporter {
	exp := GrpcMetricExporter{
		Conn: &GrpcConn{Target: MetricsEndpointFromEnv()},
	}
	for _, o := range overrides {
		o(&exp)
	}
	return exp
}

// Read implements the [config.Reader] interface.
func (cfg GrpcMetricExporter) Read(ctx context.Context) (config.Value[sdkmetric.Exporter], error) {
	conn, err := config.Read(ctx, cfg.Conn)
	if err != nil {
		return config.Value[sdkmetric.Exporter]{}, err
	}

	exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return config.Value[sdkmetric.Exporter]{}, err
	}
	return config.ValueOf[sdkmetric.Exporter](exp), nil
}

// GrpcLogExporter exports log records over gRPC.
type GrpcLogExporter struct {
	Conn config.Reader[*grpc.ClientConn]
}

// GrpcLogExporterFromEnv targets [LogsEndpointFromEnv].
func GrpcLogExporterFromEnv(overrides ...func(*GrpcLogExporter)) GrpcLogExporter {
	exp := GrpcLogExporter{
		Conn: &GrpcConn{Target: LogsEndpointFromEnv()},
	}
	for _, o := range overrides {
		o(&exp)
	}
	return exp
}

// Read implements the [config.Reader] interface.
func (cfg GrpcLogExporter) Read(ctx context.Context) (config.Value[sdklog.Exporter], error) {
	conn, err := config.Read(ctx, cfg.Conn)
	if err != nil {
		return config.Value[sdklog.Exporter]{}, err
	}

	exp, err := otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(conn))
	if err != nil {
		return config.Value[sdklog.Exporter]{}, err
	}
	return config.ValueOf[sdklog.Exporter](exp), nil
}

// HttpTraceExporter exports spans over HTTP/protobuf. Endpoint is either a
// URL or a plain host:port.
type HttpTraceExporter struct {
	Endpoint config.Reader[string]
}

// HttpTraceExporterFromEnv targets [TracesEndpointFromEnv].
func HttpTraceExporterFromEnv(overrides ...func(*HttpTraceExporter)) HttpTraceExporter {
	exp := HttpTraceExporter{Endpoint: TracesEndpointFromEnv()}
	for _, o := range overrides {
		o(&exp)
	}
	return exp
}

// Read implements the [config.Reader] interface.
func (cfg HttpTraceExporter) Read(ctx context.Context) (config.Value[sdktrace.SpanExporter], error) {
	endpoint, err := config.Read(ctx, cfg.Endpoint)
	if err != nil {
		return config.Value[sdktrace.SpanExporter]{}, fmt.Errorf("otlp: http endpoint: %w", err)
	}

	opt := otlptracehttp.WithEndpoint(endpoint)
	if hasScheme(endpoint) {
		opt = otlptracehttp.WithEndpointURL(endpoint)
	}

	exp, err := otlptracehttp.New(ctx, opt)
	if err != nil {
		return config.Value[sdktrace.SpanExporter]{}, err
	}
	return config.ValueOf[sdktrace.SpanExporter](exp), nil
}

// HttpMetricExporter exports metrics over HTTP/protobuf.
type HttpMetricExporter struct {
	Endpoint config.Reader[string]
}

// HttpMetricExporterFromEnv targets [MetricsEndpointFromEnv].
func HttpMetricExporterFromEnv(overrides ...func(*HttpMetricExporter)) HttpMetricExporter {
	exp := HttpMetricExporter{Endpoint: MetricsEndpointFromEnv()}
	for _, o := range overrides {
		o(&exp)
	}
	return exp
}

// Read implements the [config.Reader] interface.
func (cfg HttpMetricExporter) Read(ctx context.Context) (config.Value[sdkmetric.Exporter], error) {
	endpoint, err := config.Read(ctx, cfg.Endpoint)
	if err != nil {
		return config.Value[sdkmetric.Exporter]{}, fmt.Errorf("otlp: http endpoint: %w", err)
	}

	opt := otlpmetrichttp.WithEndpoint(endpoint)
	if hasScheme(endpoint) {
		opt = otlpmetrichttp.WithEndpointURL(endpoint)
	}

	exp, err := otlpmetrichttp.New(ctx, opt)
	if err != nil {
		return config.Value[sdkmetric.Exporter]{}, err
	}
	return config.ValueOf[sdkmetric.Exporter](exp), nil
}

// HttpLogExporter exports log records over HTTP/protobuf.
type HttpLogExporter struct {
	Endpoint config.Reader[string]
}

// HttpLogExporterFromEnv targets [LogsEndpointFromEnv].
func HttpLogExporterFromEnv(overrides ...func(*HttpLogExporter)) HttpLogExporter {
	exp := HttpLogExporter{Endpoint: LogsEndpointFromEnv()}
	for _, o := range overrides {
		o(&exp)
	}
	return exp
}

// Read implements the [config.Reader] interface.
func (cfg HttpLogExporter) Read(ctx context.Context) (config.Value[sdklog.Exporter], error) {
	endpoint, err := config.Read(ctx, cfg.Endpoint)
	if err != nil {
		return config.Value[sdklog.Exporter]{}, fmt.Errorf("otlp: http endpoint: %w", err)
	}

	opt := otlploghttp.WithEndpoint(endpoint)
	if hasScheme(endpoint) {
		opt = otlploghttp.WithEndpointURL(endpoint)
	}

	exp, err := otlploghttp.New(ctx, opt)
	if err != nil {
		return config.Value[sdklog.Exporter]{}, err
	}
	return config.ValueOf[sdklog.Exporter](exp), nil
}
