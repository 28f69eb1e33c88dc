// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otel provides OpenTelemetry SDK configuration readers and a
// runtime which installs the configured providers globally.
//
// Environment Variables:
//   - OTEL_SERVICE_NAME: Service name for resource attributes (default "queuein")
//   - OTEL_SERVICE_VERSION: Service version for resource attributes
//   - OTEL_TRACES_SAMPLER_RATIO: Sampling ratio for traces (0.0 to 1.0)
//   - OTEL_BSP_EXPORT_INTERVAL: Batch span processor export interval
//   - OTEL_METRIC_EXPORT_INTERVAL: Metric export interval
//   - OTEL_BLP_EXPORT_INTERVAL: Batch log processor export interval
//   - QUEUEIN_LOG_LEVELS: Minimum log levels per logger name
package otel

import (
	"context"
	"time"

	"github.com/z5labs/queuein/config"
	"github.com/z5labs/queuein/internal/detector"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is reported when no service name is configured.
const DefaultServiceName = "queuein"

// Resource configures the OpenTelemetry resource describing this process.
type Resource struct {
	ServiceName    config.Reader[string]
	ServiceVersion config.Reader[string]
}

// ResourceFromEnv reads OTEL_SERVICE_NAME and OTEL_SERVICE_VERSION.
func ResourceFromEnv() Resource {
	return Resource{
		ServiceName:    config.Env("OTEL_SERVICE_NAME"),
		ServiceVersion: config.Env("OTEL_SERVICE_VERSION"),
	}
}

// Read implements the [config.Reader] interface. The resource carries
// telemetry SDK, host and service attributes.
func (cfg Resource) Read(ctx context.Context) (config.Value[*resource.Resource], error) {
	serviceName := config.MustOr(ctx, DefaultServiceName, cfg.ServiceName)
	serviceVersion := config.MustOr(ctx, "", cfg.ServiceVersion)

	rsc, err := resource.Detect(
		ctx,
		detector.TelemetrySDK(),
		detector.Host(),
		detector.ServiceName(serviceName),
		detector.ServiceVersion(serviceVersion),
	)
	if err != nil {
		return config.Value[*resource.Resource]{}, err
	}
	return config.ValueOf(rsc), nil
}

// TraceIDRatioBasedSampler samples a fraction of traces by trace ID.
type TraceIDRatioBasedSampler struct {
	Ratio config.Reader[float64]
}

// TraceIDSampleRatioFromEnv reads OTEL_TRACES_SAMPLER_RATIO.
func TraceIDSampleRatioFromEnv() config.Reader[float64] {
	return config.Float64FromString(config.Env("OTEL_TRACES_SAMPLER_RATIO"))
}

// Read implements the [config.Reader] interface. The default ratio is 1.0.
func (cfg TraceIDRatioBasedSampler) Read(ctx context.Context) (config.Value[sdktrace.Sampler], error) {
	ratio := config.MustOr(ctx, 1.0, cfg.Ratio)
	return config.ValueOf(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))), nil
}

// BatchSpanProcessor exports finished spans in batches.
type BatchSpanProcessor struct {
	Exporter       config.Reader[sdktrace.SpanExporter]
	ExportInterval config.Reader[time.Duration]
}

// SpanExportIntervalFromEnv reads OTEL_BSP_EXPORT_INTERVAL.
func SpanExportIntervalFromEnv() config.Reader[time.Duration] {
	return config.DurationFromString(config.Env("OTEL_BSP_EXPORT_INTERVAL"))
}

// Read implements the [config.Reader] interface. The default interval is 5 seconds.
func (cfg BatchSpanProcessor) Read(ctx context.Context) (config.Value[sdktrace.SpanProcessor], error) {
	exporter, err := config.Read(ctx, cfg.Exporter)
	if err != nil {
		return config.Value[sdktrace.SpanProcessor]{}, err
	}
	interval := config.MustOr(ctx, 5*time.Second, cfg.ExportInterval)

	bsp := sdktrace.NewBatchSpanProcessor(exporter, sdktrace.WithBatchTimeout(interval))
	return config.ValueOf(bsp), nil
}

// SdkTracerProvider configures an OpenTelemetry tracer provider.
type SdkTracerProvider struct {
	Resource      config.Reader[*resource.Resource]
	Sampler       config.Reader[sdktrace.Sampler]
	SpanProcessor config.Reader[sdktrace.SpanProcessor]
}

// Read implements the [config.Reader] interface.
func (cfg SdkTracerProvider) Read(ctx context.Context) (config.Value[trace.TracerProvider], error) {
	rsc, err := config.Read(ctx, cfg.Resource)
	if err != nil {
		return config.Value[trace.TracerProvider]{}, err
	}
	spanProcessor, err := config.Read(ctx, cfg.SpanProcessor)
	if err != nil {
		return config.Value[trace.TracerProvider]{}, err
	}
	sampler := config.MustOr(ctx, sdktrace.ParentBased(sdktrace.AlwaysSample()), cfg.Sampler)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(rsc),
		sdktrace.WithSampler(sampler),
		sdktrace.WithSpanProcessor(spanProcessor),
	)
	return config.ValueOf[trace.TracerProvider](tp), nil
}

// PeriodicReader collects and exports metrics at a fixed interval.
type PeriodicReader struct {
	Exporter       config.Reader[sdkmetric.Exporter]
	ExportInterval config.Reader[time.Duration]
}

// MetricExportIntervalFromEnv reads OTEL_METRIC_EXPORT_INTERVAL.
func MetricExportIntervalFromEnv() config.Reader[time.Duration] {
	return config.DurationFromString(config.Env("OTEL_METRIC_EXPORT_INTERVAL"))
}

// Read implements the [config.Reader] interface. The default interval is 60 seconds.
func (cfg PeriodicReader) Read(ctx context.Context) (config.Value[sdkmetric.Reader], error) {
	exporter, err := config.Read(ctx, cfg.Exporter)
	if err != nil {
		return config.Value[sdkmetric.Reader]{}, err
	}
	interval := config.MustOr(ctx, time.Minute, cfg.ExportInterval)

	pr := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	return config.ValueOf[sdkmetric.Reader](pr), nil
}

// SdkMeterProvider configures an OpenTelemetry meter provider.
type SdkMeterProvider struct {
	Resource config.Reader[*resource.Resource]
	Reader   config.Reader[sdkmetric.Reader]
}

// Read implements the [config.Reader] interface.
func (cfg SdkMeterProvider) Read(ctx context.Context) (config.Value[metric.MeterProvider], error) {
	rsc, err := config.Read(ctx, cfg.Resource)
	if err != nil {
		return config.Value[metric.MeterProvider]{}, err
	}
	reader, err := config.Read(ctx, cfg.Reader)
	if err != nil {
		return config.Value[metric.MeterProvider]{}, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(rsc),
		sdkmetric.WithReader(reader),
	)
	return config.ValueOf[metric.MeterProvider](mp), nil
}

// BatchLogProcessor exports log records in batches.
type BatchLogProcessor struct {
	Exporter       config.Reader[sdklog.Exporter]
	ExportInterval config.Reader[time.Duration]
}

// LogExportIntervalFromEnv reads OTEL_BLP_EXPORT_INTERVAL.
func LogExportIntervalFromEnv() config.Reader[time.Duration] {
	return config.DurationFromString(config.Env("OTEL_BLP_EXPORT_INTERVAL"))
}

// Read implements the [config.Reader] interface. The default interval is 1 second.
func (cfg BatchLogProcessor) Read(ctx context.Context) (config.Value[sdklog.Processor], error) {
	exporter, err := config.Read(ctx, cfg.Exporter)
	if err != nil {
		return config.Value[sdklog.Processor]{}, err
	}
	interval := config.MustOr(ctx, time.Second, cfg.ExportInterval)

	blp := sdklog.NewBatchProcessor(exporter, sdklog.WithExportInterval(interval))
	return config.ValueOf[sdklog.Processor](blp), nil
}

// SimpleLogProcessor exports every log record as soon as it is emitted.
type SimpleLogProcessor struct {
	Exporter config.Reader[sdklog.Exporter]
}

// Read implements the [config.Reader] interface.
func (cfg SimpleLogProcessor) Read(ctx context.Context) (config.Value[sdklog.Processor], error) {
	exporter, err := config.Read(ctx, cfg.Exporter)
	if err != nil {
		return config.Value[sdklog.Processor]{}, err
	}
	return config.ValueOf[sdklog.Processor](sdklog.NewSimpleProcessor(exporter)), nil
}

// SdkLoggerProvider configures an OpenTelemetry logger provider.
// Records below the minimum level configured for their logger are dropped.
type SdkLoggerProvider struct {
	Resource     config.Reader[*resource.Resource]
	LogProcessor config.Reader[sdklog.Processor]
	Levels       config.Reader[map[string]string]
}

// Read implements the [config.Reader] interface.
func (cfg SdkLoggerProvider) Read(ctx context.Context) (config.Value[log.LoggerProvider], error) {
	rsc, err := config.Read(ctx, cfg.Resource)
	if err != nil {
		return config.Value[log.LoggerProvider]{}, err
	}
	processor, err := config.Read(ctx, cfg.LogProcessor)
	if err != nil {
		return config.Value[log.LoggerProvider]{}, err
	}
	levels := config.MustOr(ctx, map[string]string{}, cfg.Levels)
	if len(levels) > 0 {
		processor = newFilteringProcessor(processor, levels)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(rsc),
		sdklog.WithProcessor(processor),
	)
	return config.ValueOf[log.LoggerProvider](lp), nil
}
