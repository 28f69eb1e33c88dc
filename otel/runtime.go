// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/z5labs/queuein/app"
	"github.com/z5labs/queuein/config"

	"github.com/z5labs/sdk-go/try"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// SDK defines the OpenTelemetry SDK configuration readers.
//
// All fields are optional. A nil reader, or one which produces no value,
// falls back to:
//   - TextMapPropagator: Baggage + TraceContext
//   - TracerProvider, MeterProvider and LoggerProvider: no-op providers
//   - RuntimeMetrics: false
type SDK struct {
	TextMapPropagator config.Reader[propagation.TextMapPropagator]
	TracerProvider    config.Reader[trace.TracerProvider]
	MeterProvider     config.Reader[metric.MeterProvider]
	LoggerProvider    config.Reader[log.LoggerProvider]

	// RuntimeMetrics enables Go runtime metrics (memory, GC, goroutines)
	// on the configured meter provider.
	RuntimeMetrics config.Reader[bool]
}

// RuntimeMetricsFromEnv reads OTEL_GO_RUNTIME_METRICS.
func RuntimeMetricsFromEnv() config.Reader[bool] {
	return config.BoolFromString(config.Env("OTEL_GO_RUNTIME_METRICS"))
}

// Runtime registers the configured providers globally, runs an inner
// runtime and shuts the providers down once it returns.
//
// Do not create Runtime directly; use Build to construct it.
type Runtime struct {
	inner             app.Runtime
	textMapPropagator propagation.TextMapPropagator
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	loggerProvider    log.LoggerProvider
}

// Build reads sdk, installs the resulting providers globally and only
// then builds the inner runtime, so loggers and meters created while
// building use the configured providers.
func Build[T app.Runtime](sdk SDK, builder app.Builder[T]) app.Builder[Runtime] {
	return app.BuilderFunc[Runtime](func(ctx context.Context) (Runtime, error) {
		defaultTextMapPropagator := propagation.NewCompositeTextMapPropagator(
			propagation.Baggage{},
			propagation.TraceContext{},
		)
		var defaultTracerProvider trace.TracerProvider = tracenoop.NewTracerProvider()
		var defaultMeterProvider metric.MeterProvider = metricnoop.NewMeterProvider()
		var defaultLoggerProvider log.LoggerProvider = lognoop.NewLoggerProvider()

		tmp, err := readOr(ctx, defaultTextMapPropagator, sdk.TextMapPropagator)
		if err != nil {
			return Runtime{}, err
		}
		tp, err := readOr(ctx, defaultTracerProvider, sdk.TracerProvider)
		if err != nil {
			return Runtime{}, err
		}
		mp, err := readOr(ctx, defaultMeterProvider, sdk.MeterProvider)
		if err != nil {
			return Runtime{}, err
		}
		lp, err := readOr(ctx, defaultLoggerProvider, sdk.LoggerProvider)
		if err != nil {
			return Runtime{}, err
		}
		runtimeMetrics, err := readOr(ctx, false, sdk.RuntimeMetrics)
		if err != nil {
			return Runtime{}, err
		}

		otel.SetTextMapPropagator(tmp)
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		global.SetLoggerProvider(lp)

		if runtimeMetrics {
			err = runtime.Start(runtime.WithMeterProvider(mp))
			if err != nil {
				return Runtime{}, fmt.Errorf("otel: failed to start runtime metrics: %w", err)
			}
		}

		inner, err := builder.Build(ctx)
		if err != nil {
			return Runtime{}, err
		}

		return Runtime{
			inner:             inner,
			textMapPropagator: tmp,
			tracerProvider:    tp,
			meterProvider:     mp,
			loggerProvider:    lp,
		}, nil
	})
}

func readOr[T any](ctx context.Context, def T, r config.Reader[T]) (T, error) {
	v, err := config.Read(ctx, r)
	if errors.Is(err, config.ErrValueNotSet) {
		return def, nil
	}
	return v, err
}

// Run runs the inner runtime and then shuts down the tracer, meter and
// logger providers. Shutdown happens even when the inner runtime fails;
// every error is joined into the returned one.
func (rt Runtime) Run(ctx context.Context) (err error) {
	defer try.Close(&err, shutdown(
		rt.tracerProvider,
		rt.meterProvider,
		rt.loggerProvider,
	))

	return rt.inner.Run(ctx)
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

type shutdowner interface {
	Shutdown(context.Context) error
}

func shutdown(vs ...any) closerFunc {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var allErrors error
		for _, v := range vs {
			c, ok := v.(shutdowner)
			if !ok {
				continue
			}

			err := c.Shutdown(ctx)
			if err == nil {
				continue
			}
			allErrors = errors.Join(allErrors, err)
		}
		return allErrors
	}
}
