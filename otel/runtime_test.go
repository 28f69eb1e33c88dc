// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/z5labs/queuein/app"
	"github.com/z5labs/queuein/config"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

type mockRuntime struct {
	runCalled bool
	runErr    error
}

func (m *mockRuntime) Run(ctx context.Context) error {
	m.runCalled = true
	return m.runErr
}

type mockShutdowner struct {
	shutdownCalled bool
	shutdownErr    error
}

func (m *mockShutdowner) Shutdown(ctx context.Context) error {
	m.shutdownCalled = true
	return m.shutdownErr
}

func restoreGlobals(t *testing.T) {
	t.Helper()

	tmp := otel.GetTextMapPropagator()
	tp := otel.GetTracerProvider()
	mp := otel.GetMeterProvider()
	lp := global.GetLoggerProvider()
	t.Cleanup(func() {
		otel.SetTextMapPropagator(tmp)
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		global.SetLoggerProvider(lp)
	})
}

func mockBuilder(rt *mockRuntime) app.Builder[*mockRuntime] {
	return app.BuilderFunc[*mockRuntime](func(ctx context.Context) (*mockRuntime, error) {
		return rt, nil
	})
}

func TestBuild(t *testing.T) {
	t.Run("will install the configured providers", func(t *testing.T) {
		restoreGlobals(t)

		tp := tracenoop.NewTracerProvider()
		sdk := SDK{
			TextMapPropagator: config.ReaderOf[propagation.TextMapPropagator](propagation.TraceContext{}),
			TracerProvider:    config.ReaderOf[trace.TracerProvider](tp),
			MeterProvider:     config.ReaderOf[metric.MeterProvider](metricnoop.NewMeterProvider()),
			LoggerProvider:    config.ReaderOf[log.LoggerProvider](lognoop.NewLoggerProvider()),
		}

		rt, err := Build(sdk, mockBuilder(&mockRuntime{})).Build(context.Background())
		require.NoError(t, err)
		require.Equal(t, propagation.TraceContext{}, rt.textMapPropagator)
		require.Equal(t, propagation.TraceContext{}, otel.GetTextMapPropagator())
		require.NotNil(t, rt.tracerProvider)
		require.NotNil(t, rt.meterProvider)
		require.NotNil(t, rt.loggerProvider)
	})

	t.Run("will fall back to defaults for unset readers", func(t *testing.T) {
		restoreGlobals(t)

		rt, err := Build(SDK{
			TracerProvider: config.EmptyReader[trace.TracerProvider](),
		}, mockBuilder(&mockRuntime{})).Build(context.Background())
		require.NoError(t, err)
		require.IsType(t, tracenoop.TracerProvider{}, rt.tracerProvider)
		require.IsType(t, metricnoop.MeterProvider{}, rt.meterProvider)
		require.IsType(t, lognoop.LoggerProvider{}, rt.loggerProvider)
	})

	t.Run("will build the inner runtime after installing providers", func(t *testing.T) {
		restoreGlobals(t)

		mp := metricnoop.NewMeterProvider()
		var seen metric.MeterProvider
		builder := app.BuilderFunc[*mockRuntime](func(ctx context.Context) (*mockRuntime, error) {
			seen = otel.GetMeterProvider()
			return &mockRuntime{}, nil
		})

		_, err := Build(SDK{
			MeterProvider: config.ReaderOf[metric.MeterProvider](mp),
		}, builder).Build(context.Background())
		require.NoError(t, err)
		require.Equal(t, mp, seen)
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if a provider reader fails", func(t *testing.T) {
			restoreGlobals(t)

			readErr := errors.New("bad endpoint")
			_, err := Build(SDK{
				TracerProvider: failingReader[trace.TracerProvider](readErr),
			}, mockBuilder(&mockRuntime{})).Build(context.Background())
			require.ErrorIs(t, err, readErr)
		})

		t.Run("if the inner builder fails", func(t *testing.T) {
			restoreGlobals(t)

			buildErr := errors.New("missing queue name")
			builder := app.BuilderFunc[*mockRuntime](func(ctx context.Context) (*mockRuntime, error) {
				return nil, buildErr
			})

			_, err := Build(SDK{}, builder).Build(context.Background())
			require.ErrorIs(t, err, buildErr)
		})
	})

	t.Run("will record runtime metrics when enabled", func(t *testing.T) {
		restoreGlobals(t)

		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

		_, err := Build(SDK{
			MeterProvider:  config.ReaderOf[metric.MeterProvider](mp),
			RuntimeMetrics: config.ReaderOf(true),
		}, mockBuilder(&mockRuntime{})).Build(context.Background())
		require.NoError(t, err)

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))
		require.NotEmpty(t, rm.ScopeMetrics)
		require.NoError(t, mp.Shutdown(context.Background()))
	})
}

func TestRuntime_Run(t *testing.T) {
	t.Run("will run the inner runtime and shut down providers", func(t *testing.T) {
		inner := &mockRuntime{}
		tp := &mockShutdowner{}

		rt := Runtime{
			inner:          inner,
			tracerProvider: tracerProviderWith(tp),
			meterProvider:  metricnoop.NewMeterProvider(),
			loggerProvider: lognoop.NewLoggerProvider(),
		}

		err := rt.Run(context.Background())
		require.NoError(t, err)
		require.True(t, inner.runCalled)
		require.True(t, tp.shutdownCalled)
	})

	t.Run("will join the inner error with shutdown errors", func(t *testing.T) {
		runErr := errors.New("dequeue failed")
		shutdownErr := errors.New("export failed")

		rt := Runtime{
			inner:          &mockRuntime{runErr: runErr},
			tracerProvider: tracerProviderWith(&mockShutdowner{shutdownErr: shutdownErr}),
			meterProvider:  metricnoop.NewMeterProvider(),
			loggerProvider: lognoop.NewLoggerProvider(),
		}

		err := rt.Run(context.Background())
		require.ErrorIs(t, err, runErr)
		require.ErrorIs(t, err, shutdownErr)
	})
}

type shutdownTracerProvider struct {
	tracenoop.TracerProvider
	*mockShutdowner
}

func tracerProviderWith(s *mockShutdowner) trace.TracerProvider {
	return shutdownTracerProvider{
		TracerProvider: tracenoop.NewTracerProvider(),
		mockShutdowner: s,
	}
}

func TestShutdown(t *testing.T) {
	t.Run("will shut down every provider", func(t *testing.T) {
		a, b := &mockShutdowner{}, &mockShutdowner{}

		err := shutdown(a, "not a shutdowner", b)()
		require.NoError(t, err)
		require.True(t, a.shutdownCalled)
		require.True(t, b.shutdownCalled)
	})

	t.Run("will continue after an error and collect all errors", func(t *testing.T) {
		errA := errors.New("error 1")
		errB := errors.New("error 2")
		a := &mockShutdowner{shutdownErr: errA}
		b := &mockShutdowner{shutdownErr: errB}
		c := &mockShutdowner{}

		err := shutdown(a, b, c)()
		require.ErrorIs(t, err, errA)
		require.ErrorIs(t, err, errB)
		require.True(t, c.shutdownCalled)
	})
}
