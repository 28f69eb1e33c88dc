// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/z5labs/queuein/config"

	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// LogLevelsFromEnv reads QUEUEIN_LOG_LEVELS, a comma separated list of
// logger=level pairs, e.g. "github.com/z5labs/queuein=info,github.com/z5labs/queuein/queue/azqueue=debug".
func LogLevelsFromEnv() config.Reader[map[string]string] {
	return ParseLogLevels(config.Env("QUEUEIN_LOG_LEVELS"))
}

// ParseLogLevels parses a comma separated list of logger=level pairs.
func ParseLogLevels(r config.Reader[string]) config.Reader[map[string]string] {
	return config.Map(r, func(ctx context.Context, s string) (map[string]string, error) {
		levels := make(map[string]string)
		for pair := range strings.SplitSeq(s, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			name, level, ok := strings.Cut(pair, "=")
			if !ok || name == "" {
				return nil, fmt.Errorf("otel: invalid log level pair: %q", pair)
			}
			levels[strings.TrimSpace(name)] = strings.TrimSpace(level)
		}
		return levels, nil
	})
}

// StderrLogExporter writes log records as JSON lines to stderr, keeping
// stdout free for pipeline output.
type StderrLogExporter struct{}

// Read implements the [config.Reader] interface.
func (StderrLogExporter) Read(ctx context.Context) (config.Value[sdklog.Exporter], error) {
	return config.ValueOf(NewSlogExporter(os.Stderr)), nil
}

// NewSlogExporter returns a log exporter which renders records with a JSON
// [slog.Handler] writing to w.
func NewSlogExporter(w io.Writer) sdklog.Exporter {
	return &slogExporter{
		handler: slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}),
	}
}

type slogExporter struct {
	handler slog.Handler
}

// Export implements the [sdklog.Exporter] interface.
func (s *slogExporter) Export(ctx context.Context, records []sdklog.Record) error {
	const sevOffset = log.SeverityDebug - log.Severity(slog.LevelDebug)
	for _, record := range records {
		sr := slog.Record{
			Time:    record.Timestamp(),
			Level:   slog.Level(record.Severity() - sevOffset),
			Message: record.Body().AsString(),
		}
		sr.AddAttrs(slog.String("logger", record.InstrumentationScope().Name))

		record.WalkAttributes(func(kv log.KeyValue) bool {
			sr.AddAttrs(slog.Attr{
				Key:   kv.Key,
				Value: mapLogValue(kv.Value),
			})
			return true
		})

		if record.TraceID().IsValid() {
			sr.AddAttrs(slog.Group(
				"otel",
				slog.String("trace.id", record.TraceID().String()),
				slog.String("span.id", record.SpanID().String()),
			))
		}

		err := s.handler.Handle(ctx, sr)
		if err != nil {
			return err
		}
	}
	return nil
}

func mapLogValue(v log.Value) slog.Value {
	switch v.Kind() {
	case log.KindBool:
		return slog.BoolValue(v.AsBool())
	case log.KindBytes:
		return slog.AnyValue(v.AsBytes())
	case log.KindFloat64:
		return slog.Float64Value(v.AsFloat64())
	case log.KindInt64:
		return slog.Int64Value(v.AsInt64())
	case log.KindMap:
		kvs := v.AsMap()
		attrs := make([]slog.Attr, len(kvs))
		for i, kv := range kvs {
			attrs[i] = slog.Attr{Key: kv.Key, Value: mapLogValue(kv.Value)}
		}
		return slog.GroupValue(attrs...)
	case log.KindSlice:
		vs := v.AsSlice()
		vals := make([]any, len(vs))
		for i := range vs {
			vals[i] = mapLogValue(vs[i]).Any()
		}
		return slog.AnyValue(vals)
	case log.KindString:
		return slog.StringValue(v.AsString())
	default:
		return slog.StringValue(v.String())
	}
}

// ForceFlush implements the [sdklog.Exporter] interface.
func (s *slogExporter) ForceFlush(ctx context.Context) error {
	return nil
}

// Shutdown implements the [sdklog.Exporter] interface.
func (s *slogExporter) Shutdown(ctx context.Context) error {
	return nil
}

// filteringProcessor drops records below the minimum severity configured
// for their logger name. Logger names match by longest prefix and unknown
// loggers are always emitted.
type filteringProcessor struct {
	inner    sdklog.Processor
	levels   map[string]log.Severity
	prefixes []string
}

func newFilteringProcessor(inner sdklog.Processor, levels map[string]string) *filteringProcessor {
	severities := make(map[string]log.Severity, len(levels))
	prefixes := make([]string, 0, len(levels))
	for name, level := range levels {
		severities[name] = parseLogLevel(level)
		prefixes = append(prefixes, name)
	}

	// longest first
	sort.Slice(prefixes, func(i, j int) bool {
		return len(prefixes[i]) > len(prefixes[j])
	})

	return &filteringProcessor{
		inner:    inner,
		levels:   severities,
		prefixes: prefixes,
	}
}

// parseLogLevel maps unknown levels to debug.
func parseLogLevel(level string) log.Severity {
	switch strings.ToLower(level) {
	case "info":
		return log.SeverityInfo
	case "warn", "warning":
		return log.SeverityWarn
	case "error":
		return log.SeverityError
	default:
		return log.SeverityDebug
	}
}

// OnEmit implements the [sdklog.Processor] interface.
func (p *filteringProcessor) OnEmit(ctx context.Context, record *sdklog.Record) error {
	if !p.shouldEmit(record) {
		return nil
	}
	return p.inner.OnEmit(ctx, record)
}

func (p *filteringProcessor) shouldEmit(record *sdklog.Record) bool {
	minimum, found := p.minimumLevel(record.InstrumentationScope().Name)
	if !found {
		return true
	}
	return record.Severity() >= minimum
}

func (p *filteringProcessor) minimumLevel(name string) (log.Severity, bool) {
	if level, ok := p.levels[name]; ok {
		return level, true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(name, prefix) {
			return p.levels[prefix], true
		}
	}
	return 0, false
}

// Shutdown implements the [sdklog.Processor] interface.
func (p *filteringProcessor) Shutdown(ctx context.Context) error {
	return p.inner.Shutdown(ctx)
}

// ForceFlush implements the [sdklog.Processor] interface.
func (p *filteringProcessor) ForceFlush(ctx context.Context) error {
	return p.inner.ForceFlush(ctx)
}
