// Package tracing installs the OpenTelemetry tracer provider. Finished spans
// are written to the process logger, one record per span.
package tracing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Setup installs a logging tracer provider as the global provider when
// enabled. Disabled, the global no-op provider stays in place.
func Setup(enabled bool, logger *slog.Logger) ShutdownFunc {
	if !enabled {
		return func(context.Context) error { return nil }
	}
	tp := NewProvider(logger)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// NewProvider returns a tracer provider that exports every span to logger
// as soon as it ends.
func NewProvider(logger *slog.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(&logExporter{logger: logger}),
	)
}

type logExporter struct {
	logger *slog.Logger
}

func (e *logExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := []slog.Attr{
			slog.String("span", s.Name()),
			slog.String("trace_id", s.SpanContext().TraceID().String()),
			slog.String("span_id", s.SpanContext().SpanID().String()),
			slog.Duration("duration", s.EndTime().Sub(s.StartTime())),
		}
		if parent := s.Parent(); parent.IsValid() {
			attrs = append(attrs, slog.String("parent_id", parent.SpanID().String()))
		}
		for _, kv := range s.Attributes() {
			attrs = append(attrs, slog.String(string(kv.Key), kv.Value.Emit()))
		}

		level := slog.LevelInfo
		if st := s.Status(); st.Code == codes.Error {
			level = slog.LevelWarn
			attrs = append(attrs, slog.String("status", st.Description))
		}
		e.logger.LogAttrs(ctx, level, "span finished", attrs...)
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error { return nil }
