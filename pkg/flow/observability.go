package flow

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// addRequestAttributes sets attributes on the current trace span, and if no
// active span, logs the attributes via slog for observability fallback.
func addRequestAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		logAttrs := make([]slog.Attr, 0, len(attrs)+1)
		for _, attr := range attrs {
			logAttrs = append(logAttrs, slog.Any(string(attr.Key), attr.Value.AsInterface()))
		}
		logAttrs = append(logAttrs, slog.Bool("observability.fallback", true))
		slog.LogAttrs(ctx, slog.LevelDebug, "flow attributes", logAttrs...)
		return
	}
	span.SetAttributes(attrs...)
}
