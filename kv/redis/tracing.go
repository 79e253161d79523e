package redis

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/pure-golang/mailblast/kv/redis")

func startSpan(ctx context.Context, operation string, key string, db int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", operation),
		attribute.Int("db.redis.database_index", db),
	}
	if key != "" {
		attrs = append(attrs, attribute.String("kv.key", key))
		if run := runID(key); run != "" {
			attrs = append(attrs, attribute.String("mailblast.run_id", run))
		}
	}
	return tracer.Start(ctx, "redis."+operation, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

// runID extracts <id> from keys shaped "<prefix>:run:<id>[:suffix]".
func runID(key string) string {
	_, rest, ok := strings.Cut(key, ":run:")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, ":")
	return id
}

// finishSpan sets the span status. A missing key is a normal outcome.
func finishSpan(span trace.Span, err error) {
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, ErrKeyNotFound):
		span.AddEvent("key not found")
		span.SetStatus(codes.Ok, "")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
