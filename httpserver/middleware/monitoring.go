package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailblast/logger"
)

var (
	meter = otel.GetMeterProvider().Meter("github.com/pure-golang/mailblast/httpserver/middleware")
	// nolint:errcheck // Sync OpenTelemetry instruments never return errors
	requestsCount, _   = meter.Int64Counter("http.request_count")
	requestTimeHist, _ = meter.Int64Histogram("http.request_time", metric.WithUnit("ms"))
	tracer             = otel.Tracer("github.com/pure-golang/mailblast/httpserver/middleware")
)

// Monitoring traces incoming requests, counts them, and puts a request
// logger into the context.
func Monitoring(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			route := r.Method + " " + r.URL.Path
			ctx, span := tracer.Start(ctx, route, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			log := base.With("method", r.Method, "path", r.URL.Path)
			if sc := span.SpanContext(); sc.HasTraceID() {
				traceID := sc.TraceID().String()
				log = log.With("trace_id", traceID)
				w.Header().Set("X-Trace-Id", traceID)
			}
			ctx = logger.NewContext(ctx, log)

			srw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(srw, r.WithContext(ctx))
			if srw.status == 0 {
				srw.status = http.StatusOK
			}

			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
				attribute.Int("http.status_code", srw.status),
			)

			labels := metric.WithAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.code", srw.status),
			)
			requestsCount.Add(ctx, 1, labels)
			requestTimeHist.Record(ctx, time.Since(start).Milliseconds(), labels)

			log.Debug("request served", "status", srw.status, "duration", time.Since(start))
			if srw.status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(srw.status))
				return
			}
			span.SetStatus(codes.Ok, "")
		})
	}
}

// statusWriter keeps the status sent by WriteHeader/Write.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}
