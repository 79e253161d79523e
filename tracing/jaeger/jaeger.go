package jaeger

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"

	"github.com/pure-golang/mailblast/tracing"
)

var _ tracing.Provider = (*Provider)(nil)

type Config struct {
	Enabled     bool    `envconfig:"TRACING_ENABLED" default:"false"`
	EndPoint    string  `envconfig:"TRACING_ENDPOINT" default:"http://localhost:4318/v1/traces"`
	SampleRatio float64 `envconfig:"TRACING_SAMPLE_RATIO" default:"1"`
	ServiceName string  `envconfig:"SERVICE_NAME" default:"mailblast"`
	AppVersion  string  `envconfig:"APP_VERSION" default:"dev"`
}

// Provider extends tracesdk.TraceProvider with an OTLP HTTP exporter
// (Jaeger accepts OTLP natively).
type Provider struct {
	*tracesdk.TracerProvider
}

// Close flushes pending spans and shuts the exporter down.
func (j *Provider) Close() error {
	ctx := context.Background()
	if err := j.ForceFlush(ctx); err != nil {
		// Ensure shutdown is called even if ForceFlush fails
		_ = j.TracerProvider.Shutdown(ctx)
		return errors.Wrap(err, "jaeger force flush failed")
	}

	return errors.Wrap(j.TracerProvider.Shutdown(ctx), "shutdown jaeger")
}

// NewProviderBuilder returns a builder for tracing.Init. A disabled config
// builds a no-op provider.
func NewProviderBuilder(conf Config) tracing.ProviderBuilder {
	return func() (tracing.Provider, error) {
		if !conf.Enabled {
			return &tracing.NoopProvider{}, nil
		}
		if conf.EndPoint == "" {
			return nil, errors.New("empty connection string")
		}
		if conf.ServiceName == "" {
			return nil, errors.New("service name is empty")
		}

		exp, err := otlptrace.New(
			context.Background(),
			otlptracehttp.NewClient(
				otlptracehttp.WithEndpointURL(conf.EndPoint),
			),
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create jaeger instance")
		}

		tp := tracesdk.NewTracerProvider(
			tracesdk.WithBatcher(exp),
			tracesdk.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceNameKey.String(conf.ServiceName),
				semconv.ServiceVersionKey.String(conf.AppVersion),
			)),
			tracesdk.WithSampler(tracesdk.ParentBased(sampler(conf.SampleRatio))),
		)

		return &Provider{TracerProvider: tp}, nil
	}
}

func sampler(ratio float64) tracesdk.Sampler {
	switch {
	case ratio >= 1:
		return tracesdk.AlwaysSample()
	case ratio <= 0:
		return tracesdk.NeverSample()
	default:
		return tracesdk.TraceIDRatioBased(ratio)
	}
}
