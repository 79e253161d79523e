package jaeger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"

	"github.com/pure-golang/mailblast/tracing"
)

func TestNewProviderBuilder_Disabled(t *testing.T) {
	provider, err := NewProviderBuilder(Config{Enabled: false})()
	require.NoError(t, err)
	assert.IsType(t, &tracing.NoopProvider{}, provider)
	assert.NoError(t, provider.Close())
}

func TestNewProviderBuilder_Validation(t *testing.T) {
	tests := []struct {
		name string
		conf Config
		want string
	}{
		{"empty endpoint", Config{Enabled: true, ServiceName: "mailblast"}, "empty connection string"},
		{"empty service", Config{Enabled: true, EndPoint: "http://localhost:4318/v1/traces"}, "service name is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProviderBuilder(tt.conf)()
			require.Error(t, err)
			assert.Nil(t, provider)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestNewProviderBuilder_Enabled(t *testing.T) {
	// The exporter connects lazily, so no collector is needed to build it.
	provider, err := NewProviderBuilder(Config{
		Enabled:     true,
		EndPoint:    "http://127.0.0.1:1/v1/traces",
		SampleRatio: 0.5,
		ServiceName: "mailblast",
		AppVersion:  "test",
	})()
	require.NoError(t, err)
	require.IsType(t, &Provider{}, provider)

	// Nothing was recorded, so flushing does not touch the network.
	assert.NoError(t, provider.Close())
}

func TestSampler(t *testing.T) {
	assert.Equal(t, tracesdk.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, tracesdk.NeverSample().Description(), sampler(0).Description())
	assert.Equal(t, tracesdk.TraceIDRatioBased(0.25).Description(), sampler(0.25).Description())
}

func TestInit(t *testing.T) {
	provider, err := tracing.Init(NewProviderBuilder(Config{Enabled: false}))
	require.NoError(t, err)
	assert.NotNil(t, provider)

	provider, err = tracing.Init(NewProviderBuilder(Config{Enabled: true}))
	require.Error(t, err)
	assert.IsType(t, &tracing.NoopProvider{}, provider)
}
