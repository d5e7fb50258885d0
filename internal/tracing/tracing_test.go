package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arifainchtein/librespot-go/internal/config"
)

func TestSetupStdoutExporter(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{
		Enabled:     true,
		ServiceName: "test-service",
		Exporter:    "stdout",
		SampleRatio: 1.0,
	})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupUnknownExporterErrors(t *testing.T) {
	_, err := Setup(context.Background(), config.TracingConfig{
		Enabled:  true,
		Exporter: "nonsense",
	})
	require.Error(t, err)
}

func TestTracerReturnsUsableTracer(t *testing.T) {
	tr := Tracer("test")
	_, span := tr.Start(context.Background(), "op")
	defer span.End()
	require.NotNil(t, span)
}
