package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Tests mutate otel globals and therefore do not run in parallel.

func TestInitTracerProviderDisabled(t *testing.T) {
	tp, shutdown, err := InitTracerProvider(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, tp)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracerProviderRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, shutdown, err := InitTracerProvider(context.Background(),
		Config{Enabled: true, ServiceName: "corpus-test"},
		sdktrace.WithSpanProcessor(recorder),
	)
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := tp.Tracer("test").Start(context.Background(), "export.corpus")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "export.corpus", ended[0].Name())
	assert.True(t, ended[0].SpanContext().TraceID().IsValid())
	require.NoError(t, shutdown(context.Background()))
}
