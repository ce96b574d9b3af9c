package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderRejectsEmptyServiceName(t *testing.T) {
	_, err := NewProvider("", "localhost:4318")
	assert.Error(t, err)
}

func TestProviderRecordMetricAndStartSpanDoNotPanic(t *testing.T) {
	p, err := NewProvider("test-service", "localhost:4318")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	ctx, span := p.StartSpan(context.Background(), "test.span")
	span.SetAttribute("key", "value")
	span.RecordError(nil)
	span.End()

	p.RecordMetric(MetricJobDuration, 1.5, map[string]string{"status": "completed"})
	p.RecordMetric(MetricJobTransition, 1, map[string]string{"status": "completed"})
	_ = ctx
}

func TestProviderShutdownIsIdempotent(t *testing.T) {
	p, err := NewProvider("test-service", "localhost:4318")
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))

	ctx, span := p.StartSpan(context.Background(), "after-shutdown")
	span.End()
	_ = ctx
}
