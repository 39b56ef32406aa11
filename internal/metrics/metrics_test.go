package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestRecorder(t *testing.T) (*Recorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := NewProvider(ExporterConfig{ServiceName: "otuserver-test"}, reader)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	r, err := NewRecorder(provider.Meter(ScopeName))
	require.NoError(t, err)
	return r, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestConnectionCounters(t *testing.T) {
	r, reader := newTestRecorder(t)
	ctx := context.Background()

	r.ConnectionAccepted(ctx)
	r.ConnectionAccepted(ctx)
	r.ConnectionAccepted(ctx)
	r.ConnectionClosed(ctx)

	data := collect(t, reader)

	accepted, ok := data[ConnectionsAccepted].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, accepted.DataPoints, 1)
	assert.Equal(t, int64(3), accepted.DataPoints[0].Value)
	assert.True(t, accepted.IsMonotonic)

	active, ok := data[ConnectionsActive].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, active.DataPoints, 1)
	assert.Equal(t, int64(2), active.DataPoints[0].Value)
	assert.False(t, active.IsMonotonic)
}

func TestResponsesByStatus(t *testing.T) {
	r, reader := newTestRecorder(t)
	ctx := context.Background()

	r.ResponseBuilt(ctx, 200)
	r.ResponseBuilt(ctx, 200)
	r.ResponseBuilt(ctx, 404)

	responses, ok := collect(t, reader)[Responses].(metricdata.Sum[int64])
	require.True(t, ok)

	byStatus := make(map[int64]int64)
	for _, dp := range responses.DataPoints {
		status, found := dp.Attributes.Value(attribute.Key("http.status_code"))
		require.True(t, found)
		byStatus[status.AsInt64()] = dp.Value
	}
	assert.Equal(t, map[int64]int64{200: 2, 404: 1}, byStatus)
}

func TestConnectionFaults(t *testing.T) {
	r, reader := newTestRecorder(t)

	r.ConnectionFault(context.Background(), "unhandled")

	faults, ok := collect(t, reader)[ConnectionFaults].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, faults.DataPoints, 1)
	kind, _ := faults.DataPoints[0].Attributes.Value(attribute.Key("fault.kind"))
	assert.Equal(t, "unhandled", kind.AsString())
}

func TestNopAndGlobalRecorders(t *testing.T) {
	nop := NewNop()
	require.NotNil(t, nop)
	nop.ConnectionAccepted(context.Background())
	nop.ResponseBuilt(context.Background(), 500)

	global, err := Global()
	require.NoError(t, err)
	global.ConnectionClosed(context.Background())
}

func TestInstallOTLPRequiresEndpoint(t *testing.T) {
	_, err := InstallOTLP(context.Background(), ExporterConfig{})
	assert.Error(t, err)
}
