// Package metrics records server activity as OpenTelemetry instruments.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// ScopeName is the instrumentation scope of every instrument.
const ScopeName = "github.com/conneroisu/otuserver"

const (
	ConnectionsAccepted = "otuserver.connections.accepted"
	ConnectionsActive   = "otuserver.connections.active"
	Responses           = "otuserver.responses"
	ConnectionFaults    = "otuserver.connection.faults"
)

// Recorder holds the server's instruments. It is safe for concurrent use.
type Recorder struct {
	accepted  metric.Int64Counter
	active    metric.Int64UpDownCounter
	responses metric.Int64Counter
	faults    metric.Int64Counter
}

// NewRecorder creates the instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	accepted, err := meter.Int64Counter(ConnectionsAccepted,
		metric.WithDescription("Connections accepted from the listening socket"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", ConnectionsAccepted, err)
	}

	active, err := meter.Int64UpDownCounter(ConnectionsActive,
		metric.WithDescription("Connections currently owned by a worker"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", ConnectionsActive, err)
	}

	responses, err := meter.Int64Counter(Responses,
		metric.WithDescription("Responses built, by status code"),
		metric.WithUnit("{response}"))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", Responses, err)
	}

	faults, err := meter.Int64Counter(ConnectionFaults,
		metric.WithDescription("Connections closed because of a fault"),
		metric.WithUnit("{fault}"))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", ConnectionFaults, err)
	}

	return &Recorder{
		accepted:  accepted,
		active:    active,
		responses: responses,
		faults:    faults,
	}, nil
}

// Global creates a recorder on the global meter provider, which is a no-op
// until a provider is installed.
func Global() (*Recorder, error) {
	return NewRecorder(otel.Meter(ScopeName))
}

// NewNop returns a recorder that discards everything.
func NewNop() *Recorder {
	r, _ := NewRecorder(noop.NewMeterProvider().Meter(ScopeName))
	return r
}

func (r *Recorder) ConnectionAccepted(ctx context.Context) {
	r.accepted.Add(ctx, 1)
	r.active.Add(ctx, 1)
}

func (r *Recorder) ConnectionClosed(ctx context.Context) {
	r.active.Add(ctx, -1)
}

// ResponseBuilt counts a response by its status code.
func (r *Recorder) ResponseBuilt(ctx context.Context, status int) {
	r.responses.Add(ctx, 1, metric.WithAttributes(attribute.Int("http.status_code", status)))
}

// ConnectionFault counts a connection closed by a fault of the given kind.
func (r *Recorder) ConnectionFault(ctx context.Context, kind string) {
	r.faults.Add(ctx, 1, metric.WithAttributes(attribute.String("fault.kind", kind)))
}
