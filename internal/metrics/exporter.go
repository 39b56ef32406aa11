package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ExporterConfig configures OTLP metric export.
type ExporterConfig struct {
	Endpoint    string
	Interval    time.Duration
	ServiceName string
	Version     string
}

// ShutdownFunc flushes and stops the installed provider.
type ShutdownFunc func(ctx context.Context) error

// InstallOTLP installs a global meter provider that pushes to an OTLP gRPC
// collector at cfg.Endpoint.
func InstallOTLP(ctx context.Context, cfg ExporterConfig) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("otlp endpoint is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "otuserver"
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otlp metric exporter: %w", err)
	}

	provider := NewProvider(cfg,
		sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval)))
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

// NewProvider builds an SDK meter provider around reader, tagged with the
// service resource.
func NewProvider(cfg ExporterConfig, reader sdkmetric.Reader) *sdkmetric.MeterProvider {
	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.Version != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.Version))
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(resource.NewSchemaless(attrs...)),
	)
}
