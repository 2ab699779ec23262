// SPDX-License-Identifier: MIT
package observe

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Provider bundles the meter provider with its scrape handler.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Handler       http.Handler
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.MeterProvider.Shutdown(ctx)
}

// InitProvider sets up a MeterProvider backed by a Prometheus exporter
// registered on a dedicated registry, and installs it as the global OTel
// meter provider.
func InitProvider(serviceName, serviceVersion string) (*Provider, error) {
	registry := prometheus.NewRegistry()

	exp, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", serviceVersion),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	)
	otel.SetMeterProvider(mp)

	return &Provider{
		MeterProvider: mp,
		Handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	}, nil
}
