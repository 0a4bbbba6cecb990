// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package metrics wires the OpenTelemetry meter backed by a Prometheus
// reader. The admin listener serves the registry at /metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// scopeName identifies this module's instruments.
const scopeName = "jimengapi/jimeng-gateway"

// New builds a Meter whose instruments are exported through registry. The
// returned shutdown function flushes the provider.
func New(registry *prometheus.Registry) (metric.Meter, func(context.Context) error, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return mp.Meter(scopeName), mp.Shutdown, nil
}
