// Copyright Jimeng Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GenerationMetrics records the generation pipeline's instruments. All
// methods are safe for concurrent use; a nil receiver records nothing so
// tests can pass nil.
type GenerationMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	pollTicks       metric.Int64Histogram
	uploadTotal     metric.Int64Counter
}

// NewGenerationMetrics registers the generation instruments on meter.
func NewGenerationMetrics(meter metric.Meter) (*GenerationMetrics, error) {
	// The prometheus exporter appends the unit suffix, so the family is
	// exported as gen_request_duration_seconds.
	requestDuration, err := meter.Float64Histogram("gen_request_duration",
		metric.WithDescription("End-to-end duration of one generation request."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	requestTotal, err := meter.Int64Counter("gen_request_total",
		metric.WithDescription("Generation requests by operation and outcome."))
	if err != nil {
		return nil, err
	}
	pollTicks, err := meter.Int64Histogram("gen_poll_ticks",
		metric.WithDescription("History polls needed to finish one generation."))
	if err != nil {
		return nil, err
	}
	uploadTotal, err := meter.Int64Counter("gen_upload_total",
		metric.WithDescription("Reference image uploads by outcome."))
	if err != nil {
		return nil, err
	}
	return &GenerationMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		pollTicks:       pollTicks,
		uploadTotal:     uploadTotal,
	}, nil
}

// RecordRequest records one finished generation call.
func (m *GenerationMetrics) RecordRequest(ctx context.Context, operation string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", success))
	m.requestDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.requestTotal.Add(ctx, 1, attrs)
}

// RecordPoll records how many ticks one poll loop took.
func (m *GenerationMetrics) RecordPoll(ctx context.Context, operation string, ticks int) {
	if m == nil {
		return
	}
	m.pollTicks.Record(ctx, int64(ticks), metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordUpload records one upload attempt.
func (m *GenerationMetrics) RecordUpload(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.uploadTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}
