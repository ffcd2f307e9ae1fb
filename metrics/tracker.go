// Package metrics records completion telemetry with OpenTelemetry instruments.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"inlinesuggest/logger"
	"inlinesuggest/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "inlinesuggest"

// Instrument names
const (
	MetricCompletions   = "inlinesuggest.completions"
	MetricAccepted      = "inlinesuggest.accepted"
	MetricAcceptedLines = "inlinesuggest.accepted.lines"
	MetricErrors        = "inlinesuggest.request.errors"
	MetricSuperseded    = "inlinesuggest.request.superseded"
	MetricLatency       = "inlinesuggest.request.latency"
)

// Tracker publishes completion events to OTEL instruments.
// A nil *Tracker is valid and records nothing.
type Tracker struct {
	completions   metric.Int64Counter
	accepted      metric.Int64Counter
	acceptedLines metric.Int64Counter
	errors        metric.Int64Counter
	superseded    metric.Int64Counter
	latency       metric.Float64Histogram
}

// NewTracker creates the instruments on meter
func NewTracker(meter metric.Meter) (*Tracker, error) {
	var (
		t    Tracker
		err  error
		errs []error
	)

	t.completions, err = meter.Int64Counter(MetricCompletions,
		metric.WithDescription("Completions returned to the editor"))
	errs = append(errs, err)
	t.accepted, err = meter.Int64Counter(MetricAccepted,
		metric.WithDescription("Completions accepted by the user"))
	errs = append(errs, err)
	t.acceptedLines, err = meter.Int64Counter(MetricAcceptedLines,
		metric.WithDescription("Lines added and removed by accepted completions"))
	errs = append(errs, err)
	t.errors, err = meter.Int64Counter(MetricErrors,
		metric.WithDescription("Failed completion requests"))
	errs = append(errs, err)
	t.superseded, err = meter.Int64Counter(MetricSuperseded,
		metric.WithDescription("Completion results dropped because a newer request was issued"))
	errs = append(errs, err)
	t.latency, err = meter.Float64Histogram(MetricLatency,
		metric.WithDescription("Round trip time of completion requests"),
		metric.WithUnit("ms"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	return &t, nil
}

// TrackCompletions records a successful request
func (t *Tracker) TrackCompletions(ctx context.Context, count int, latency time.Duration, source types.CompletionSource, trigger types.TriggerKind) {
	if t == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("source", source.String()),
		attribute.String("trigger", trigger.String()),
	)
	t.completions.Add(ctx, int64(count), attrs)
	t.latency.Record(ctx, float64(latency)/float64(time.Millisecond), attrs)
}

// TrackAccepted records an accepted completion and its size
func (t *Tracker) TrackAccepted(ctx context.Context, additions, deletions int) {
	if t == nil {
		return
	}
	t.accepted.Add(ctx, 1)
	t.acceptedLines.Add(ctx, int64(additions), metric.WithAttributes(attribute.String("kind", "added")))
	t.acceptedLines.Add(ctx, int64(deletions), metric.WithAttributes(attribute.String("kind", "removed")))
}

// TrackError records a failed request
func (t *Tracker) TrackError(ctx context.Context, kind string) {
	if t == nil {
		return
	}
	t.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// TrackSuperseded records a result dropped by supersession
func (t *Tracker) TrackSuperseded(ctx context.Context) {
	if t == nil {
		return
	}
	t.superseded.Add(ctx, 1)
}

// Provider owns the SDK meter provider and the reader used to inspect totals
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	reader        *sdkmetric.ManualReader
	tracker       *Tracker
	shutdownOnce  sync.Once
}

// Setup creates an in-process meter provider. Metrics are kept in memory and
// read back through Totals; nothing is exported over the network.
func Setup(serviceName string) (*Provider, error) {
	if serviceName == "" {
		serviceName = meterName
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	tracker, err := NewTracker(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}

	return &Provider{meterProvider: mp, reader: reader, tracker: tracker}, nil
}

// Tracker returns the tracker bound to this provider
func (p *Provider) Tracker() *Tracker {
	return p.tracker
}

// Totals collects the current value of every integer counter, summed over attributes
func (p *Provider) Totals(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	totals := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	return totals, nil
}

// Shutdown flushes and stops the meter provider
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		err = p.meterProvider.Shutdown(ctx)
		if err != nil {
			logger.Warn("metrics: shutdown: %v", err)
		}
	})
	return err
}
