package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PendingCounter reports the number of envelopes awaiting delivery.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int64, error)
}

// QueueMetrics exposes queue health: an observable pending gauge plus sync
// outcome counters fed by the event bus.
type QueueMetrics struct {
	syncedCounter metric.Int64Counter
	parkedCounter metric.Int64Counter
	cycleCounter  metric.Int64Counter
}

// NewQueueMetrics registers the queue instruments. The pending gauge is
// observed on scrape via the provided counter, so it stays accurate without a
// write path through the sync code.
func NewQueueMetrics(
	meterProvider metric.MeterProvider,
	namespace string,
	pending PendingCounter,
) (*QueueMetrics, error) {
	meter := meterProvider.Meter(namespace)

	_, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_queue_pending_envelopes", namespace),
		metric.WithDescription("Number of envelopes awaiting delivery"),
		metric.WithUnit("{envelope}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			count, err := pending.PendingCount(ctx)
			if err != nil {
				return err
			}
			observer.Observe(count)
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending gauge: %w", err)
	}

	syncedCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_sync_envelopes_synced_total", namespace),
		metric.WithDescription("Total number of envelopes acknowledged by the remote"),
		metric.WithUnit("{envelope}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create synced counter: %w", err)
	}

	parkedCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_sync_envelopes_parked_total", namespace),
		metric.WithDescription("Total number of envelopes parked in terminal failure states"),
		metric.WithUnit("{envelope}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create parked counter: %w", err)
	}

	cycleCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_sync_cycles_total", namespace),
		metric.WithDescription("Total number of completed drain cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle counter: %w", err)
	}

	return &QueueMetrics{
		syncedCounter: syncedCounter,
		parkedCounter: parkedCounter,
		cycleCounter:  cycleCounter,
	}, nil
}

// RecordCycle records the outcome of one drain cycle.
func (q *QueueMetrics) RecordCycle(ctx context.Context, synced int) {
	q.cycleCounter.Add(ctx, 1)
	q.syncedCounter.Add(ctx, int64(synced))
}

// RecordParked records one envelope parked in a terminal failure state,
// labeled by its failure reason.
func (q *QueueMetrics) RecordParked(ctx context.Context, reason string) {
	q.parkedCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}
