package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds all risk-engine metrics. A nil *Registry is valid and
// records nothing, which keeps tests free of meter setup.
type Registry struct {
	meter metric.Meter

	// Detection Metrics
	DetectionDuration metric.Float64Histogram
	VerdictCounter    metric.Int64Counter
	OverallRisk       metric.Float64Histogram
	FactorCounter     metric.Int64Counter
	AnalyzerFailures  metric.Int64Counter
	DeadlineCutoffs   metric.Int64Counter

	// Collaborator Metrics
	IntelLookupCounter   metric.Int64Counter
	VerdictRecordFailure metric.Int64Counter

	// Store Metrics
	ProfileCount   metric.Int64ObservableGauge
	DeviceCount    metric.Int64ObservableGauge
	BlacklistCount metric.Int64ObservableGauge

	// State for observable metrics
	mu        sync.RWMutex
	profiles  int64
	devices   int64
	blacklist int64
}

// NewRegistry creates a new metrics registry with all engine metrics
func NewRegistry(meterName string) (*Registry, error) {
	r := &Registry{meter: otel.Meter(meterName)}

	if err := r.initDetectionMetrics(); err != nil {
		return nil, err
	}

	if err := r.initCollaboratorMetrics(); err != nil {
		return nil, err
	}

	if err := r.initStoreMetrics(); err != nil {
		return nil, err
	}

	return r, nil
}

// initDetectionMetrics initializes per-evaluation metrics
func (r *Registry) initDetectionMetrics() error {
	var err error

	r.DetectionDuration, err = r.meter.Float64Histogram(
		"risk.detection.duration",
		metric.WithDescription("Duration of a fraud evaluation in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 25, 50, 100, 200, 500),
	)
	if err != nil {
		return err
	}

	r.VerdictCounter, err = r.meter.Int64Counter(
		"risk.detection.verdicts_total",
		metric.WithDescription("Verdicts by required action and status"),
	)
	if err != nil {
		return err
	}

	r.OverallRisk, err = r.meter.Float64Histogram(
		"risk.detection.overall_risk",
		metric.WithDescription("Distribution of blended overall risk"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9),
	)
	if err != nil {
		return err
	}

	r.FactorCounter, err = r.meter.Int64Counter(
		"risk.detection.factors_total",
		metric.WithDescription("Risk factors by category and severity"),
	)
	if err != nil {
		return err
	}

	r.AnalyzerFailures, err = r.meter.Int64Counter(
		"risk.detection.analyzer_failures_total",
		metric.WithDescription("Analyzer runs that failed or panicked"),
	)
	if err != nil {
		return err
	}

	r.DeadlineCutoffs, err = r.meter.Int64Counter(
		"risk.detection.deadline_cutoffs_total",
		metric.WithDescription("Evaluations cut short by their deadline"),
	)
	return err
}

// initCollaboratorMetrics initializes intel and audit metrics
func (r *Registry) initCollaboratorMetrics() error {
	var err error

	r.IntelLookupCounter, err = r.meter.Int64Counter(
		"risk.intel.lookups_total",
		metric.WithDescription("Network intel lookups by outcome"),
	)
	if err != nil {
		return err
	}

	r.VerdictRecordFailure, err = r.meter.Int64Counter(
		"risk.audit.record_failures_total",
		metric.WithDescription("Verdicts that could not be written to the audit trail"),
	)
	return err
}

// initStoreMetrics initializes store size gauges
func (r *Registry) initStoreMetrics() error {
	var err error

	r.ProfileCount, err = r.meter.Int64ObservableGauge(
		"risk.store.profiles",
		metric.WithDescription("Number of stored behavioral profiles"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.profiles)
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.DeviceCount, err = r.meter.Int64ObservableGauge(
		"risk.store.devices",
		metric.WithDescription("Number of users with a stored device fingerprint"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.devices)
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.BlacklistCount, err = r.meter.Int64ObservableGauge(
		"risk.store.blacklisted_ips",
		metric.WithDescription("Number of blacklisted IP addresses"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.blacklist)
			return nil
		}),
	)
	return err
}

// Helper methods for updating observable metric values

// SetStoreSizes sets the values reported by the store gauges
func (r *Registry) SetStoreSizes(profiles, devices, blacklist int64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles = profiles
	r.devices = devices
	r.blacklist = blacklist
}

// Helper methods for recording metrics with common attribute patterns

// RecordDetection records the outcome of one evaluation
func (r *Registry) RecordDetection(ctx context.Context, durationMS float64, actionType, required, status string, overall float64) {
	if r == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("action_type", actionType),
		attribute.String("action_required", required),
		attribute.String("status", status),
	}

	r.DetectionDuration.Record(ctx, durationMS, metric.WithAttributes(attribute.String("action_type", actionType)))
	r.VerdictCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	r.OverallRisk.Record(ctx, overall, metric.WithAttributes(attribute.String("action_type", actionType)))
}

// RecordFactor counts a produced risk factor
func (r *Registry) RecordFactor(ctx context.Context, category, severity string) {
	if r == nil {
		return
	}
	r.FactorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("severity", severity),
	))
}

// RecordAnalyzerFailure counts an analyzer that errored or panicked
func (r *Registry) RecordAnalyzerFailure(ctx context.Context, analyzer string, panicked bool) {
	if r == nil {
		return
	}
	r.AnalyzerFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("analyzer", analyzer),
		attribute.Bool("panic", panicked),
	))
}

// RecordDeadlineCutoff counts an evaluation that returned a partial verdict
func (r *Registry) RecordDeadlineCutoff(ctx context.Context, completed, scheduled int) {
	if r == nil {
		return
	}
	r.DeadlineCutoffs.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("completed", completed),
		attribute.Int("scheduled", scheduled),
	))
}

// RecordIntelLookup counts a network intel lookup by outcome
func (r *Registry) RecordIntelLookup(ctx context.Context, outcome string) {
	if r == nil {
		return
	}
	r.IntelLookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordVerdictRecordFailure counts an audit write that failed
func (r *Registry) RecordVerdictRecordFailure(ctx context.Context) {
	if r == nil {
		return
	}
	r.VerdictRecordFailure.Add(ctx, 1)
}
