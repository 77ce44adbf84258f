package metrics

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds the service's domain metrics.
type Registry struct {
	meter metric.Meter

	// Assessment metrics
	AssessmentDuration metric.Float64Histogram
	AssessmentCounter  metric.Int64Counter
	FlagCounter        metric.Int64Counter
	ActiveEntities     metric.Int64ObservableGauge

	// Compliance metrics
	ComplianceCheckDuration metric.Float64Histogram
	ManualReviewCounter     metric.Int64Counter

	// API metrics
	APIRequestDuration metric.Float64Histogram
	APIRequestCounter  metric.Int64Counter
	ValidationFailures metric.Int64Counter

	mu               sync.RWMutex
	activeEntitiesFn func() int64
}

// NewRegistry creates the registry against the global meter provider.
func NewRegistry(meterName string) (*Registry, error) {
	r := &Registry{meter: otel.Meter(meterName)}

	if err := r.initAssessmentMetrics(); err != nil {
		return nil, err
	}
	if err := r.initComplianceMetrics(); err != nil {
		return nil, err
	}
	if err := r.initAPIMetrics(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) initAssessmentMetrics() error {
	var err error

	r.AssessmentDuration, err = r.meter.Float64Histogram(
		"risk.assessment.duration",
		metric.WithDescription("End-to-end risk assessment duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 25, 50, 100, 250),
	)
	if err != nil {
		return err
	}

	r.AssessmentCounter, err = r.meter.Int64Counter(
		"risk.assessment.total",
		metric.WithDescription("Total risk assessments by recommended action"),
	)
	if err != nil {
		return err
	}

	r.FlagCounter, err = r.meter.Int64Counter(
		"risk.flags.total",
		metric.WithDescription("Total risk flags raised, by flag code"),
	)
	if err != nil {
		return err
	}

	r.ActiveEntities, err = r.meter.Int64ObservableGauge(
		"risk.velocity.active_entities",
		metric.WithDescription("Entities currently holding buffered velocity events"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			fn := r.activeEntitiesFn
			r.mu.RUnlock()
			if fn != nil {
				o.Observe(fn())
			}
			return nil
		}),
	)
	return err
}

func (r *Registry) initComplianceMetrics() error {
	var err error

	r.ComplianceCheckDuration, err = r.meter.Float64Histogram(
		"risk.compliance.check_duration",
		metric.WithDescription("Compliance evaluation duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 50, 100),
	)
	if err != nil {
		return err
	}

	r.ManualReviewCounter, err = r.meter.Int64Counter(
		"risk.compliance.manual_review_total",
		metric.WithDescription("Assessments escalated to manual review"),
	)
	return err
}

func (r *Registry) initAPIMetrics() error {
	var err error

	r.APIRequestDuration, err = r.meter.Float64Histogram(
		"risk.api.request_duration",
		metric.WithDescription("API request duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	if err != nil {
		return err
	}

	r.APIRequestCounter, err = r.meter.Int64Counter(
		"risk.api.request_total",
		metric.WithDescription("Total API requests by method, path, and status"),
	)
	if err != nil {
		return err
	}

	r.ValidationFailures, err = r.meter.Int64Counter(
		"risk.api.validation_failures_total",
		metric.WithDescription("Requests rejected by input validation"),
	)
	return err
}

// ObserveActiveEntities registers the source for the active-entity gauge.
func (r *Registry) ObserveActiveEntities(fn func() int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeEntitiesFn = fn
}

// RecordAssessment records one completed assessment.
func (r *Registry) RecordAssessment(ctx context.Context, durationMS float64, action string, riskLevel string, flags []string) {
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("risk_level", riskLevel),
	)
	r.AssessmentDuration.Record(ctx, durationMS, attrs)
	r.AssessmentCounter.Add(ctx, 1, attrs)
	for _, f := range flags {
		r.FlagCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("flag", f)))
	}
}

// RecordComplianceCheck records one standalone compliance evaluation.
func (r *Registry) RecordComplianceCheck(ctx context.Context, durationMS float64, manualReview bool) {
	r.ComplianceCheckDuration.Record(ctx, durationMS,
		metric.WithAttributes(attribute.Bool("manual_review", manualReview)))
	if manualReview {
		r.ManualReviewCounter.Add(ctx, 1)
	}
}

// RecordAPIRequest records one handled HTTP request.
func (r *Registry) RecordAPIRequest(ctx context.Context, durationMS float64, method, path string, statusCode int) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", strconv.Itoa(statusCode)),
	)
	r.APIRequestDuration.Record(ctx, durationMS, attrs)
	r.APIRequestCounter.Add(ctx, 1, attrs)
}

// RecordValidationFailure records one request rejected at the boundary.
func (r *Registry) RecordValidationFailure(ctx context.Context, code string) {
	r.ValidationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}
