package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds every instrument the engine emits. Counters and
// histograms are recorded at call sites through the Record helpers;
// gauge values are pushed into atomics and read on collection.
type Registry struct {
	meter metric.Meter

	// evaluation pipeline
	EvaluationDuration    metric.Float64Histogram
	EvaluationsPerSecond  metric.Float64ObservableGauge
	OverallScore          metric.Float64Histogram
	DecisionCounter       metric.Int64Counter
	ValidationRejectTotal metric.Int64Counter

	// signal gateway
	SignalFetchDuration  metric.Float64Histogram
	SignalSuccessCounter metric.Int64Counter
	SignalFailureCounter metric.Int64Counter
	SignalCacheHitRatio  metric.Float64ObservableGauge
	OpenBreakers         metric.Int64ObservableGauge

	// feedback loop
	OutcomeCounter         metric.Int64Counter
	TrackedPatterns        metric.Int64ObservableGauge
	PendingRecommendations metric.Int64ObservableGauge

	// process
	VelocityUsers      metric.Int64ObservableGauge
	StoredVerdicts     metric.Int64ObservableGauge
	APIRequestDuration metric.Float64Histogram
	APIRequestCounter  metric.Int64Counter

	evaluations            atomic.Int64
	cacheHits              atomic.Int64
	cacheMisses            atomic.Int64
	openBreakers           atomic.Int64
	trackedPatterns        atomic.Int64
	pendingRecommendations atomic.Int64
	velocityUsers          atomic.Int64
	storedVerdicts         atomic.Int64

	// throughput snapshot, touched only by the gauge callback
	rateMu    sync.Mutex
	lastCount int64
	lastAt    time.Time
}

// NewRegistry creates every engine instrument on the named meter.
func NewRegistry(meterName string) (*Registry, error) {
	r := &Registry{
		meter:  otel.Meter(meterName),
		lastAt: time.Now(),
	}
	b := &instrumentBuilder{meter: r.meter}

	r.EvaluationDuration = b.histogram("risk.evaluation.duration",
		"End-to-end evaluation latency in milliseconds", "ms",
		0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000)
	r.EvaluationsPerSecond = b.observedFloat("risk.evaluation.throughput_per_second",
		"Current evaluation throughput per second", r.observeThroughput)
	r.OverallScore = b.histogram("risk.evaluation.overall_score",
		"Distribution of aggregated risk scores", "",
		0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9)
	r.DecisionCounter = b.counter("risk.evaluation.decision_total",
		"Total verdicts by decision and level")
	r.ValidationRejectTotal = b.counter("risk.evaluation.validation_reject_total",
		"Total transactions declined on validation failure")

	r.SignalFetchDuration = b.histogram("risk.signal.fetch_duration",
		"Signal source fetch latency in milliseconds", "ms",
		1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500)
	r.SignalSuccessCounter = b.counter("risk.signal.success_total",
		"Total successful signal fetches")
	r.SignalFailureCounter = b.counter("risk.signal.failure_total",
		"Total failed signal fetches by reason")
	r.SignalCacheHitRatio = b.observedFloat("risk.signal.cache_hit_ratio",
		"Fraction of signal lookups served from cache", r.observeCacheRatio)
	r.OpenBreakers = b.observedInt("risk.signal.open_breakers",
		"Number of signal sources with an open circuit breaker", &r.openBreakers)

	r.OutcomeCounter = b.counter("risk.feedback.outcome_total",
		"Total labeled outcomes by label and decision")
	r.TrackedPatterns = b.observedInt("risk.feedback.tracked_patterns",
		"Patterns with at least one labeled outcome", &r.trackedPatterns)
	r.PendingRecommendations = b.observedInt("risk.feedback.pending_recommendations",
		"Threshold recommendations awaiting operator review", &r.pendingRecommendations)

	r.VelocityUsers = b.observedInt("risk.system.velocity_users",
		"Users with an active velocity window", &r.velocityUsers)
	r.StoredVerdicts = b.observedInt("risk.system.stored_verdicts",
		"Verdicts currently held in the decision store", &r.storedVerdicts)
	r.APIRequestDuration = b.histogram("risk.api.request_duration",
		"API request duration in milliseconds", "ms",
		1, 5, 10, 50, 100, 500, 1000, 5000)
	r.APIRequestCounter = b.counter("risk.api.request_total",
		"Total number of API requests")

	if b.err != nil {
		return nil, b.err
	}
	return r, nil
}

// instrumentBuilder keeps the first creation error so NewRegistry reads
// as a flat list of instruments instead of an error ladder.
type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) histogram(name, desc, unit string, bounds ...float64) metric.Float64Histogram {
	if b.err != nil {
		return nil
	}
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc)}
	if unit != "" {
		opts = append(opts, metric.WithUnit(unit))
	}
	if len(bounds) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(bounds...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	if err != nil {
		b.err = err
	}
	return h
}

func (b *instrumentBuilder) counter(name, desc string) metric.Int64Counter {
	if b.err != nil {
		return nil
	}
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		b.err = err
	}
	return c
}

func (b *instrumentBuilder) observedInt(name, desc string, src *atomic.Int64) metric.Int64ObservableGauge {
	if b.err != nil {
		return nil
	}
	g, err := b.meter.Int64ObservableGauge(name,
		metric.WithDescription(desc),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(src.Load())
			return nil
		}),
	)
	if err != nil {
		b.err = err
	}
	return g
}

func (b *instrumentBuilder) observedFloat(name, desc string, cb metric.Float64Callback) metric.Float64ObservableGauge {
	if b.err != nil {
		return nil
	}
	g, err := b.meter.Float64ObservableGauge(name,
		metric.WithDescription(desc),
		metric.WithFloat64Callback(cb),
	)
	if err != nil {
		b.err = err
	}
	return g
}

func (r *Registry) observeThroughput(_ context.Context, o metric.Float64Observer) error {
	r.rateMu.Lock()
	defer r.rateMu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastAt).Seconds()
	if elapsed <= 0 {
		return nil
	}

	count := r.evaluations.Load()
	o.Observe(float64(count-r.lastCount) / elapsed)
	r.lastCount = count
	r.lastAt = now
	return nil
}

func (r *Registry) observeCacheRatio(_ context.Context, o metric.Float64Observer) error {
	hits, misses := r.cacheHits.Load(), r.cacheMisses.Load()
	if total := hits + misses; total > 0 {
		o.Observe(float64(hits) / float64(total))
	}
	return nil
}

// SetCacheCounts replaces the cumulative cache hit and miss counts
func (r *Registry) SetCacheCounts(hits, misses int64) {
	r.cacheHits.Store(hits)
	r.cacheMisses.Store(misses)
}

func (r *Registry) SetOpenBreakers(n int64)           { r.openBreakers.Store(n) }
func (r *Registry) SetTrackedPatterns(n int64)        { r.trackedPatterns.Store(n) }
func (r *Registry) SetPendingRecommendations(n int64) { r.pendingRecommendations.Store(n) }
func (r *Registry) SetVelocityUsers(n int64)          { r.velocityUsers.Store(n) }
func (r *Registry) SetStoredVerdicts(n int64)         { r.storedVerdicts.Store(n) }

// RecordEvaluation records one completed evaluation with its latency
func (r *Registry) RecordEvaluation(ctx context.Context, durationMS, score float64, level, decision string) {
	r.EvaluationDuration.Record(ctx, durationMS, metric.WithAttributes(
		attribute.String("level", level),
		attribute.String("decision", decision),
	))

	r.RecordDecision(ctx, score, level, decision)
}

// RecordDecision records the verdict of one evaluation when no latency
// sample applies, as in batch scoring
func (r *Registry) RecordDecision(ctx context.Context, score float64, level, decision string) {
	attrs := metric.WithAttributes(
		attribute.String("level", level),
		attribute.String("decision", decision),
	)

	r.OverallScore.Record(ctx, score, attrs)
	r.DecisionCounter.Add(ctx, 1, attrs)
	r.evaluations.Add(1)
}

// RecordValidationReject marks an evaluation that declined on validation;
// the decision itself is still recorded separately
func (r *Registry) RecordValidationReject(ctx context.Context) {
	r.ValidationRejectTotal.Add(ctx, 1)
}

// RecordSignalFetch records one signal source fetch
func (r *Registry) RecordSignalFetch(ctx context.Context, durationMS float64, source string, success bool, reason string) {
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("success", success),
	)
	r.SignalFetchDuration.Record(ctx, durationMS, attrs)

	if success {
		r.SignalSuccessCounter.Add(ctx, 1, attrs)
		return
	}
	r.SignalFailureCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	))
}

// RecordOutcome records one labeled outcome
func (r *Registry) RecordOutcome(ctx context.Context, label, decision string) {
	r.OutcomeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("label", label),
		attribute.String("decision", decision),
	))
}

// RecordAPIRequest records one served HTTP request
func (r *Registry) RecordAPIRequest(ctx context.Context, durationMS float64, method, path string, statusCode int) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status_code", statusCode),
	)

	r.APIRequestDuration.Record(ctx, durationMS, attrs)
	r.APIRequestCounter.Add(ctx, 1, attrs)
}
