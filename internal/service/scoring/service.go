package scoring

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/errors"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/risk"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/transaction"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/feedback"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/signals"
)

// Behavioral scoring constants
const (
	// quietScore and quietConfidence back the behavioral factor emitted
	// when nothing in a transaction's behavior stood out. Absence of
	// anomalies is weak evidence of normality, not proof.
	quietScore      = 0.25
	quietConfidence = 0.40

	// Burst scoring: at burstCount transactions inside the burst window
	// the velocity factor starts at burstBaseScore and climbs by
	// burstStepScore per extra transaction up to burstMaxScore.
	burstBaseScore     = 0.6
	burstStepScore     = 0.05
	burstMaxScore      = 0.8
	burstConfidence    = 0.8
	defaultBurstCount  = 3
	defaultBurstWindow = 10 * time.Minute
	defaultConcurrency = 8
	defaultPruneEvery  = 5 * time.Minute
	offHoursPeak       = 3.5
	offHoursSpread     = 5.5
	offHoursFloor      = 0.05
	offHoursConfidence = 0.5
)

// Config tunes the evaluation pipeline
type Config struct {
	// Weights are the relative factor weights; empty means defaults
	Weights map[string]float64
	// Thresholds are the score boundaries between risk levels
	Thresholds risk.LevelThresholds
	// BreachScore is the factor score recorded as a threshold breach
	BreachScore float64
	// BurstWindow and BurstCount define a transaction burst
	BurstWindow time.Duration
	BurstCount  int
	// SignalSources names the sources consulted per evaluation; empty
	// means every registered source
	SignalSources []string
	// MaxConcurrent bounds batch evaluation parallelism
	MaxConcurrent int
	// PruneInterval is how often inactive velocity windows are dropped
	PruneInterval time.Duration
}

// DefaultConfig returns production evaluation settings
func DefaultConfig() Config {
	return Config{
		Weights:       DefaultWeights(),
		Thresholds:    risk.DefaultLevelThresholds(),
		BreachScore:   DefaultBreachScore,
		BurstWindow:   defaultBurstWindow,
		BurstCount:    defaultBurstCount,
		MaxConcurrent: defaultConcurrency,
		PruneInterval: defaultPruneEvery,
	}
}

type service struct {
	cfg    Config
	logger *zap.Logger

	tracker   VelocityTracker
	baselines BaselineProvider
	detector  AnomalyDetector
	gateway   SignalFetcher
	learner   OutcomeLearner
	store     DecisionStore

	mu         sync.RWMutex
	aggregator *Aggregator

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewService wires the evaluation pipeline. Collaborators may be nil;
// a nil collaborator disables its stage rather than failing evaluation.
// A nil learner gets a default one so outcome recording always works.
func NewService(
	cfg Config,
	tracker VelocityTracker,
	baselines BaselineProvider,
	detector AnomalyDetector,
	gateway SignalFetcher,
	learner OutcomeLearner,
	store DecisionStore,
	logger *zap.Logger,
) (Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	def := DefaultConfig()
	if cfg.Thresholds == (risk.LevelThresholds{}) {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.BreachScore <= 0 {
		cfg.BreachScore = def.BreachScore
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = def.BurstWindow
	}
	if cfg.BurstCount <= 0 {
		cfg.BurstCount = def.BurstCount
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}

	agg, err := NewAggregator(cfg.Weights, cfg.Thresholds, cfg.BreachScore)
	if err != nil {
		return nil, err
	}

	if learner == nil {
		learner = feedback.New(feedback.DefaultConfig(), logger)
	}

	return &service{
		cfg:        cfg,
		logger:     logger,
		tracker:    tracker,
		baselines:  baselines,
		detector:   detector,
		gateway:    gateway,
		learner:    learner,
		store:      store,
		aggregator: agg,
		done:       make(chan struct{}),
	}, nil
}

// Evaluate runs the full pipeline for one transaction: validation,
// velocity recording, baseline lookup, anomaly detection, signal
// fan-out, aggregation. Any stage may degrade, none may prevent a
// verdict.
func (s *service) Evaluate(ctx context.Context, tx *transaction.Transaction) (*risk.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	agg := s.currentAggregator()

	if tx == nil {
		return agg.ValidationVerdict(uuid.Nil, []string{"transaction is required"}), nil
	}

	if violations := tx.Violations(); len(violations) > 0 {
		verdict := agg.ValidationVerdict(tx.ID, violations)
		s.saveVerdict(ctx, verdict)
		s.logger.Info("transaction declined on validation",
			zap.String("transaction_id", tx.ID.String()),
			zap.Strings("violations", violations))
		return verdict, nil
	}

	// Record before reading stats so the current transaction counts
	// toward its own burst and re-evaluation stays idempotent.
	if s.tracker != nil {
		s.tracker.Record(tx)
	}

	var bl *risk.UserBaseline
	if s.baselines != nil {
		var err error
		bl, err = s.baselines.Get(ctx, tx.UserID)
		if err != nil {
			s.logger.Warn("baseline unavailable, scoring without history",
				zap.String("user_id", tx.UserID.String()),
				zap.Error(err))
			bl = nil
		}
	}

	factors := s.behavioralFactors(tx, bl)
	if s.gateway != nil {
		factors = append(factors, s.signalFactors(ctx, tx)...)
	}

	verdict := agg.Aggregate(tx.ID, factors)
	s.saveVerdict(ctx, verdict)

	s.logger.Info("transaction evaluated",
		zap.String("transaction_id", tx.ID.String()),
		zap.Float64("score", verdict.OverallScore),
		zap.String("level", verdict.Level.String()),
		zap.String("decision", string(verdict.Decision)),
		zap.Int("factors", len(verdict.Factors)),
		zap.Duration("elapsed", time.Since(start)))

	return verdict, nil
}

// EvaluateBatch scores transactions concurrently with bounded
// parallelism, preserving input order. On cancellation the unfinished
// slots stay nil and the context error is returned alongside the
// partial results.
func (s *service) EvaluateBatch(ctx context.Context, txs []*transaction.Transaction) ([]*risk.Verdict, error) {
	if len(txs) == 0 {
		return nil, nil
	}

	verdicts := make([]*risk.Verdict, len(txs))
	sem := make(chan struct{}, s.cfg.MaxConcurrent)

	var wg sync.WaitGroup
	for i, tx := range txs {
		wg.Add(1)
		go func(slot int, tx *transaction.Transaction) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			v, err := s.Evaluate(ctx, tx)
			if err != nil {
				return
			}
			verdicts[slot] = v
		}(i, tx)
	}
	wg.Wait()

	return verdicts, ctx.Err()
}

// RecordOutcome persists a labeled ground truth and folds it into the
// learner. Missing decision or pattern attribution is backfilled from
// the stored verdict.
func (s *service) RecordOutcome(ctx context.Context, outcome *risk.Outcome) error {
	if outcome == nil {
		return errors.NewValidationError("OUTCOME_REQUIRED", "outcome must not be nil")
	}
	if !outcome.Label.Valid() {
		return errors.NewValidationError("OUTCOME_LABEL_INVALID",
			fmt.Sprintf("label %q is not a known ground truth", outcome.Label))
	}

	if s.store != nil && (outcome.Decision == "" || len(outcome.PatternIDs) == 0) {
		verdict, err := s.store.GetVerdict(ctx, outcome.TransactionID)
		if err == nil {
			if outcome.Decision == "" {
				outcome.Decision = verdict.Decision
			}
			if len(outcome.PatternIDs) == 0 {
				outcome.PatternIDs = verdict.PatternIDs(s.currentAggregator().BreachScore())
			}
		}
	}
	if outcome.Decision == "" {
		return errors.NewValidationError("OUTCOME_DECISION_UNKNOWN",
			"no stored verdict for transaction and no decision provided")
	}
	if outcome.ObservedAt.IsZero() {
		outcome.ObservedAt = time.Now()
	}

	if s.store != nil {
		if err := s.store.SaveOutcome(ctx, outcome); err != nil {
			return errors.NewInternalError("failed to save outcome").WithCause(err)
		}
	}

	return s.learner.Incorporate(outcome)
}

// PatternPerformance reports per-pattern detection quality
func (s *service) PatternPerformance() []feedback.PatternPerformance {
	return s.learner.PatternPerformance()
}

// Recommendations lists proposed threshold adjustments
func (s *service) Recommendations() []feedback.Recommendation {
	return s.learner.Recommendations()
}

// UpdateThresholds swaps the level boundaries after validating them.
// Weights and breach score carry over unchanged.
func (s *service) UpdateThresholds(t risk.LevelThresholds) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, err := NewAggregator(s.cfg.Weights, t, s.cfg.BreachScore)
	if err != nil {
		return err
	}
	s.aggregator = agg
	s.cfg.Thresholds = t

	s.logger.Info("risk level thresholds updated",
		zap.Float64("low", t.Low),
		zap.Float64("medium", t.Medium),
		zap.Float64("high", t.High),
		zap.Float64("critical", t.Critical))
	return nil
}

// Thresholds returns the level boundaries currently in effect
func (s *service) Thresholds() risk.LevelThresholds {
	return s.currentAggregator().Thresholds()
}

// CacheStats reports signal response cache traffic
func (s *service) CacheStats() signals.CacheStats {
	if s.gateway == nil {
		return signals.CacheStats{}
	}
	return s.gateway.CacheStats()
}

// BreakerStats snapshots every signal source breaker
func (s *service) BreakerStats() []signals.SourceBreaker {
	if s.gateway == nil {
		return nil
	}
	return s.gateway.BreakerStats()
}

// Start launches the velocity prune loop
func (s *service) Start() {
	if s.tracker == nil || s.cfg.PruneInterval <= 0 {
		return
	}
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.pruneLoop()
	})
}

// Stop halts background maintenance and waits for it to exit
func (s *service) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *service) pruneLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.tracker.PruneInactive(); n > 0 {
				s.logger.Debug("pruned inactive velocity windows", zap.Int("windows", n))
			}
		case <-s.done:
			return
		}
	}
}

// behavioralFactors assembles the local factors: anomaly findings, the
// burst factor, the off-hours curve, and the quiet-profile fallback
// when nothing else fired.
func (s *service) behavioralFactors(tx *transaction.Transaction, bl *risk.UserBaseline) []risk.Factor {
	var factors []risk.Factor
	sawTemporal := false

	if s.detector != nil {
		for _, a := range s.detector.Evaluate(tx, bl) {
			if a.Kind == risk.AnomalyTemporal {
				sawTemporal = true
			}
			evidence := append([]string(nil), a.Evidence...)
			if a.Basis != "" {
				evidence = append(evidence, a.Basis)
			}
			factors = append(factors, risk.Factor{
				Name:       factorName(a.Kind),
				Score:      a.Score,
				Confidence: a.Confidence,
				Evidence:   evidence,
			})
		}
	}

	if s.tracker != nil {
		stats := s.tracker.StatsSince(tx.UserID, s.cfg.BurstWindow)
		if stats.Count >= s.cfg.BurstCount {
			factors = append(factors, s.burstFactor(stats))
		}
	}

	if !sawTemporal {
		if f, ok := offHoursFactor(tx.Hour()); ok {
			factors = append(factors, f)
		}
	}

	if len(factors) == 0 {
		factors = append(factors, risk.Factor{
			Name:       risk.FactorBehavioral,
			Score:      quietScore,
			Confidence: quietConfidence,
			Evidence:   []string{"no behavioral anomalies detected"},
		})
	}

	return factors
}

func (s *service) burstFactor(stats risk.VelocityStats) risk.Factor {
	over := stats.Count - s.cfg.BurstCount
	score := math.Min(burstMaxScore, burstBaseScore+burstStepScore*float64(over))

	return risk.Factor{
		Name:       risk.FactorVelocity,
		Score:      score,
		Confidence: burstConfidence,
		Evidence: []string{
			fmt.Sprintf("%d transactions in the last %s", stats.Count, stats.Window),
		},
	}
}

func (s *service) signalFactors(ctx context.Context, tx *transaction.Transaction) []risk.Factor {
	names := s.cfg.SignalSources
	if len(names) == 0 {
		names = s.gateway.Sources()
	}
	if len(names) == 0 {
		return nil
	}

	req := signals.RequestFromTransaction(tx)
	results := s.gateway.FetchAll(ctx, names, req)

	var factors []risk.Factor
	for _, r := range results {
		if !r.Success {
			s.logger.Debug("signal source unavailable",
				zap.String("source", r.Source),
				zap.String("reason", r.Reason))
			continue
		}
		factors = append(factors, risk.Factor{
			Name:       string(r.Kind),
			Score:      r.Payload.Score,
			Confidence: r.Payload.Confidence,
			Evidence:   r.Payload.Evidence,
		})
	}
	return factors
}

func (s *service) saveVerdict(ctx context.Context, v *risk.Verdict) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveVerdict(ctx, v); err != nil {
		s.logger.Warn("failed to persist verdict",
			zap.String("transaction_id", v.TransactionID.String()),
			zap.Error(err))
	}
}

func (s *service) currentAggregator() *Aggregator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregator
}

func factorName(kind risk.AnomalyKind) string {
	// location findings score as the geographic factor
	if kind == risk.AnomalyLocation {
		return risk.FactorGeographic
	}
	return string(kind)
}

// offHoursFactor grades how deep into the overnight lull an hour falls.
// It is a mild graded signal, distinct from the late-night anomaly the
// detector raises inside its configured window.
func offHoursFactor(hour int) (risk.Factor, bool) {
	d := math.Abs(float64(hour) - offHoursPeak)
	if wrapped := 24 - d; wrapped < d {
		d = wrapped
	}
	score := 1 - d/offHoursSpread
	if score <= offHoursFloor {
		return risk.Factor{}, false
	}

	return risk.Factor{
		Name:       risk.FactorTemporal,
		Score:      score,
		Confidence: offHoursConfidence,
		Evidence:   []string{fmt.Sprintf("transaction at hour %02d falls in the overnight lull", hour)},
	}, true
}
