package scoring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/risk"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/transaction"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/feedback"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/signals"
)

// Service is the evaluation surface consumed by the transport layer
type Service interface {
	// Evaluate scores one transaction and always returns a verdict.
	// The error is reserved for context cancellation.
	Evaluate(ctx context.Context, tx *transaction.Transaction) (*risk.Verdict, error)

	// EvaluateBatch scores transactions concurrently, preserving input
	// order. Slots left nil on cancellation match the returned error.
	EvaluateBatch(ctx context.Context, txs []*transaction.Transaction) ([]*risk.Verdict, error)

	// RecordOutcome folds a labeled ground truth back into the learner
	RecordOutcome(ctx context.Context, outcome *risk.Outcome) error

	// PatternPerformance reports per-pattern detection quality
	PatternPerformance() []feedback.PatternPerformance

	// Recommendations lists proposed threshold adjustments. They are
	// advisory; applying one is an operator action.
	Recommendations() []feedback.Recommendation

	// UpdateThresholds swaps the level boundaries after validating them
	UpdateThresholds(t risk.LevelThresholds) error

	// Thresholds returns the level boundaries currently in effect
	Thresholds() risk.LevelThresholds

	// CacheStats reports signal response cache traffic
	CacheStats() signals.CacheStats

	// BreakerStats snapshots every signal source breaker
	BreakerStats() []signals.SourceBreaker

	// Start launches background maintenance; Stop halts it and waits
	Start()
	Stop()
}

// VelocityTracker is the sliding-window view the evaluator needs
type VelocityTracker interface {
	Record(tx *transaction.Transaction)
	StatsSince(userID uuid.UUID, d time.Duration) risk.VelocityStats
	PruneInactive() int
}

// BaselineProvider resolves a user's historical spending profile
type BaselineProvider interface {
	Get(ctx context.Context, userID uuid.UUID) (*risk.UserBaseline, error)
}

// AnomalyDetector runs the behavioral checks against one transaction
type AnomalyDetector interface {
	Evaluate(tx *transaction.Transaction, bl *risk.UserBaseline) []risk.AnomalyScore
}

// SignalFetcher resolves external signals with the gateway's protections
type SignalFetcher interface {
	Sources() []string
	FetchAll(ctx context.Context, names []string, req signals.Request) []signals.Result
	CacheStats() signals.CacheStats
	BreakerStats() []signals.SourceBreaker
}

// OutcomeLearner accumulates labeled outcomes into pattern quality
type OutcomeLearner interface {
	Incorporate(outcome *risk.Outcome) error
	PatternPerformance() []feedback.PatternPerformance
	Recommendations() []feedback.Recommendation
}

// DecisionStore persists verdicts and their eventual ground truth
type DecisionStore interface {
	SaveVerdict(ctx context.Context, v *risk.Verdict) error
	GetVerdict(ctx context.Context, transactionID uuid.UUID) (*risk.Verdict, error)
	SaveOutcome(ctx context.Context, o *risk.Outcome) error
}
