package scoring

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/errors"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/risk"
)

const (
	// DefaultWeight applies to factors with no configured weight
	DefaultWeight = 0.10

	// MinConfidence is the verdict confidence floor. Even an evaluation
	// with no usable evidence asserts this much.
	MinConfidence = 0.3

	// DefaultBreachScore is the factor score treated as a threshold breach
	DefaultBreachScore = 0.8

	// validationConfidence backs verdicts for malformed transactions;
	// rejecting bad input is near-certain.
	validationConfidence = 0.98
)

// DefaultWeights returns the standard relative factor weights. Weights
// need not sum to one; aggregation renormalizes over present factors.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		risk.FactorAmount:     0.25,
		risk.FactorMerchant:   0.20,
		risk.FactorGeographic: 0.20,
		risk.FactorTemporal:   0.15,
		risk.FactorVelocity:   0.10,
		risk.FactorBehavioral: 0.20,
		"geolocation":         0.20,
		"identity":            0.15,
		"fraud_database":      0.15,
	}
}

// Aggregator folds weighted factors into a single verdict. It is pure
// and safe for concurrent use; threshold changes swap in a new instance.
type Aggregator struct {
	weights     map[string]float64
	thresholds  risk.LevelThresholds
	breachScore float64
}

// NewAggregator validates and captures the scoring parameters
func NewAggregator(weights map[string]float64, thresholds risk.LevelThresholds, breachScore float64) (*Aggregator, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if breachScore <= 0 || breachScore > 1 {
		return nil, errors.NewConfigurationError("breach_score",
			fmt.Sprintf("must be in (0, 1], got %v", breachScore))
	}
	if len(weights) == 0 {
		weights = DefaultWeights()
	}
	owned := make(map[string]float64, len(weights))
	for name, w := range weights {
		if w <= 0 {
			return nil, errors.NewConfigurationError("weights",
				fmt.Sprintf("weight for %q must be positive, got %v", name, w))
		}
		owned[name] = w
	}

	return &Aggregator{
		weights:     owned,
		thresholds:  thresholds,
		breachScore: breachScore,
	}, nil
}

// WeightFor returns the configured weight for a factor name
func (a *Aggregator) WeightFor(name string) float64 {
	if w, ok := a.weights[name]; ok {
		return w
	}
	return DefaultWeight
}

// Thresholds returns the level boundaries in effect
func (a *Aggregator) Thresholds() risk.LevelThresholds {
	return a.thresholds
}

// BreachScore returns the factor score treated as a threshold breach
func (a *Aggregator) BreachScore() float64 {
	return a.breachScore
}

// Aggregate combines factors into a verdict. The overall score is the
// confidence-weighted mean of factor scores, renormalized over the
// factors actually present: an absent factor redistributes its weight
// instead of dragging the score toward zero. Verdict confidence is the
// weight-normalized mean of factor confidences.
func (a *Aggregator) Aggregate(transactionID uuid.UUID, factors []risk.Factor) *risk.Verdict {
	v := &risk.Verdict{TransactionID: transactionID}

	if len(factors) == 0 {
		v.OverallScore = 0
		v.Confidence = MinConfidence
		v.Level = risk.LevelFromScore(0, a.thresholds)
		v.Decision = risk.DecisionForLevel(v.Level)
		return v
	}

	owned := make([]risk.Factor, len(factors))
	copy(owned, factors)

	var scoreSum, confWeight, weightSum float64
	for i := range owned {
		f := &owned[i]
		f.Score = clampUnit(f.Score)
		f.Confidence = clampUnit(f.Confidence)
		if f.Weight <= 0 {
			f.Weight = a.WeightFor(f.Name)
		}
		scoreSum += f.Score * f.Confidence * f.Weight
		confWeight += f.Confidence * f.Weight
		weightSum += f.Weight
	}

	var overall float64
	if confWeight > 0 {
		overall = scoreSum / confWeight
	}
	var confidence float64
	if weightSum > 0 {
		confidence = confWeight / weightSum
	}
	if confidence < MinConfidence {
		confidence = MinConfidence
	}

	v.OverallScore = clampUnit(overall)
	v.Confidence = confidence
	v.Level = risk.LevelFromScore(v.OverallScore, a.thresholds)
	v.Decision = risk.DecisionForLevel(v.Level)
	v.Factors = owned

	for _, f := range owned {
		if f.Score >= a.breachScore {
			v.ThresholdBreaches = append(v.ThresholdBreaches, risk.FormatBreach(f.Name, f.Score))
		}
	}

	return v
}

// ValidationVerdict builds the immediate decline for a transaction that
// failed hard validation. Downstream scoring never runs for these.
func (a *Aggregator) ValidationVerdict(transactionID uuid.UUID, violations []string) *risk.Verdict {
	return a.Aggregate(transactionID, []risk.Factor{{
		Name:       risk.FactorValidation,
		Score:      1.0,
		Confidence: validationConfidence,
		Evidence:   violations,
	}})
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
