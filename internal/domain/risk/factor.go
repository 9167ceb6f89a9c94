package risk

import (
	"fmt"

	"github.com/google/uuid"
)

// AnomalyKind identifies which behavioral detector produced an anomaly
type AnomalyKind string

const (
	AnomalyAmount   AnomalyKind = "amount"
	AnomalyTemporal AnomalyKind = "temporal"
	AnomalyMerchant AnomalyKind = "merchant"
	AnomalyLocation AnomalyKind = "location"
	AnomalyVelocity AnomalyKind = "velocity"
)

// AnomalyScore is one detector's finding for a transaction. Absence of a
// kind from a detection result means no anomaly, not a zero score.
type AnomalyScore struct {
	Kind       AnomalyKind `json:"kind"`
	Score      float64     `json:"score"`
	Confidence float64     `json:"confidence"`
	Evidence   []string    `json:"evidence,omitempty"`
	Basis      string      `json:"basis,omitempty"`
}

// Factor names used by the aggregator. External signal sources contribute
// factors named after their kind.
const (
	FactorAmount     = "amount"
	FactorMerchant   = "merchant"
	FactorGeographic = "geographic"
	FactorTemporal   = "temporal"
	FactorVelocity   = "velocity"
	FactorBehavioral = "behavioral"
	FactorValidation = "validation"
)

// Factor is one weighted contribution to the overall score
type Factor struct {
	Name       string   `json:"name"`
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Weight     float64  `json:"weight"`
	Evidence   []string `json:"evidence,omitempty"`
}

// Verdict is the always-returned result of evaluating one transaction.
// It carries no wall-clock fields so re-evaluating an unchanged transaction
// yields an identical verdict.
type Verdict struct {
	TransactionID     uuid.UUID `json:"transaction_id"`
	OverallScore      float64   `json:"overall_score"`
	Level             Level     `json:"risk_level"`
	Decision          Decision  `json:"decision"`
	Confidence        float64   `json:"confidence"`
	Factors           []Factor  `json:"factors"`
	ThresholdBreaches []string  `json:"threshold_breaches,omitempty"`
}

// Factor returns the named factor and whether it is present
func (v *Verdict) Factor(name string) (Factor, bool) {
	for _, f := range v.Factors {
		if f.Name == name {
			return f, true
		}
	}
	return Factor{}, false
}

// PatternIDs lists the factor names that breached the given score bound,
// used as pattern identifiers for feedback bookkeeping
func (v *Verdict) PatternIDs(breachScore float64) []string {
	var ids []string
	for _, f := range v.Factors {
		if f.Score >= breachScore {
			ids = append(ids, f.Name)
		}
	}
	return ids
}

// FormatBreach renders a threshold breach entry for a factor
func FormatBreach(name string, score float64) string {
	return fmt.Sprintf("%s=%.2f", name, score)
}
