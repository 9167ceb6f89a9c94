package risk

import (
	"encoding/json"
	"fmt"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/errors"
)

// Level is the discrete risk classification of a verdict. Levels are ordered;
// comparisons like level >= LevelHigh are meaningful.
type Level int

const (
	LevelMinimal Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelMinimal:
		return "minimal"
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel converts a level name back to its ordered value
func ParseLevel(s string) (Level, error) {
	switch s {
	case "minimal":
		return LevelMinimal, nil
	case "low":
		return LevelLow, nil
	case "medium":
		return LevelMedium, nil
	case "high":
		return LevelHigh, nil
	case "critical":
		return LevelCritical, nil
	default:
		return LevelMinimal, fmt.Errorf("unknown risk level: %s", s)
	}
}

// Decision is the action recommended to the payment pipeline
type Decision string

const (
	DecisionApprove    Decision = "approve"
	DecisionFlagReview Decision = "flag_review"
	DecisionDecline    Decision = "decline"
)

// DecisionForLevel maps a risk level to its decision. The mapping is
// monotonic: a higher level never produces a more permissive decision.
func DecisionForLevel(l Level) Decision {
	switch l {
	case LevelCritical, LevelHigh:
		return DecisionDecline
	case LevelMedium:
		return DecisionFlagReview
	default:
		return DecisionApprove
	}
}

// LevelThresholds are the minimum overall scores for each level. Scores below
// Low classify as minimal.
type LevelThresholds struct {
	Low      float64 `json:"low" koanf:"low"`
	Medium   float64 `json:"medium" koanf:"medium"`
	High     float64 `json:"high" koanf:"high"`
	Critical float64 `json:"critical" koanf:"critical"`
}

// DefaultLevelThresholds returns the standard classification boundaries
func DefaultLevelThresholds() LevelThresholds {
	return LevelThresholds{
		Low:      0.3,
		Medium:   0.6,
		High:     0.8,
		Critical: 0.9,
	}
}

// Validate rejects threshold sets that are not strictly ascending within
// (0, 1]. Invalid sets must never reach an evaluation.
func (t LevelThresholds) Validate() error {
	if t.Low <= 0 || t.Critical > 1 {
		return errors.NewConfigurationError("thresholds",
			fmt.Sprintf("thresholds must lie in (0, 1]: low=%.2f critical=%.2f", t.Low, t.Critical))
	}
	if !(t.Low < t.Medium && t.Medium < t.High && t.High < t.Critical) {
		return errors.NewConfigurationError("thresholds",
			fmt.Sprintf("thresholds must be strictly ascending: %.2f %.2f %.2f %.2f",
				t.Low, t.Medium, t.High, t.Critical))
	}
	return nil
}

// LevelFromScore classifies an overall score as the highest level whose
// threshold it meets
func LevelFromScore(score float64, t LevelThresholds) Level {
	switch {
	case score >= t.Critical:
		return LevelCritical
	case score >= t.High:
		return LevelHigh
	case score >= t.Medium:
		return LevelMedium
	case score >= t.Low:
		return LevelLow
	default:
		return LevelMinimal
	}
}
