package risk

import (
	"time"

	"github.com/google/uuid"
)

// Label is the ground truth for a decided transaction, established later by
// chargebacks, manual review, or customer confirmation
type Label string

const (
	LabelFraud      Label = "fraud"
	LabelLegitimate Label = "legitimate"
)

// Valid reports whether the label is one of the known ground-truth values
func (l Label) Valid() bool {
	return l == LabelFraud || l == LabelLegitimate
}

// Outcome ties a verdict to its realized ground truth for feedback learning
type Outcome struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Label         Label     `json:"label"`
	Decision      Decision  `json:"decision"`
	PatternIDs    []string  `json:"pattern_ids,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
}
