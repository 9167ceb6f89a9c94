package feedback

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/errors"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/risk"
)

// Config bounds when the learner is confident enough to recommend tuning
type Config struct {
	// MinSamples is how many labeled outcomes a pattern needs before its
	// precision and recall are considered meaningful
	MinSamples int
	// PrecisionFloor is the precision below which a pattern fires too often
	PrecisionFloor float64
	// RecallFloor is the recall below which a pattern misses too much fraud
	RecallFloor float64
	// Step is the threshold adjustment a recommendation proposes
	Step float64
}

// DefaultConfig returns the standard learning bounds
func DefaultConfig() Config {
	return Config{
		MinSamples:     10,
		PrecisionFloor: 0.7,
		RecallFloor:    0.7,
		Step:           0.05,
	}
}

// Adjustment directions a recommendation can propose
const (
	ActionRaiseThreshold = "raise_threshold"
	ActionLowerThreshold = "lower_threshold"
)

// confusion is one pattern's outcome tally. A decline or flag_review verdict
// counts as a positive prediction, an approve as a negative one.
type confusion struct {
	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int
}

func (c confusion) samples() int {
	return c.TruePositives + c.FalsePositives + c.TrueNegatives + c.FalseNegatives
}

// PatternPerformance is the derived quality of one detection pattern
type PatternPerformance struct {
	PatternID      string  `json:"pattern_id"`
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	TrueNegatives  int     `json:"true_negatives"`
	FalseNegatives int     `json:"false_negatives"`
	SampleSize     int     `json:"sample_size"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1Score        float64 `json:"f1_score"`
	Accuracy       float64 `json:"accuracy"`
}

// Recommendation proposes a threshold change for one pattern. It is advisory:
// nothing applies it until an operator does.
type Recommendation struct {
	PatternID  string  `json:"pattern_id"`
	Action     string  `json:"action"`
	Delta      float64 `json:"delta"`
	Precision  float64 `json:"precision"`
	Recall     float64 `json:"recall"`
	SampleSize int     `json:"sample_size"`
	Reason     string  `json:"reason"`
}

// Learner accumulates labeled outcomes into per-pattern confusion matrices
// and derives tuning recommendations from them. Safe for concurrent use.
type Learner struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.RWMutex
	patterns map[string]*confusion
}

// New creates a learner; unset bounds fall back to defaults
func New(cfg Config, logger *zap.Logger) *Learner {
	def := DefaultConfig()
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.PrecisionFloor <= 0 || cfg.PrecisionFloor > 1 {
		cfg.PrecisionFloor = def.PrecisionFloor
	}
	if cfg.RecallFloor <= 0 || cfg.RecallFloor > 1 {
		cfg.RecallFloor = def.RecallFloor
	}
	if cfg.Step <= 0 || cfg.Step > 0.5 {
		cfg.Step = def.Step
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Learner{
		cfg:      cfg,
		logger:   logger,
		patterns: make(map[string]*confusion),
	}
}

// Incorporate folds one labeled outcome into every pattern that contributed
// to the original verdict. Outcomes without a valid ground-truth label are
// rejected, not guessed at.
func (l *Learner) Incorporate(outcome *risk.Outcome) error {
	if outcome == nil {
		return errors.NewValidationError("OUTCOME_REQUIRED", "outcome must not be nil")
	}
	if !outcome.Label.Valid() {
		return errors.NewValidationError("OUTCOME_LABEL_INVALID",
			fmt.Sprintf("label %q is not a known ground truth", outcome.Label))
	}

	predictedFraud := outcome.Decision == risk.DecisionDecline || outcome.Decision == risk.DecisionFlagReview
	wasFraud := outcome.Label == risk.LabelFraud

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range outcome.PatternIDs {
		if id == "" {
			continue
		}
		c, ok := l.patterns[id]
		if !ok {
			c = &confusion{}
			l.patterns[id] = c
		}
		switch {
		case wasFraud && predictedFraud:
			c.TruePositives++
		case wasFraud && !predictedFraud:
			c.FalseNegatives++
		case !wasFraud && predictedFraud:
			c.FalsePositives++
		default:
			c.TrueNegatives++
		}
	}

	l.logger.Debug("outcome incorporated",
		zap.String("transaction_id", outcome.TransactionID.String()),
		zap.String("label", string(outcome.Label)),
		zap.String("decision", string(outcome.Decision)),
		zap.Strings("patterns", outcome.PatternIDs))

	return nil
}

// PatternPerformance returns the current quality of every tracked pattern,
// sorted by pattern ID for stable output
func (l *Learner) PatternPerformance() []PatternPerformance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	perf := make([]PatternPerformance, 0, len(l.patterns))
	for id, c := range l.patterns {
		perf = append(perf, derive(id, *c))
	}
	sort.Slice(perf, func(i, j int) bool { return perf[i].PatternID < perf[j].PatternID })
	return perf
}

// Performance returns one pattern's quality and whether it is tracked
func (l *Learner) Performance(patternID string) (PatternPerformance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.patterns[patternID]
	if !ok {
		return PatternPerformance{}, false
	}
	return derive(patternID, *c), true
}

// Recommendations derives threshold proposals for patterns with enough
// labeled history. Low precision means the pattern fires on legitimate
// traffic and its threshold should rise; low recall means it misses fraud
// and its threshold should drop. When both floors are broken, precision
// wins: a pattern declining real customers is the louder problem.
func (l *Learner) Recommendations() []Recommendation {
	perf := l.PatternPerformance()

	var recs []Recommendation
	for _, p := range perf {
		if p.SampleSize < l.cfg.MinSamples {
			continue
		}
		switch {
		case p.Precision < l.cfg.PrecisionFloor:
			recs = append(recs, Recommendation{
				PatternID:  p.PatternID,
				Action:     ActionRaiseThreshold,
				Delta:      l.cfg.Step,
				Precision:  p.Precision,
				Recall:     p.Recall,
				SampleSize: p.SampleSize,
				Reason: fmt.Sprintf("precision %.2f below %.2f over %d samples",
					p.Precision, l.cfg.PrecisionFloor, p.SampleSize),
			})
		case p.Recall < l.cfg.RecallFloor:
			recs = append(recs, Recommendation{
				PatternID:  p.PatternID,
				Action:     ActionLowerThreshold,
				Delta:      -l.cfg.Step,
				Precision:  p.Precision,
				Recall:     p.Recall,
				SampleSize: p.SampleSize,
				Reason: fmt.Sprintf("recall %.2f below %.2f over %d samples",
					p.Recall, l.cfg.RecallFloor, p.SampleSize),
			})
		}
	}
	return recs
}

// Len reports how many patterns have at least one labeled outcome
func (l *Learner) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.patterns)
}

// Reset drops all accumulated outcome history
func (l *Learner) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patterns = make(map[string]*confusion)
}

func derive(id string, c confusion) PatternPerformance {
	p := PatternPerformance{
		PatternID:      id,
		TruePositives:  c.TruePositives,
		FalsePositives: c.FalsePositives,
		TrueNegatives:  c.TrueNegatives,
		FalseNegatives: c.FalseNegatives,
		SampleSize:     c.samples(),
	}

	if c.TruePositives+c.FalsePositives > 0 {
		p.Precision = float64(c.TruePositives) / float64(c.TruePositives+c.FalsePositives)
	}
	if c.TruePositives+c.FalseNegatives > 0 {
		p.Recall = float64(c.TruePositives) / float64(c.TruePositives+c.FalseNegatives)
	}
	if p.Precision+p.Recall > 0 {
		p.F1Score = 2 * p.Precision * p.Recall / (p.Precision + p.Recall)
	}
	if p.SampleSize > 0 {
		p.Accuracy = float64(c.TruePositives+c.TrueNegatives) / float64(p.SampleSize)
	}
	return p
}
