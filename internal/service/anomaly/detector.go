package anomaly

import (
	"fmt"
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/risk"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/transaction"
)

// Config holds the operator-tunable detection thresholds
type Config struct {
	// ZThreshold is the amount z-score at which a deviation becomes an
	// anomaly
	ZThreshold float64
	// HighRiskKeywords flag merchant descriptors by substring match
	HighRiskKeywords []string
	// FuzzyDistance is the maximum edit distance for catching misspelled
	// keywords ("cassino"); 0 disables fuzzy matching
	FuzzyDistance int
	// LateNightStart/End bound the hour-of-day window treated as a
	// temporal anomaly, inclusive
	LateNightStart int
	LateNightEnd   int
}

// DefaultConfig returns the standard detection thresholds
func DefaultConfig() Config {
	return Config{
		ZThreshold: 2.5,
		HighRiskKeywords: []string{
			"casino", "gambling", "betting", "lottery", "crypto",
			"pawn", "wire transfer", "escort", "darkweb",
		},
		FuzzyDistance:  1,
		LateNightStart: 2,
		LateNightEnd:   5,
	}
}

// Detector runs the behavioral anomaly checks. It is pure: the same
// transaction and baseline always produce the same findings, and a finding's
// absence means no anomaly, not a zero score.
type Detector struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a detector; unset thresholds fall back to defaults
func New(cfg Config, logger *zap.Logger) *Detector {
	def := DefaultConfig()
	if cfg.ZThreshold <= 0 {
		cfg.ZThreshold = def.ZThreshold
	}
	if len(cfg.HighRiskKeywords) == 0 {
		cfg.HighRiskKeywords = def.HighRiskKeywords
	}
	if cfg.FuzzyDistance < 0 {
		cfg.FuzzyDistance = 0
	}
	if cfg.LateNightStart == 0 && cfg.LateNightEnd == 0 {
		cfg.LateNightStart = def.LateNightStart
		cfg.LateNightEnd = def.LateNightEnd
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Detector{cfg: cfg, logger: logger}
}

// Evaluate runs all detectors against one transaction. Results come back in
// a stable order: amount, temporal, merchant, location.
func (d *Detector) Evaluate(tx *transaction.Transaction, bl *risk.UserBaseline) []risk.AnomalyScore {
	if tx == nil {
		return nil
	}

	var scores []risk.AnomalyScore
	if s, ok := d.amountAnomaly(tx, bl); ok {
		scores = append(scores, s)
	}
	if s, ok := d.temporalAnomaly(tx); ok {
		scores = append(scores, s)
	}
	if s, ok := d.merchantAnomaly(tx); ok {
		scores = append(scores, s)
	}
	if s, ok := d.locationAnomaly(tx, bl); ok {
		scores = append(scores, s)
	}
	return scores
}

// amountAnomaly compares the amount against the user's historical mean.
// Without a usable baseline (insufficient history or zero variance) it
// asserts nothing.
func (d *Detector) amountAnomaly(tx *transaction.Transaction, bl *risk.UserBaseline) (risk.AnomalyScore, bool) {
	if bl == nil || bl.Insufficient || bl.StdDevAmount == 0 {
		return risk.AnomalyScore{}, false
	}

	amount := tx.Amount.ToFloat64()
	z := math.Abs(amount-bl.MeanAmount) / bl.StdDevAmount
	if z < d.cfg.ZThreshold {
		return risk.AnomalyScore{}, false
	}

	score := math.Min(1.0, z/(2*d.cfg.ZThreshold))
	confidence := math.Min(AmountMaxConfidence,
		AmountBaseConfidence+(z-d.cfg.ZThreshold)*AmountConfidenceSlope)

	return risk.AnomalyScore{
		Kind:       risk.AnomalyAmount,
		Score:      score,
		Confidence: confidence,
		Evidence: []string{
			fmt.Sprintf("amount %s deviates %.1f standard deviations from mean %.2f", tx.Amount, z, bl.MeanAmount),
			fmt.Sprintf("baseline sample size %d", bl.SampleSize),
		},
		Basis: fmt.Sprintf("z=%.2f threshold=%.2f", z, d.cfg.ZThreshold),
	}, true
}

// temporalAnomaly flags late-night activity. Daytime hours produce nothing
// here; the aggregator's continuous hour weight covers them.
func (d *Detector) temporalAnomaly(tx *transaction.Transaction) (risk.AnomalyScore, bool) {
	hour := tx.Hour()
	if hour < d.cfg.LateNightStart || hour > d.cfg.LateNightEnd {
		return risk.AnomalyScore{}, false
	}

	return risk.AnomalyScore{
		Kind:       risk.AnomalyTemporal,
		Score:      TemporalScore,
		Confidence: TemporalConfidence,
		Evidence: []string{
			fmt.Sprintf("transaction at %02d:00 falls in the %02d:00-%02d:59 late-night window",
				hour, d.cfg.LateNightStart, d.cfg.LateNightEnd),
		},
		Basis: fmt.Sprintf("hour=%d window=[%d,%d]", hour, d.cfg.LateNightStart, d.cfg.LateNightEnd),
	}, true
}

// merchantAnomaly flags high-risk merchant descriptors by substring match,
// falling back to bounded edit distance per token for misspellings
func (d *Detector) merchantAnomaly(tx *transaction.Transaction) (risk.AnomalyScore, bool) {
	merchant := strings.ToLower(tx.Merchant)

	for _, keyword := range d.cfg.HighRiskKeywords {
		if strings.Contains(merchant, keyword) {
			return risk.AnomalyScore{
				Kind:       risk.AnomalyMerchant,
				Score:      MerchantScore,
				Confidence: MerchantConfidence,
				Evidence: []string{
					fmt.Sprintf("merchant %q matches high-risk keyword %q", tx.Merchant, keyword),
				},
				Basis: fmt.Sprintf("keyword=%s match=substring", keyword),
			}, true
		}
	}

	if d.cfg.FuzzyDistance > 0 {
		if keyword, token, dist, ok := d.fuzzyKeywordMatch(merchant); ok {
			return risk.AnomalyScore{
				Kind:       risk.AnomalyMerchant,
				Score:      MerchantScore,
				Confidence: MerchantFuzzyConfidence,
				Evidence: []string{
					fmt.Sprintf("merchant token %q resembles high-risk keyword %q", token, keyword),
				},
				Basis: fmt.Sprintf("keyword=%s match=fuzzy distance=%d", keyword, dist),
			}, true
		}
	}

	return risk.AnomalyScore{}, false
}

func (d *Detector) fuzzyKeywordMatch(merchant string) (keyword, token string, dist int, ok bool) {
	tokens := strings.FieldsFunc(merchant, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})

	for _, kw := range d.cfg.HighRiskKeywords {
		// Short keywords would fuzzy-match half the dictionary
		if len(kw) < 5 || strings.ContainsRune(kw, ' ') {
			continue
		}
		for _, tok := range tokens {
			if abs(len(tok)-len(kw)) > d.cfg.FuzzyDistance {
				continue
			}
			if dd := levenshtein.ComputeDistance(tok, kw); dd <= d.cfg.FuzzyDistance {
				return kw, tok, dd, true
			}
		}
	}
	return "", "", 0, false
}

// locationAnomaly flags countries outside the user's common set. Without an
// established set it asserts nothing rather than guessing.
func (d *Detector) locationAnomaly(tx *transaction.Transaction, bl *risk.UserBaseline) (risk.AnomalyScore, bool) {
	if bl == nil || bl.Insufficient || len(bl.CommonCountries) == 0 {
		return risk.AnomalyScore{}, false
	}
	if !tx.HasLocation() {
		return risk.AnomalyScore{}, false
	}
	if bl.HasCountry(tx.Location.Country) {
		return risk.AnomalyScore{}, false
	}

	return risk.AnomalyScore{
		Kind:       risk.AnomalyLocation,
		Score:      LocationScore,
		Confidence: LocationConfidence,
		Evidence: []string{
			fmt.Sprintf("country %s not among the user's common countries %v",
				strings.ToUpper(tx.Location.Country), bl.CommonCountries),
		},
		Basis: fmt.Sprintf("country=%s common=%d", strings.ToUpper(tx.Location.Country), len(bl.CommonCountries)),
	}, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
