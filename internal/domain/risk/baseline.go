package risk

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/values"
)

// UserBaseline is an immutable snapshot of a user's historical spending
// profile. Snapshots are replaced whole on recompute, never mutated.
type UserBaseline struct {
	UserID          uuid.UUID `json:"user_id"`
	MeanAmount      float64   `json:"mean_amount"`
	StdDevAmount    float64   `json:"stddev_amount"`
	MedianAmount    float64   `json:"median_amount"`
	CommonCountries []string  `json:"common_countries,omitempty"`
	CommonMerchants []string  `json:"common_merchants,omitempty"`
	SampleSize      int       `json:"sample_size"`
	ComputedAt      time.Time `json:"computed_at"`

	// Insufficient marks a user without enough history for statistical
	// comparison. Detectors must not guess against such a baseline.
	Insufficient bool `json:"insufficient"`
}

// HasCountry reports whether the country belongs to the user's common set
func (b *UserBaseline) HasCountry(country string) bool {
	country = strings.ToUpper(strings.TrimSpace(country))
	for _, c := range b.CommonCountries {
		if c == country {
			return true
		}
	}
	return false
}

// HasMerchant reports whether the merchant belongs to the user's common set
func (b *UserBaseline) HasMerchant(merchant string) bool {
	merchant = strings.ToLower(strings.TrimSpace(merchant))
	for _, m := range b.CommonMerchants {
		if m == merchant {
			return true
		}
	}
	return false
}

// VelocityStats summarizes a user's sliding window over one lookback span
type VelocityStats struct {
	Window            time.Duration `json:"window"`
	Count             int           `json:"count"`
	Total             values.Money  `json:"total"`
	DistinctMerchants int           `json:"distinct_merchants"`
}
