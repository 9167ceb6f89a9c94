package rest

import (
	"time"

	"github.com/google/uuid"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/risk"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/transaction"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/values"
	"github.com/paygate-labs/transaction-risk-engine/internal/infrastructure/repository"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/signals"
)

// EvaluateRequest carries one transaction for scoring. Only transport shape
// is validated here; domain completeness failures (missing merchant, bad
// amount) still produce a decline verdict, not a 4xx.
type EvaluateRequest struct {
	TransactionID string  `json:"transaction_id" validate:"omitempty,uuid"`
	UserID        string  `json:"user_id" validate:"required,uuid"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency" validate:"omitempty,len=3,alpha"`
	Merchant      string  `json:"merchant"`
	Category      string  `json:"category"`

	Location  LocationPayload `json:"location"`
	Timestamp time.Time       `json:"timestamp"`

	Device    *DevicePayload `json:"device,omitempty"`
	SessionID string         `json:"session_id"`
}

type LocationPayload struct {
	Country   string  `json:"country" validate:"omitempty,len=2,alpha"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	IPAddress string  `json:"ip_address" validate:"omitempty,ip"`
}

type DevicePayload struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	OS          string `json:"os"`
	Fingerprint string `json:"fingerprint"`
}

func (r *EvaluateRequest) toDomain() (*transaction.Transaction, error) {
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	if r.TransactionID != "" {
		if id, err = uuid.Parse(r.TransactionID); err != nil {
			return nil, err
		}
	}

	currency := r.Currency
	if currency == "" {
		currency = values.USD
	}
	amount, err := values.NewMoneyFromFloat(r.Amount, currency)
	if err != nil {
		return nil, err
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	tx := &transaction.Transaction{
		ID:       id,
		UserID:   userID,
		Amount:   amount,
		Merchant: r.Merchant,
		Category: r.Category,
		Location: transaction.Location{
			Country:   r.Location.Country,
			City:      r.Location.City,
			Latitude:  r.Location.Latitude,
			Longitude: r.Location.Longitude,
			IPAddress: r.Location.IPAddress,
		},
		Timestamp: ts,
		SessionID: r.SessionID,
	}
	if r.Device != nil {
		tx.Device = transaction.Device{
			ID:          r.Device.ID,
			Type:        r.Device.Type,
			OS:          r.Device.OS,
			Fingerprint: r.Device.Fingerprint,
		}
	}

	return tx, nil
}

// BatchEvaluateRequest scores up to 500 transactions in one call
type BatchEvaluateRequest struct {
	Transactions []EvaluateRequest `json:"transactions" validate:"required,min=1,max=500,dive"`
}

// BatchEvaluateResponse preserves request order slot for slot
type BatchEvaluateResponse struct {
	Verdicts []*risk.Verdict `json:"verdicts"`
}

// OutcomeRequest reports the realized ground truth for a decided transaction
type OutcomeRequest struct {
	TransactionID string    `json:"transaction_id" validate:"required,uuid"`
	Label         string    `json:"label" validate:"required,oneof=fraud legitimate"`
	Decision      string    `json:"decision" validate:"omitempty,oneof=approve flag_review decline"`
	PatternIDs    []string  `json:"pattern_ids"`
	ObservedAt    time.Time `json:"observed_at"`
}

func (r *OutcomeRequest) toDomain() (*risk.Outcome, error) {
	txID, err := uuid.Parse(r.TransactionID)
	if err != nil {
		return nil, err
	}
	return &risk.Outcome{
		TransactionID: txID,
		Label:         risk.Label(r.Label),
		Decision:      risk.Decision(r.Decision),
		PatternIDs:    r.PatternIDs,
		ObservedAt:    r.ObservedAt,
	}, nil
}

// ThresholdsRequest replaces the level boundaries in effect
type ThresholdsRequest struct {
	Low      float64 `json:"low" validate:"required,gt=0,lte=1"`
	Medium   float64 `json:"medium" validate:"required,gt=0,lte=1"`
	High     float64 `json:"high" validate:"required,gt=0,lte=1"`
	Critical float64 `json:"critical" validate:"required,gt=0,lte=1"`
}

func (r *ThresholdsRequest) toDomain() risk.LevelThresholds {
	return risk.LevelThresholds{
		Low:      r.Low,
		Medium:   r.Medium,
		High:     r.High,
		Critical: r.Critical,
	}
}

// StatsResponse is the operational snapshot served by GET /v1/stats
type StatsResponse struct {
	Cache                  signals.CacheStats      `json:"cache"`
	Breakers               []signals.SourceBreaker `json:"breakers"`
	Store                  repository.Counts       `json:"store"`
	Thresholds             risk.LevelThresholds    `json:"thresholds"`
	TrackedPatterns        int                     `json:"tracked_patterns"`
	PendingRecommendations int                     `json:"pending_recommendations"`
}

// HealthResponse answers liveness and readiness probes
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime,omitempty"`
}

// ErrorBody is the wire form of a failed request
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse wraps every error payload
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
