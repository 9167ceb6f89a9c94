package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/errors"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/signals"
)

// IdentitySource checks the account and device against an identity
// intelligence service for takeover and synthetic identity patterns
type IdentitySource struct {
	cfg    IdentityConfig
	client *http.Client
}

type IdentityConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewIdentitySource(cfg IdentityConfig) *IdentitySource {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}

	return &IdentitySource{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (s *IdentitySource) Name() string       { return "identity" }
func (s *IdentitySource) Kind() signals.Kind { return signals.KindIdentity }

type identityRequest struct {
	UserID            string  `json:"user_id"`
	DeviceFingerprint string  `json:"device_fingerprint,omitempty"`
	Merchant          string  `json:"merchant"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
}

type identityResponse struct {
	RiskScore      float64  `json:"risk_score"`
	Confidence     float64  `json:"confidence"`
	Flags          []string `json:"flags"`
	AccountAgeDays int      `json:"account_age_days"`
}

// identityFlagEvidence translates service flags into the evidence
// strings surfaced on verdicts; unknown flags pass through verbatim
var identityFlagEvidence = map[string]string{
	"new_device":          "device has no history on this account",
	"credential_stuffing": "recent credential stuffing attempts on this account",
	"account_takeover":    "session matches account takeover patterns",
	"synthetic_identity":  "identity attributes look synthetic",
	"disposable_email":    "account registered with a disposable email",
}

func (s *IdentitySource) Fetch(ctx context.Context, req signals.Request) (signals.Payload, error) {
	body, err := json.Marshal(identityRequest{
		UserID:            req.UserID.String(),
		DeviceFingerprint: req.DeviceFingerprint,
		Merchant:          req.Merchant,
		Amount:            req.Amount,
		Currency:          req.Currency,
	})
	if err != nil {
		return signals.Payload{}, fmt.Errorf("encoding identity request: %w", err)
	}

	verifyURL := strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/verify"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, verifyURL, bytes.NewReader(body))
	if err != nil {
		return signals.Payload{}, fmt.Errorf("building identity request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		httpReq.Header.Set("X-API-Key", s.cfg.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return signals.Payload{}, errors.NewSignalFailureError(s.Name(), "request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return signals.Payload{}, errors.NewSignalFailureError(s.Name(), fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	var decoded identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return signals.Payload{}, errors.NewSignalFailureError(s.Name(), "invalid response").WithCause(err)
	}

	payload := signals.Payload{
		Score:      decoded.RiskScore,
		Confidence: decoded.Confidence,
		Details:    make(map[string]string),
	}
	if decoded.AccountAgeDays > 0 {
		payload.Details["account_age_days"] = strconv.Itoa(decoded.AccountAgeDays)
	}
	for _, flag := range decoded.Flags {
		if evidence, ok := identityFlagEvidence[flag]; ok {
			payload.Evidence = append(payload.Evidence, evidence)
		} else {
			payload.Evidence = append(payload.Evidence, flag)
		}
	}

	return payload, nil
}
