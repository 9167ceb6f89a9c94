package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/errors"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/signals"
)

// GeolocationSource queries an IP intelligence service for network
// reputation: VPN and proxy exits, and mismatches between the IP's
// location and the transaction's country.
type GeolocationSource struct {
	cfg    GeolocationConfig
	client *http.Client
}

type GeolocationConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewGeolocationSource(cfg GeolocationConfig) *GeolocationSource {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}

	return &GeolocationSource{
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

func (s *GeolocationSource) Name() string       { return "geolocation" }
func (s *GeolocationSource) Kind() signals.Kind { return signals.KindGeolocation }

// geoResponse mirrors the service's JSON answer
type geoResponse struct {
	RiskScore    float64 `json:"risk_score"`
	Confidence   float64 `json:"confidence"`
	CountryMatch bool    `json:"country_match"`
	VPN          bool    `json:"vpn"`
	Proxy        bool    `json:"proxy"`
	ASN          string  `json:"asn"`
	IPCountry    string  `json:"ip_country"`
}

func (s *GeolocationSource) Fetch(ctx context.Context, req signals.Request) (signals.Payload, error) {
	scoreURL := strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/score"
	params := url.Values{}
	params.Add("ip", req.IP)
	params.Add("country", req.Country)
	if req.City != "" {
		params.Add("city", req.City)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, scoreURL+"?"+params.Encode(), nil)
	if err != nil {
		return signals.Payload{}, fmt.Errorf("building geolocation request: %w", err)
	}
	s.addHeaders(httpReq)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return signals.Payload{}, errors.NewSignalFailureError(s.Name(), "request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return signals.Payload{}, errors.NewSignalFailureError(s.Name(), fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	var body geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return signals.Payload{}, errors.NewSignalFailureError(s.Name(), "invalid response").WithCause(err)
	}

	payload := signals.Payload{
		Score:      body.RiskScore,
		Confidence: body.Confidence,
		Details:    make(map[string]string),
	}
	if body.ASN != "" {
		payload.Details["asn"] = body.ASN
	}
	if body.IPCountry != "" {
		payload.Details["ip_country"] = body.IPCountry
	}
	if body.VPN {
		payload.Evidence = append(payload.Evidence, "ip is a known vpn exit")
	}
	if body.Proxy {
		payload.Evidence = append(payload.Evidence, "ip is an open proxy")
	}
	if !body.CountryMatch && req.Country != "" {
		payload.Evidence = append(payload.Evidence, "ip location does not match transaction country")
	}

	return payload, nil
}

func (s *GeolocationSource) addHeaders(req *http.Request) {
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	req.Header.Set("User-Agent", "risk-engine/1.0")
	req.Header.Set("Accept", "application/json")
}
