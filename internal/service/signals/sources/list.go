package sources

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/paygate-labs/transaction-risk-engine/internal/service/signals"
)

// ListSource answers fraud database lookups from an in-memory list of
// known bad merchants and IPs. It needs no network dependency, which
// also makes it the fallback of last resort behind richer backends.
type ListSource struct {
	mu        sync.RWMutex
	merchants map[string]float64
	ips       map[string]float64
}

func NewListSource() *ListSource {
	return &ListSource{
		merchants: make(map[string]float64),
		ips:       make(map[string]float64),
	}
}

func (s *ListSource) Name() string       { return "fraud_database" }
func (s *ListSource) Kind() signals.Kind { return signals.KindFraudDatabase }

// AddMerchant lists a merchant with its risk score. Matching is
// case-insensitive and also catches listed names embedded in longer
// merchant descriptors.
func (s *ListSource) AddMerchant(name string, score float64) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}

	s.mu.Lock()
	s.merchants[name] = score
	s.mu.Unlock()
}

// AddIP lists an IP address with its risk score
func (s *ListSource) AddIP(ip string, score float64) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return
	}

	s.mu.Lock()
	s.ips[ip] = score
	s.mu.Unlock()
}

// Len reports the number of listed entries
func (s *ListSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.merchants) + len(s.ips)
}

// Fetch never fails: a transaction with no listed attributes is a
// confident low-risk answer, not an error
func (s *ListSource) Fetch(ctx context.Context, req signals.Request) (signals.Payload, error) {
	if err := ctx.Err(); err != nil {
		return signals.Payload{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var score float64
	var evidence []string

	merchant := strings.ToLower(strings.TrimSpace(req.Merchant))
	if hit, ok := s.merchants[merchant]; ok {
		score = max(score, hit)
		evidence = append(evidence, fmt.Sprintf("merchant %q is on the fraud list", req.Merchant))
	} else if merchant != "" {
		// scan for listed names embedded in the descriptor, in sorted
		// order so repeated lookups report identical evidence
		matches := make([]string, 0)
		for listed := range s.merchants {
			if strings.Contains(merchant, listed) {
				matches = append(matches, listed)
			}
		}
		sort.Strings(matches)
		for _, listed := range matches {
			score = max(score, s.merchants[listed])
			evidence = append(evidence, fmt.Sprintf("merchant matches listed name %q", listed))
		}
	}

	if hit, ok := s.ips[req.IP]; ok && req.IP != "" {
		score = max(score, hit)
		evidence = append(evidence, fmt.Sprintf("ip %s is on the fraud list", req.IP))
	}

	if len(evidence) == 0 {
		return signals.Payload{Score: 0, Confidence: 0.9}, nil
	}

	return signals.Payload{
		Score:      score,
		Confidence: 0.95,
		Evidence:   evidence,
	}, nil
}
