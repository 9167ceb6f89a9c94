package signals

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/transaction"
)

// Kind classifies what a source knows about
type Kind string

const (
	KindGeolocation   Kind = "geolocation"
	KindIdentity      Kind = "identity"
	KindFraudDatabase Kind = "fraud_database"
)

// Source is an external reputation backend. Implementations must honor
// context cancellation; the gateway enforces per-call deadlines through it.
type Source interface {
	Name() string
	Kind() Kind
	Fetch(ctx context.Context, req Request) (Payload, error)
}

// Request carries the transaction attributes a source may score on
type Request struct {
	TransactionID     uuid.UUID
	UserID            uuid.UUID
	Amount            float64
	Currency          string
	Merchant          string
	Country           string
	City              string
	IP                string
	DeviceFingerprint string
}

// RequestFromTransaction projects a transaction onto the signal request
// surface
func RequestFromTransaction(tx *transaction.Transaction) Request {
	return Request{
		TransactionID:     tx.ID,
		UserID:            tx.UserID,
		Amount:            tx.Amount.ToFloat64(),
		Currency:          tx.Amount.Currency(),
		Merchant:          tx.Merchant,
		Country:           tx.Location.Country,
		City:              tx.Location.City,
		IP:                tx.Location.IPAddress,
		DeviceFingerprint: tx.Device.Fingerprint,
	}
}

// CacheKey is a stable digest of the fields a response can depend on.
// The transaction ID and amount are deliberately excluded so repeat
// lookups for the same user, merchant and network identity hit the cache.
func (r Request) CacheKey() string {
	material := strings.Join([]string{
		r.UserID.String(),
		strings.ToLower(r.Merchant),
		strings.ToUpper(r.Country),
		strings.ToLower(r.City),
		r.IP,
		r.DeviceFingerprint,
	}, "|")

	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:8])
}

// Payload is a source's answer: a risk score with its confidence and
// whatever supporting evidence the backend exposes
type Payload struct {
	Score      float64           `json:"score"`
	Confidence float64           `json:"confidence"`
	Evidence   []string          `json:"evidence,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// Failure reasons carried on Result. A fetch never returns an error;
// every outcome is a Result so one slow or broken backend cannot take
// an evaluation down with it.
const (
	ReasonTimeout      = "timeout"
	ReasonRateLimited  = "rate_limited"
	ReasonCircuitOpen  = "circuit_open"
	ReasonSourceError  = "source_error"
	ReasonUnregistered = "unregistered"
)

// Result is the outcome of one signal fetch, successful or not
type Result struct {
	Source  string        `json:"source"`
	Kind    Kind          `json:"kind"`
	Success bool          `json:"success"`
	Payload Payload       `json:"payload"`
	Reason  string        `json:"reason,omitempty"`
	Latency time.Duration `json:"latency"`
	Cached  bool          `json:"cached"`
}

// SourceConfig tunes the gateway's protection around one source
type SourceConfig struct {
	// Quota is allowed calls per rolling minute; zero disables limiting
	Quota            int
	FailureThreshold int
	Cooldown         time.Duration
	// CacheTTL of zero disables response caching for the source
	CacheTTL time.Duration
	// Timeout of zero applies no per-call deadline beyond the caller's
	Timeout time.Duration
}

func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		Quota:            60,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		CacheTTL:         5 * time.Minute,
		Timeout:          400 * time.Millisecond,
	}
}
