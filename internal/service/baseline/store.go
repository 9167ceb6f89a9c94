package baseline

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/errors"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/risk"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/transaction"
)

// HistoryProvider supplies the transactions a baseline is computed from.
// Implementations are expected to return most-recent-first within lookback.
type HistoryProvider interface {
	GetUserHistory(ctx context.Context, userID uuid.UUID, lookback time.Duration, limit int) ([]*transaction.Transaction, error)
}

// Config controls baseline computation and caching
type Config struct {
	// TTL is how long a computed baseline serves before recompute
	TTL time.Duration
	// Lookback bounds how far back history is read
	Lookback time.Duration
	// MaxHistory bounds how many transactions feed one baseline
	MaxHistory int
	// MinSamples is the minimum history for statistical comparison;
	// below it the baseline is marked insufficient
	MinSamples int
	// CommonMinShare is the frequency share a value needs to join the
	// common countries/merchants sets (never below two observations)
	CommonMinShare float64
}

// DefaultConfig returns production baseline settings
func DefaultConfig() Config {
	return Config{
		TTL:            15 * time.Minute,
		Lookback:       90 * 24 * time.Hour,
		MaxHistory:     200,
		MinSamples:     5,
		CommonMinShare: 0.05,
	}
}

// Store computes and caches per-user behavioral baselines. Cached snapshots
// are immutable; recompute swaps the whole pointer so readers never observe
// a partially updated baseline.
type Store struct {
	cfg     Config
	history HistoryProvider
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.RWMutex
	cache map[uuid.UUID]*cachedBaseline
}

type cachedBaseline struct {
	baseline   *risk.UserBaseline
	computedAt time.Time
}

// New creates a baseline store over the given history provider
func New(cfg Config, history HistoryProvider, logger *zap.Logger) *Store {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = def.MaxHistory
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.CommonMinShare <= 0 {
		cfg.CommonMinShare = def.CommonMinShare
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		cfg:     cfg,
		history: history,
		logger:  logger,
		now:     time.Now,
		cache:   make(map[uuid.UUID]*cachedBaseline),
	}
}

// Get returns the user's baseline, recomputing when the cached snapshot has
// expired. Users with too little history get a baseline marked insufficient,
// never an error. An unreachable history backend is a DataUnavailable error;
// callers degrade rather than fail the evaluation.
func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*risk.UserBaseline, error) {
	if userID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_USER_ID", "user ID must not be nil")
	}

	s.mu.RLock()
	cached, ok := s.cache[userID]
	s.mu.RUnlock()
	if ok && s.now().Sub(cached.computedAt) < s.cfg.TTL {
		return cached.baseline, nil
	}

	history, err := s.history.GetUserHistory(ctx, userID, s.cfg.Lookback, s.cfg.MaxHistory)
	if err != nil {
		// Serve a stale snapshot over nothing when the backend blips
		if ok {
			s.logger.Warn("history backend unavailable, serving stale baseline",
				zap.String("user_id", userID.String()),
				zap.Error(err))
			return cached.baseline, nil
		}
		return nil, errors.NewDataUnavailableError("user_history", "cannot read transaction history").WithCause(err)
	}

	bl := s.compute(userID, history)

	s.mu.Lock()
	s.cache[userID] = &cachedBaseline{baseline: bl, computedAt: s.now()}
	s.mu.Unlock()

	s.logger.Debug("baseline recomputed",
		zap.String("user_id", userID.String()),
		zap.Int("samples", bl.SampleSize),
		zap.Bool("insufficient", bl.Insufficient))
	return bl, nil
}

// Invalidate drops the cached baseline for one user
func (s *Store) Invalidate(userID uuid.UUID) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()
}

// InvalidateAll drops every cached baseline
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[uuid.UUID]*cachedBaseline)
	s.mu.Unlock()
}

// Len returns the number of cached baselines
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

func (s *Store) compute(userID uuid.UUID, history []*transaction.Transaction) *risk.UserBaseline {
	bl := &risk.UserBaseline{
		UserID:     userID,
		SampleSize: len(history),
		ComputedAt: s.now(),
	}

	if len(history) < s.cfg.MinSamples {
		bl.Insufficient = true
		return bl
	}

	amounts := make([]float64, 0, len(history))
	countries := make(map[string]int)
	merchants := make(map[string]int)
	for _, tx := range history {
		amounts = append(amounts, tx.Amount.ToFloat64())
		if tx.Location.Country != "" {
			countries[strings.ToUpper(tx.Location.Country)]++
		}
		if tx.Merchant != "" {
			merchants[strings.ToLower(strings.TrimSpace(tx.Merchant))]++
		}
	}

	bl.MeanAmount = mean(amounts)
	bl.StdDevAmount = stddev(amounts, bl.MeanAmount)
	bl.MedianAmount = median(amounts)

	minCount := int(math.Ceil(s.cfg.CommonMinShare * float64(len(history))))
	if minCount < 2 {
		minCount = 2
	}
	bl.CommonCountries = commonValues(countries, minCount)
	bl.CommonMerchants = commonValues(merchants, minCount)

	return bl
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation
func stddev(xs []float64, mean float64) float64 {
	sum := 0.0
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func median(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func commonValues(counts map[string]int, minCount int) []string {
	var common []string
	for value, count := range counts {
		if count >= minCount {
			common = append(common, value)
		}
	}
	sort.Strings(common)
	return common
}
