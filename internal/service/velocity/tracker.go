package velocity

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/risk"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/transaction"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/values"
)

// Config controls window retention
type Config struct {
	// WindowSpan is the longest lookback any query can ask for
	WindowSpan time.Duration
	// MaxEntries bounds per-user memory; oldest entries drop first
	MaxEntries int
	// InactiveAfter is how long an untouched user window survives a prune
	InactiveAfter time.Duration
	Clock         Clock
}

// DefaultConfig returns production retention settings
func DefaultConfig() Config {
	return Config{
		WindowSpan:    time.Hour,
		MaxEntries:    256,
		InactiveAfter: 24 * time.Hour,
	}
}

// Tracker maintains sliding per-user transaction windows in memory.
// All methods are safe for concurrent use; operations on the same user are
// serialized, different users never contend.
type Tracker struct {
	cfg    Config
	clock  Clock
	logger *zap.Logger

	mu      sync.RWMutex
	windows map[uuid.UUID]*window
}

type entry struct {
	id       uuid.UUID
	at       time.Time
	amount   decimal.Decimal
	currency string
	merchant string
}

type window struct {
	mu       sync.Mutex
	entries  []entry
	lastSeen time.Time
}

// New creates a tracker with the given retention config
func New(cfg Config, logger *zap.Logger) *Tracker {
	if cfg.WindowSpan <= 0 {
		cfg.WindowSpan = DefaultConfig().WindowSpan
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	if cfg.InactiveAfter <= 0 {
		cfg.InactiveAfter = DefaultConfig().InactiveAfter
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Tracker{
		cfg:     cfg,
		clock:   cfg.Clock,
		logger:  logger,
		windows: make(map[uuid.UUID]*window),
	}
}

// Record appends a transaction to its user's window. Recording the same
// transaction ID twice while it is still inside the window is a no-op, so
// re-evaluating a transaction does not inflate its own velocity.
func (t *Tracker) Record(tx *transaction.Transaction) {
	if tx == nil || tx.UserID == uuid.Nil {
		return
	}

	w := t.getOrCreateWindow(tx.UserID)
	now := t.clock.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now, t.cfg.WindowSpan, t.cfg.MaxEntries-1)
	for _, e := range w.entries {
		if e.id == tx.ID {
			w.lastSeen = now
			return
		}
	}

	w.entries = append(w.entries, entry{
		id:       tx.ID,
		at:       tx.Timestamp,
		amount:   tx.Amount.Amount(),
		currency: tx.Amount.Currency(),
		merchant: strings.ToLower(strings.TrimSpace(tx.Merchant)),
	})
	w.lastSeen = now
}

// CountSince returns how many transactions the user made within d
func (t *Tracker) CountSince(userID uuid.UUID, d time.Duration) int {
	return t.StatsSince(userID, d).Count
}

// SumSince returns the user's total spend within d. Mixed currencies are
// summed by magnitude; normalization happens upstream of the engine.
func (t *Tracker) SumSince(userID uuid.UUID, d time.Duration) values.Money {
	return t.StatsSince(userID, d).Total
}

// DistinctMerchantsSince returns how many distinct merchants the user paid
// within d
func (t *Tracker) DistinctMerchantsSince(userID uuid.UUID, d time.Duration) int {
	return t.StatsSince(userID, d).DistinctMerchants
}

// StatsSince computes count, sum and distinct merchants for one lookback in
// a single pass. Lookbacks longer than the window span are capped.
func (t *Tracker) StatsSince(userID uuid.UUID, d time.Duration) risk.VelocityStats {
	if d <= 0 || d > t.cfg.WindowSpan {
		d = t.cfg.WindowSpan
	}

	stats := risk.VelocityStats{Window: d, Total: values.Zero(values.USD)}

	t.mu.RLock()
	w, ok := t.windows[userID]
	t.mu.RUnlock()
	if !ok {
		return stats
	}

	now := t.clock.Now()
	cutoff := now.Add(-d)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now, t.cfg.WindowSpan, t.cfg.MaxEntries)

	sum := decimal.Zero
	currency := values.USD
	merchants := make(map[string]struct{})
	for _, e := range w.entries {
		if !e.at.After(cutoff) {
			continue
		}
		stats.Count++
		sum = sum.Add(e.amount)
		currency = e.currency
		merchants[e.merchant] = struct{}{}
	}

	stats.Total = values.MustNewMoney(sum, currency)
	stats.DistinctMerchants = len(merchants)
	return stats
}

// PruneInactive drops windows untouched for longer than InactiveAfter and
// returns how many were removed
func (t *Tracker) PruneInactive() int {
	now := t.clock.Now()
	cutoff := now.Add(-t.cfg.InactiveAfter)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for userID, w := range t.windows {
		w.mu.Lock()
		idle := w.lastSeen.Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(t.windows, userID)
			removed++
		}
	}

	if removed > 0 {
		t.logger.Debug("pruned inactive velocity windows",
			zap.Int("removed", removed),
			zap.Int("remaining", len(t.windows)))
	}
	return removed
}

// Len returns the number of tracked users
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.windows)
}

func (t *Tracker) getOrCreateWindow(userID uuid.UUID) *window {
	t.mu.RLock()
	w, ok := t.windows[userID]
	t.mu.RUnlock()
	if ok {
		return w
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Re-check after acquiring the write lock
	if w, ok := t.windows[userID]; ok {
		return w
	}

	w = &window{}
	t.windows[userID] = w
	return w
}

// evict drops expired entries and trims to maxEntries. Caller holds w.mu.
func (w *window) evict(now time.Time, span time.Duration, maxEntries int) {
	expiry := now.Add(-span)

	keep := w.entries[:0]
	for _, e := range w.entries {
		if e.at.After(expiry) {
			keep = append(keep, e)
		}
	}
	w.entries = keep

	if maxEntries > 0 && len(w.entries) > maxEntries {
		overflow := len(w.entries) - maxEntries
		w.entries = append(w.entries[:0], w.entries[overflow:]...)
	}
}
