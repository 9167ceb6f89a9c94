package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/errors"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/risk"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/transaction"
)

// DefaultMaxHistory bounds per-user stored transactions
const DefaultMaxHistory = 1000

// MemoryStore keeps transactions, verdicts and outcomes in process
// memory. It backs standalone deployments and tests; durable
// deployments substitute a database-backed implementation behind the
// same consumer interfaces.
type MemoryStore struct {
	mu         sync.RWMutex
	history    map[uuid.UUID][]*transaction.Transaction
	verdicts   map[uuid.UUID]*risk.Verdict
	outcomes   map[uuid.UUID]*risk.Outcome
	maxHistory int
	logger     *zap.Logger

	now func() time.Time
}

// Counts summarizes stored volumes for the stats surface
type Counts struct {
	Users        int `json:"users"`
	Transactions int `json:"transactions"`
	Verdicts     int `json:"verdicts"`
	Outcomes     int `json:"outcomes"`
}

// NewMemoryStore creates an empty store. maxHistory <= 0 selects the
// default per-user cap.
func NewMemoryStore(maxHistory int, logger *zap.Logger) *MemoryStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MemoryStore{
		history:    make(map[uuid.UUID][]*transaction.Transaction),
		verdicts:   make(map[uuid.UUID]*risk.Verdict),
		outcomes:   make(map[uuid.UUID]*risk.Outcome),
		maxHistory: maxHistory,
		logger:     logger,
		now:        time.Now,
	}
}

// RecordTransaction appends a transaction to its user's history.
// Re-recording the same transaction ID replaces the earlier entry, so
// replays do not inflate history.
func (s *MemoryStore) RecordTransaction(ctx context.Context, tx *transaction.Transaction) error {
	if tx == nil {
		return errors.ErrNilTransaction
	}
	if tx.UserID == uuid.Nil {
		return errors.NewValidationError("INVALID_USER_ID", "user ID must not be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.history[tx.UserID]
	for i, e := range entries {
		if e.ID == tx.ID {
			entries[i] = tx
			return nil
		}
	}

	entries = append(entries, tx)
	if len(entries) > s.maxHistory {
		// drop oldest by timestamp, not insertion order
		oldest := 0
		for i, e := range entries {
			if e.Timestamp.Before(entries[oldest].Timestamp) {
				oldest = i
			}
		}
		s.logger.Debug("history cap reached, evicting oldest entry",
			zap.String("user_id", tx.UserID.String()),
			zap.String("transaction_id", entries[oldest].ID.String()))
		entries = append(entries[:oldest], entries[oldest+1:]...)
	}
	s.history[tx.UserID] = entries

	return nil
}

// GetUserHistory returns the user's transactions within lookback,
// most recent first, capped at limit. An unknown user yields an empty
// history, not an error.
func (s *MemoryStore) GetUserHistory(ctx context.Context, userID uuid.UUID, lookback time.Duration, limit int) ([]*transaction.Transaction, error) {
	if userID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_USER_ID", "user ID must not be nil")
	}

	s.mu.RLock()
	entries := s.history[userID]
	matched := make([]*transaction.Transaction, 0, len(entries))
	cutoff := s.now().Add(-lookback)
	for _, e := range entries {
		if lookback > 0 && e.Timestamp.Before(cutoff) {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

// SaveVerdict stores the verdict for its transaction, replacing any
// earlier one
func (s *MemoryStore) SaveVerdict(ctx context.Context, v *risk.Verdict) error {
	if v == nil {
		return errors.NewValidationError("NIL_VERDICT", "verdict must not be nil")
	}
	if v.TransactionID == uuid.Nil {
		return errors.NewValidationError("INVALID_TRANSACTION_ID", "verdict transaction ID must not be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts[v.TransactionID] = v
	return nil
}

// GetVerdict returns the stored verdict for a transaction
func (s *MemoryStore) GetVerdict(ctx context.Context, transactionID uuid.UUID) (*risk.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.verdicts[transactionID]
	if !ok {
		return nil, errors.ErrVerdictNotFound
	}
	return v, nil
}

// SaveOutcome stores the ground truth for a transaction
func (s *MemoryStore) SaveOutcome(ctx context.Context, o *risk.Outcome) error {
	if o == nil {
		return errors.NewValidationError("NIL_OUTCOME", "outcome must not be nil")
	}
	if o.TransactionID == uuid.Nil {
		return errors.NewValidationError("INVALID_TRANSACTION_ID", "outcome transaction ID must not be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[o.TransactionID] = o
	return nil
}

// GetOutcome returns the stored ground truth for a transaction
func (s *MemoryStore) GetOutcome(ctx context.Context, transactionID uuid.UUID) (*risk.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.outcomes[transactionID]
	if !ok {
		return nil, errors.NewNotFoundError("outcome")
	}
	return o, nil
}

// Counts reports stored volumes
func (s *MemoryStore) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := Counts{
		Users:    len(s.history),
		Verdicts: len(s.verdicts),
		Outcomes: len(s.outcomes),
	}
	for _, entries := range s.history {
		c.Transactions += len(entries)
	}
	return c
}
