package scoring

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/errors"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/risk"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/transaction"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/values"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/anomaly"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/signals"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/velocity"
)

var fixedEvalTime = time.Date(2025, 3, 7, 14, 30, 0, 0, time.UTC)

func scenarioTx(userID uuid.UUID, amount float64, merchant, country string, hour int) *transaction.Transaction {
	return &transaction.Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    values.MustNewMoneyFromFloat(amount, values.USD),
		Merchant:  merchant,
		Location:  transaction.Location{Country: country},
		Timestamp: time.Date(2025, 3, 7, hour, 12, 0, 0, time.UTC),
	}
}

func establishedBaseline(userID uuid.UUID) *risk.UserBaseline {
	return &risk.UserBaseline{
		UserID:          userID,
		MeanAmount:      45,
		StdDevAmount:    12,
		MedianAmount:    42,
		CommonCountries: []string{"US"},
		CommonMerchants: []string{"whole foods market"},
		SampleSize:      40,
		ComputedAt:      fixedEvalTime,
	}
}

func stubBaselines(bl *risk.UserBaseline, err error) *mockBaselines {
	m := &mockBaselines{}
	m.On("Get", mock.Anything, mock.Anything).Return(bl, err)
	return m
}

func historyUnavailable() *mockBaselines {
	return stubBaselines(nil, errors.NewDataUnavailableError("user_history", "history store offline"))
}

func TestService_Evaluate_HighRiskTransaction(t *testing.T) {
	// A large 3am gambling charge from a country the user has never
	// transacted in: amount, temporal, merchant and geographic factors
	// all fire.
	logger := zaptest.NewLogger(t)
	userID := uuid.New()

	store := &mockDecisionStore{}
	store.On("SaveVerdict", mock.Anything, mock.AnythingOfType("*risk.Verdict")).Return(nil)

	svc, err := NewService(DefaultConfig(),
		velocity.New(velocity.DefaultConfig(), logger),
		stubBaselines(establishedBaseline(userID), nil),
		anomaly.New(anomaly.DefaultConfig(), logger),
		nil, nil, store, logger)
	require.NoError(t, err)

	tx := scenarioTx(userID, 2500, "Lucky Star Casino", "RO", 3)
	verdict, err := svc.Evaluate(context.Background(), tx)
	require.NoError(t, err)
	require.NotNil(t, verdict)

	assert.Equal(t, tx.ID, verdict.TransactionID)
	assert.InDelta(t, 0.828, verdict.OverallScore, 0.001)
	assert.Equal(t, risk.LevelHigh, verdict.Level)
	assert.Equal(t, risk.DecisionDecline, verdict.Decision)
	assert.InDelta(t, 0.872, verdict.Confidence, 0.001)

	for _, name := range []string{risk.FactorAmount, risk.FactorTemporal, risk.FactorMerchant, risk.FactorGeographic} {
		_, ok := verdict.Factor(name)
		assert.True(t, ok, "missing factor %s", name)
	}
	assert.Equal(t, []string{"amount=1.00", "merchant=0.80"}, verdict.ThresholdBreaches)
	store.AssertExpectations(t)
}

func TestService_Evaluate_QuietProfileApproves(t *testing.T) {
	// A modest daytime purchase by a user without enough history: no
	// detector fires and only the quiet-profile factor remains.
	logger := zaptest.NewLogger(t)

	svc, err := NewService(DefaultConfig(),
		velocity.New(velocity.DefaultConfig(), logger),
		historyUnavailable(),
		anomaly.New(anomaly.DefaultConfig(), logger),
		nil, nil, nil, logger)
	require.NoError(t, err)

	tx := scenarioTx(uuid.New(), 50, "Whole Foods Market", "US", 14)
	verdict, err := svc.Evaluate(context.Background(), tx)
	require.NoError(t, err)

	assert.InDelta(t, 0.25, verdict.OverallScore, 1e-9)
	assert.Equal(t, risk.LevelMinimal, verdict.Level)
	assert.Equal(t, risk.DecisionApprove, verdict.Decision)
	assert.InDelta(t, 0.40, verdict.Confidence, 1e-9)

	require.Len(t, verdict.Factors, 1)
	assert.Equal(t, risk.FactorBehavioral, verdict.Factors[0].Name)
	assert.Empty(t, verdict.ThresholdBreaches)
}

func TestService_Evaluate_ValidationFailureDeclinesImmediately(t *testing.T) {
	logger := zaptest.NewLogger(t)
	tracker := velocity.New(velocity.DefaultConfig(), logger)

	// No expectations set: any baseline lookup would fail the test.
	baselines := &mockBaselines{}
	store := &mockDecisionStore{}
	store.On("SaveVerdict", mock.Anything, mock.AnythingOfType("*risk.Verdict")).Return(nil)

	svc, err := NewService(DefaultConfig(), tracker, baselines,
		anomaly.New(anomaly.DefaultConfig(), logger), nil, nil, store, logger)
	require.NoError(t, err)

	tx := scenarioTx(uuid.New(), 50, "Whole Foods Market", "US", 14)
	tx.Amount = values.Zero(values.USD)

	verdict, err := svc.Evaluate(context.Background(), tx)
	require.NoError(t, err)

	assert.Equal(t, risk.LevelCritical, verdict.Level)
	assert.Equal(t, risk.DecisionDecline, verdict.Decision)
	assert.GreaterOrEqual(t, verdict.Confidence, 0.95)
	assert.Equal(t, 1.0, verdict.OverallScore)

	f, ok := verdict.Factor(risk.FactorValidation)
	require.True(t, ok)
	assert.Contains(t, f.Evidence, "amount must be positive")

	assert.Zero(t, tracker.Len(), "invalid transactions must not enter the velocity window")
	baselines.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestService_Evaluate_NilTransaction(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := &mockDecisionStore{}

	svc, err := NewService(DefaultConfig(), nil, nil, nil, nil, nil, store, logger)
	require.NoError(t, err)

	verdict, err := svc.Evaluate(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, uuid.Nil, verdict.TransactionID)
	assert.Equal(t, risk.LevelCritical, verdict.Level)
	assert.Equal(t, risk.DecisionDecline, verdict.Decision)
	store.AssertExpectations(t)
}

func TestService_Evaluate_BurstTriggersVelocityFactor(t *testing.T) {
	logger := zaptest.NewLogger(t)
	clk := &velocity.MockClock{CurrentTime: fixedEvalTime}
	tracker := velocity.New(velocity.Config{
		WindowSpan:    time.Hour,
		MaxEntries:    64,
		InactiveAfter: 24 * time.Hour,
		Clock:         clk,
	}, logger)

	svc, err := NewService(DefaultConfig(), tracker, historyUnavailable(),
		anomaly.New(anomaly.DefaultConfig(), logger), nil, nil, nil, logger)
	require.NoError(t, err)

	userID := uuid.New()
	burstTx := func(minutesAgo int) *transaction.Transaction {
		return &transaction.Transaction{
			ID:        uuid.New(),
			UserID:    userID,
			Amount:    values.MustNewMoneyFromFloat(25, values.USD),
			Merchant:  "Corner Bakery",
			Location:  transaction.Location{Country: "US"},
			Timestamp: fixedEvalTime.Add(-time.Duration(minutesAgo) * time.Minute),
		}
	}

	ctx := context.Background()

	v1, err := svc.Evaluate(ctx, burstTx(3))
	require.NoError(t, err)
	assert.Equal(t, risk.DecisionApprove, v1.Decision)
	_, hasVelocity := v1.Factor(risk.FactorVelocity)
	assert.False(t, hasVelocity, "one transaction is not a burst")

	v2, err := svc.Evaluate(ctx, burstTx(2))
	require.NoError(t, err)
	assert.Equal(t, risk.DecisionApprove, v2.Decision)

	v3, err := svc.Evaluate(ctx, burstTx(1))
	require.NoError(t, err)
	f3, ok := v3.Factor(risk.FactorVelocity)
	require.True(t, ok, "third transaction in ten minutes is a burst")
	assert.InDelta(t, 0.60, f3.Score, 1e-9)
	assert.Equal(t, risk.LevelMedium, v3.Level)
	assert.Equal(t, risk.DecisionFlagReview, v3.Decision)
	_, hasQuiet := v3.Factor(risk.FactorBehavioral)
	assert.False(t, hasQuiet, "quiet-profile factor must not soften a burst")

	v4, err := svc.Evaluate(ctx, burstTx(0))
	require.NoError(t, err)
	f4, ok := v4.Factor(risk.FactorVelocity)
	require.True(t, ok)
	assert.InDelta(t, 0.65, f4.Score, 1e-9)
	assert.Equal(t, risk.DecisionFlagReview, v4.Decision)
}

func TestService_Evaluate_RepeatEvaluationIsIdempotent(t *testing.T) {
	logger := zaptest.NewLogger(t)
	clk := &velocity.MockClock{CurrentTime: fixedEvalTime}
	tracker := velocity.New(velocity.Config{
		WindowSpan:    time.Hour,
		MaxEntries:    64,
		InactiveAfter: 24 * time.Hour,
		Clock:         clk,
	}, logger)

	svc, err := NewService(DefaultConfig(), tracker, historyUnavailable(),
		anomaly.New(anomaly.DefaultConfig(), logger), nil, nil, nil, logger)
	require.NoError(t, err)

	tx := &transaction.Transaction{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Amount:    values.MustNewMoneyFromFloat(50, values.USD),
		Merchant:  "Whole Foods Market",
		Location:  transaction.Location{Country: "US"},
		Timestamp: fixedEvalTime,
	}

	ctx := context.Background()
	v1, err := svc.Evaluate(ctx, tx)
	require.NoError(t, err)
	v2, err := svc.Evaluate(ctx, tx)
	require.NoError(t, err)
	v3, err := svc.Evaluate(ctx, tx)
	require.NoError(t, err)

	assert.Equal(t, v1, v2, "re-evaluating an unchanged transaction must not change the verdict")
	assert.Equal(t, v2, v3)
	assert.Equal(t, 1, tracker.CountSince(tx.UserID, 10*time.Minute),
		"repeat evaluations must not inflate the velocity count")
}

func TestService_Evaluate_SignalsJoinTheFactorSet(t *testing.T) {
	logger := zaptest.NewLogger(t)

	gw := signals.NewGateway(nil, 500*time.Millisecond, logger)
	require.NoError(t, gw.Register(&stubSource{
		name: "geolocation",
		kind: signals.KindGeolocation,
		payload: signals.Payload{
			Score:      0.9,
			Confidence: 0.9,
			Evidence:   []string{"ip is a known vpn exit"},
		},
	}, signals.SourceConfig{FailureThreshold: 3, Cooldown: time.Second}))

	svc, err := NewService(DefaultConfig(),
		velocity.New(velocity.DefaultConfig(), logger),
		historyUnavailable(),
		anomaly.New(anomaly.DefaultConfig(), logger),
		gw, nil, nil, logger)
	require.NoError(t, err)

	verdict, err := svc.Evaluate(context.Background(), scenarioTx(uuid.New(), 50, "Whole Foods Market", "US", 14))
	require.NoError(t, err)

	geo, ok := verdict.Factor("geolocation")
	require.True(t, ok)
	assert.InDelta(t, 0.9, geo.Score, 1e-9)
	assert.Contains(t, geo.Evidence, "ip is a known vpn exit")

	_, ok = verdict.Factor(risk.FactorBehavioral)
	assert.True(t, ok, "quiet local profile still contributes")

	assert.InDelta(t, 0.7, verdict.OverallScore, 0.001)
	assert.Equal(t, risk.DecisionFlagReview, verdict.Decision)
}

func TestService_Evaluate_SignalFailuresNeverBlockVerdicts(t *testing.T) {
	logger := zaptest.NewLogger(t)

	gw := signals.NewGateway(nil, 500*time.Millisecond, logger)
	require.NoError(t, gw.Register(&stubSource{
		name: "geolocation",
		kind: signals.KindGeolocation,
		err:  stderrors.New("upstream returned HTTP 500"),
	}, signals.SourceConfig{FailureThreshold: 3, Cooldown: time.Second}))

	svc, err := NewService(DefaultConfig(),
		velocity.New(velocity.DefaultConfig(), logger),
		historyUnavailable(),
		anomaly.New(anomaly.DefaultConfig(), logger),
		gw, nil, nil, logger)
	require.NoError(t, err)

	verdict, err := svc.Evaluate(context.Background(), scenarioTx(uuid.New(), 50, "Whole Foods Market", "US", 14))
	require.NoError(t, err, "a dead signal source must not fail evaluation")

	_, ok := verdict.Factor("geolocation")
	assert.False(t, ok)
	assert.Equal(t, risk.DecisionApprove, verdict.Decision)
}

func TestService_EvaluateBatch_PreservesOrder(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cfg := DefaultConfig()
	cfg.MaxConcurrent = 2

	svc, err := NewService(cfg,
		velocity.New(velocity.DefaultConfig(), logger),
		historyUnavailable(),
		anomaly.New(anomaly.DefaultConfig(), logger),
		nil, nil, nil, logger)
	require.NoError(t, err)

	txs := make([]*transaction.Transaction, 6)
	for i := range txs {
		txs[i] = scenarioTx(uuid.New(), 40, "Corner Bakery", "US", 14)
	}
	txs[2].Amount = values.Zero(values.USD)

	verdicts, err := svc.EvaluateBatch(context.Background(), txs)
	require.NoError(t, err)
	require.Len(t, verdicts, len(txs))

	for i, v := range verdicts {
		require.NotNil(t, v, "slot %d", i)
		assert.Equal(t, txs[i].ID, v.TransactionID, "slot %d", i)
	}
	assert.Equal(t, risk.DecisionDecline, verdicts[2].Decision)
	assert.Equal(t, risk.DecisionApprove, verdicts[0].Decision)
	assert.Equal(t, risk.DecisionApprove, verdicts[5].Decision)
}

func TestService_EvaluateBatch_Empty(t *testing.T) {
	svc, err := NewService(DefaultConfig(), nil, nil, nil, nil, nil, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	verdicts, err := svc.EvaluateBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, verdicts)
}

func TestService_RecordOutcome(t *testing.T) {
	storedVerdict := &risk.Verdict{
		TransactionID: uuid.New(),
		OverallScore:  0.83,
		Level:         risk.LevelHigh,
		Decision:      risk.DecisionDecline,
		Confidence:    0.87,
		Factors: []risk.Factor{
			{Name: risk.FactorAmount, Score: 1.0, Confidence: 0.95, Weight: 0.25},
			{Name: risk.FactorMerchant, Score: 0.85, Confidence: 0.9, Weight: 0.20},
			{Name: risk.FactorTemporal, Score: 0.7, Confidence: 0.8, Weight: 0.15},
		},
	}

	t.Run("backfills decision and patterns from the stored verdict", func(t *testing.T) {
		store := &mockDecisionStore{}
		store.On("GetVerdict", mock.Anything, storedVerdict.TransactionID).Return(storedVerdict, nil)
		store.On("SaveOutcome", mock.Anything, mock.AnythingOfType("*risk.Outcome")).Return(nil)

		svc, err := NewService(DefaultConfig(), nil, nil, nil, nil, nil, store, zaptest.NewLogger(t))
		require.NoError(t, err)

		outcome := &risk.Outcome{TransactionID: storedVerdict.TransactionID, Label: risk.LabelFraud}
		require.NoError(t, svc.RecordOutcome(context.Background(), outcome))

		assert.Equal(t, risk.DecisionDecline, outcome.Decision)
		assert.Equal(t, []string{risk.FactorAmount, risk.FactorMerchant}, outcome.PatternIDs,
			"only factors at or above the breach score attribute the outcome")
		assert.False(t, outcome.ObservedAt.IsZero())

		perf := svc.PatternPerformance()
		require.Len(t, perf, 2)
		assert.Equal(t, 1, perf[0].TruePositives)
		assert.Equal(t, 1, perf[1].TruePositives)
		store.AssertExpectations(t)
	})

	t.Run("explicit decision and patterns skip the lookup", func(t *testing.T) {
		store := &mockDecisionStore{}
		store.On("SaveOutcome", mock.Anything, mock.AnythingOfType("*risk.Outcome")).Return(nil)

		svc, err := NewService(DefaultConfig(), nil, nil, nil, nil, nil, store, zaptest.NewLogger(t))
		require.NoError(t, err)

		outcome := &risk.Outcome{
			TransactionID: uuid.New(),
			Label:         risk.LabelFraud,
			Decision:      risk.DecisionApprove,
			PatternIDs:    []string{risk.FactorVelocity},
		}
		require.NoError(t, svc.RecordOutcome(context.Background(), outcome))

		perf := svc.PatternPerformance()
		require.Len(t, perf, 1)
		assert.Equal(t, risk.FactorVelocity, perf[0].PatternID)
		assert.Equal(t, 1, perf[0].FalseNegatives, "approved fraud is a miss")
		store.AssertExpectations(t)
	})

	t.Run("rejects unlabeled outcomes", func(t *testing.T) {
		svc, err := NewService(DefaultConfig(), nil, nil, nil, nil, nil, nil, zaptest.NewLogger(t))
		require.NoError(t, err)

		err = svc.RecordOutcome(context.Background(), &risk.Outcome{TransactionID: uuid.New()})
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))

		require.Error(t, svc.RecordOutcome(context.Background(), nil))
	})

	t.Run("unknown transaction without a decision is rejected", func(t *testing.T) {
		store := &mockDecisionStore{}
		store.On("GetVerdict", mock.Anything, mock.Anything).Return(nil, errors.NewNotFoundError("verdict"))

		svc, err := NewService(DefaultConfig(), nil, nil, nil, nil, nil, store, zaptest.NewLogger(t))
		require.NoError(t, err)

		err = svc.RecordOutcome(context.Background(), &risk.Outcome{
			TransactionID: uuid.New(),
			Label:         risk.LabelLegitimate,
		})
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("persistence failure keeps the learner untouched", func(t *testing.T) {
		store := &mockDecisionStore{}
		store.On("SaveOutcome", mock.Anything, mock.AnythingOfType("*risk.Outcome")).
			Return(stderrors.New("disk full"))

		svc, err := NewService(DefaultConfig(), nil, nil, nil, nil, nil, store, zaptest.NewLogger(t))
		require.NoError(t, err)

		err = svc.RecordOutcome(context.Background(), &risk.Outcome{
			TransactionID: uuid.New(),
			Label:         risk.LabelFraud,
			Decision:      risk.DecisionDecline,
			PatternIDs:    []string{risk.FactorAmount},
		})
		require.Error(t, err)
		assert.Empty(t, svc.PatternPerformance())
	})
}

func TestService_UpdateThresholds(t *testing.T) {
	logger := zaptest.NewLogger(t)

	svc, err := NewService(DefaultConfig(),
		velocity.New(velocity.DefaultConfig(), logger),
		historyUnavailable(),
		anomaly.New(anomaly.DefaultConfig(), logger),
		nil, nil, nil, logger)
	require.NoError(t, err)

	ctx := context.Background()
	before, err := svc.Evaluate(ctx, scenarioTx(uuid.New(), 50, "Whole Foods Market", "US", 14))
	require.NoError(t, err)
	assert.Equal(t, risk.DecisionApprove, before.Decision)

	strict := risk.LevelThresholds{Low: 0.1, Medium: 0.2, High: 0.24, Critical: 0.9}
	require.NoError(t, svc.UpdateThresholds(strict))
	assert.Equal(t, strict, svc.Thresholds())

	after, err := svc.Evaluate(ctx, scenarioTx(uuid.New(), 50, "Whole Foods Market", "US", 14))
	require.NoError(t, err)
	assert.Equal(t, risk.LevelHigh, after.Level, "the same quiet profile now clears the high bar")
	assert.Equal(t, risk.DecisionDecline, after.Decision)

	err = svc.UpdateThresholds(risk.LevelThresholds{Low: 0.6, Medium: 0.3, High: 0.8, Critical: 0.9})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
	assert.Equal(t, strict, svc.Thresholds(), "a rejected update must not change thresholds")
}

func TestService_StartStop(t *testing.T) {
	logger := zaptest.NewLogger(t)
	tracker := velocity.New(velocity.Config{
		WindowSpan:    time.Hour,
		MaxEntries:    64,
		InactiveAfter: time.Millisecond,
	}, logger)

	cfg := DefaultConfig()
	cfg.PruneInterval = 10 * time.Millisecond

	svc, err := NewService(cfg, tracker, historyUnavailable(),
		anomaly.New(anomaly.DefaultConfig(), logger), nil, nil, nil, logger)
	require.NoError(t, err)

	_, err = svc.Evaluate(context.Background(), scenarioTx(uuid.New(), 50, "Whole Foods Market", "US", 14))
	require.NoError(t, err)
	require.Equal(t, 1, tracker.Len())

	svc.Start()
	assert.Eventually(t, func() bool { return tracker.Len() == 0 },
		time.Second, 10*time.Millisecond, "inactive windows should be pruned")

	svc.Stop()
	svc.Stop() // idempotent
}

func TestService_StatsDelegation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("without a gateway", func(t *testing.T) {
		svc, err := NewService(DefaultConfig(), nil, nil, nil, nil, nil, nil, logger)
		require.NoError(t, err)

		assert.Equal(t, signals.CacheStats{}, svc.CacheStats())
		assert.Nil(t, svc.BreakerStats())
	})

	t.Run("with a gateway", func(t *testing.T) {
		gw := signals.NewGateway(nil, 500*time.Millisecond, logger)
		require.NoError(t, gw.Register(&stubSource{
			name:    "identity",
			kind:    signals.KindIdentity,
			payload: signals.Payload{Score: 0.2, Confidence: 0.8},
		}, signals.SourceConfig{FailureThreshold: 3, Cooldown: time.Second}))

		svc, err := NewService(DefaultConfig(), nil, historyUnavailable(),
			nil, gw, nil, nil, logger)
		require.NoError(t, err)

		_, err = svc.Evaluate(context.Background(), scenarioTx(uuid.New(), 50, "Whole Foods Market", "US", 14))
		require.NoError(t, err)

		stats := svc.BreakerStats()
		require.Len(t, stats, 1)
		assert.Equal(t, "identity", stats[0].Source)
	})
}

// Mock implementations

type mockBaselines struct {
	mock.Mock
}

func (m *mockBaselines) Get(ctx context.Context, userID uuid.UUID) (*risk.UserBaseline, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*risk.UserBaseline), args.Error(1)
}

type mockDecisionStore struct {
	mock.Mock
}

func (m *mockDecisionStore) SaveVerdict(ctx context.Context, v *risk.Verdict) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *mockDecisionStore) GetVerdict(ctx context.Context, transactionID uuid.UUID) (*risk.Verdict, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*risk.Verdict), args.Error(1)
}

func (m *mockDecisionStore) SaveOutcome(ctx context.Context, o *risk.Outcome) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

type stubSource struct {
	name    string
	kind    signals.Kind
	payload signals.Payload
	err     error
}

func (s *stubSource) Name() string       { return s.name }
func (s *stubSource) Kind() signals.Kind { return s.kind }

func (s *stubSource) Fetch(ctx context.Context, req signals.Request) (signals.Payload, error) {
	if s.err != nil {
		return signals.Payload{}, s.err
	}
	return s.payload, nil
}
