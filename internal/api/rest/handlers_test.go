package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/errors"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/risk"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/transaction"
	"github.com/paygate-labs/transaction-risk-engine/internal/infrastructure/repository"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/feedback"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/signals"
)

// Test helpers

func newTestRouter(t *testing.T, svc *mockScoringService, store DecisionReader, breakers BreakerAdmin) http.Handler {
	t.Helper()
	return setupRoutes(NewHandler(svc, store, breakers, nil, "test", zaptest.NewLogger(t)))
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case string:
		req = httptest.NewRequest(method, path, strings.NewReader(b))
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(buf))
	}
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), "body: %s", w.Body.String())
	return m
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return resp.Error.Code
}

func verdictFixture(txID uuid.UUID) *risk.Verdict {
	return &risk.Verdict{
		TransactionID: txID,
		OverallScore:  0.83,
		Level:         risk.LevelHigh,
		Decision:      risk.DecisionDecline,
		Confidence:    0.87,
		Factors: []risk.Factor{
			{Name: risk.FactorAmount, Score: 0.9, Confidence: 0.9, Weight: 0.25},
			{Name: risk.FactorVelocity, Score: 0.7, Confidence: 0.8, Weight: 0.2},
		},
		ThresholdBreaches: []string{risk.FormatBreach(risk.FactorAmount, 0.9)},
	}
}

func evaluatePayload(userID string) EvaluateRequest {
	return EvaluateRequest{
		UserID:   userID,
		Amount:   120.50,
		Currency: "USD",
		Merchant: "Corner Coffee",
		Category: "dining",
		Location: LocationPayload{Country: "US", City: "Portland"},
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	userID := uuid.New()
	txID := uuid.New()

	tests := []struct {
		name       string
		body       any
		setup      func(svc *mockScoringService)
		wantStatus int
		wantCode   string
		check      func(t *testing.T, w *httptest.ResponseRecorder)
	}{
		{
			name: "well formed transaction is scored",
			body: func() EvaluateRequest {
				p := evaluatePayload(userID.String())
				p.TransactionID = txID.String()
				return p
			}(),
			setup: func(svc *mockScoringService) {
				svc.On("Evaluate", mock.Anything, mock.MatchedBy(func(tx *transaction.Transaction) bool {
					return tx.ID == txID && tx.UserID == userID && tx.Merchant == "Corner Coffee"
				})).Return(verdictFixture(txID), nil)
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				body := decodeMap(t, w)
				assert.Equal(t, txID.String(), body["transaction_id"])
				assert.Equal(t, "high", body["risk_level"])
				assert.Equal(t, "decline", body["decision"])
				assert.InDelta(t, 0.83, body["overall_score"], 1e-9)
			},
		},
		{
			name:       "malformed json is rejected",
			body:       `{"user_id": "truncated`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_JSON",
		},
		{
			name:       "missing user id is rejected",
			body:       map[string]any{"amount": 10.0},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "non uuid user id is rejected",
			body:       map[string]any{"user_id": "not-a-uuid", "amount": 10.0},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "unknown field is rejected",
			body:       `{"user_id": "` + userID.String() + `", "amout": 10}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name: "malformed currency is rejected",
			body: func() EvaluateRequest {
				p := evaluatePayload(userID.String())
				p.Currency = "DOLLARS"
				return p
			}(),
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockScoringService{}
			if tt.setup != nil {
				tt.setup(svc)
			}
			router := newTestRouter(t, svc, nil, nil)

			w := doRequest(t, router, http.MethodPost, "/v1/evaluations", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code, "body: %s", w.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, w))
			}
			if tt.check != nil {
				tt.check(t, w)
			}
			svc.AssertExpectations(t)
		})
	}
}

// An incomplete transaction is a scoring matter, not a transport one: the
// request still reaches the service and comes back as a decline verdict.
func TestEvaluateIncompleteTransactionStillGetsVerdict(t *testing.T) {
	userID := uuid.New()

	declined := &risk.Verdict{
		TransactionID: uuid.New(),
		OverallScore:  1.0,
		Level:         risk.LevelCritical,
		Decision:      risk.DecisionDecline,
		Confidence:    0.95,
		Factors: []risk.Factor{
			{Name: risk.FactorValidation, Score: 1.0, Confidence: 0.95, Weight: 1.0,
				Evidence: []string{"merchant is required", "amount must be positive"}},
		},
	}

	svc := &mockScoringService{}
	svc.On("Evaluate", mock.Anything, mock.MatchedBy(func(tx *transaction.Transaction) bool {
		return tx.Merchant == "" && tx.UserID == userID
	})).Return(declined, nil)
	router := newTestRouter(t, svc, nil, nil)

	w := doRequest(t, router, http.MethodPost, "/v1/evaluations", map[string]any{
		"user_id": userID.String(),
		"amount":  -50.0,
	})

	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	body := decodeMap(t, w)
	assert.Equal(t, "decline", body["decision"])

	factors := body["factors"].([]any)
	require.Len(t, factors, 1)
	assert.Equal(t, "validation", factors[0].(map[string]any)["name"])
	svc.AssertExpectations(t)
}

func TestEvaluateDeadlineMapsToTimeout(t *testing.T) {
	svc := &mockScoringService{}
	svc.On("Evaluate", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)
	router := newTestRouter(t, svc, nil, nil)

	w := doRequest(t, router, http.MethodPost, "/v1/evaluations", evaluatePayload(uuid.NewString()))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "REQUEST_TIMEOUT", errorCode(t, w))
	svc.AssertExpectations(t)
}

func TestEvaluateBatchEndpoint(t *testing.T) {
	t.Run("verdicts come back in request order", func(t *testing.T) {
		ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
		payloads := make([]EvaluateRequest, len(ids))
		verdicts := make([]*risk.Verdict, len(ids))
		for i, id := range ids {
			p := evaluatePayload(uuid.NewString())
			p.TransactionID = id.String()
			payloads[i] = p
			verdicts[i] = verdictFixture(id)
		}

		svc := &mockScoringService{}
		svc.On("EvaluateBatch", mock.Anything, mock.MatchedBy(func(txs []*transaction.Transaction) bool {
			if len(txs) != len(ids) {
				return false
			}
			for i, tx := range txs {
				if tx.ID != ids[i] {
					return false
				}
			}
			return true
		})).Return(verdicts, nil)
		router := newTestRouter(t, svc, nil, nil)

		w := doRequest(t, router, http.MethodPost, "/v1/evaluations/batch",
			BatchEvaluateRequest{Transactions: payloads})

		require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

		var resp BatchEvaluateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Verdicts, len(ids))
		for i, v := range resp.Verdicts {
			assert.Equal(t, ids[i], v.TransactionID)
		}
		svc.AssertExpectations(t)
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		svc := &mockScoringService{}
		router := newTestRouter(t, svc, nil, nil)

		w := doRequest(t, router, http.MethodPost, "/v1/evaluations/batch",
			BatchEvaluateRequest{Transactions: []EvaluateRequest{}})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
		svc.AssertExpectations(t)
	})

	t.Run("one bad entry rejects the whole batch", func(t *testing.T) {
		svc := &mockScoringService{}
		router := newTestRouter(t, svc, nil, nil)

		w := doRequest(t, router, http.MethodPost, "/v1/evaluations/batch",
			BatchEvaluateRequest{Transactions: []EvaluateRequest{
				evaluatePayload(uuid.NewString()),
				evaluatePayload("not-a-uuid"),
			}})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
		svc.AssertExpectations(t)
	})
}

func TestGetVerdictEndpoint(t *testing.T) {
	txID := uuid.New()

	t.Run("stored verdict is returned", func(t *testing.T) {
		store := &mockDecisionReader{}
		store.On("GetVerdict", mock.Anything, txID).Return(verdictFixture(txID), nil)
		router := newTestRouter(t, &mockScoringService{}, store, nil)

		w := doRequest(t, router, http.MethodGet, "/v1/verdicts/"+txID.String(), nil)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeMap(t, w)
		assert.Equal(t, txID.String(), body["transaction_id"])
		store.AssertExpectations(t)
	})

	t.Run("unknown transaction is a 404", func(t *testing.T) {
		store := &mockDecisionReader{}
		store.On("GetVerdict", mock.Anything, txID).Return(nil, errors.ErrVerdictNotFound)
		router := newTestRouter(t, &mockScoringService{}, store, nil)

		w := doRequest(t, router, http.MethodGet, "/v1/verdicts/"+txID.String(), nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "RESOURCE_NOT_FOUND", errorCode(t, w))
		store.AssertExpectations(t)
	})

	t.Run("non uuid id is a 400", func(t *testing.T) {
		router := newTestRouter(t, &mockScoringService{}, &mockDecisionReader{}, nil)

		w := doRequest(t, router, http.MethodGet, "/v1/verdicts/abc123", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_TRANSACTION_ID", errorCode(t, w))
	})

	t.Run("no store behaves as not found", func(t *testing.T) {
		router := newTestRouter(t, &mockScoringService{}, nil, nil)

		w := doRequest(t, router, http.MethodGet, "/v1/verdicts/"+txID.String(), nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRecordOutcomeEndpoint(t *testing.T) {
	txID := uuid.New()

	t.Run("labeled outcome is accepted", func(t *testing.T) {
		svc := &mockScoringService{}
		svc.On("RecordOutcome", mock.Anything, mock.MatchedBy(func(o *risk.Outcome) bool {
			return o.TransactionID == txID && o.Label == risk.LabelFraud
		})).Return(nil)
		router := newTestRouter(t, svc, nil, nil)

		w := doRequest(t, router, http.MethodPost, "/v1/outcomes", OutcomeRequest{
			TransactionID: txID.String(),
			Label:         "fraud",
			Decision:      "approve",
		})

		require.Equal(t, http.StatusAccepted, w.Code, "body: %s", w.Body.String())
		body := decodeMap(t, w)
		assert.Equal(t, "fraud", body["label"])
		assert.Equal(t, txID.String(), body["transaction_id"])
		svc.AssertExpectations(t)
	})

	t.Run("unknown label is rejected", func(t *testing.T) {
		svc := &mockScoringService{}
		router := newTestRouter(t, svc, nil, nil)

		w := doRequest(t, router, http.MethodPost, "/v1/outcomes", OutcomeRequest{
			TransactionID: txID.String(),
			Label:         "suspicious",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
		svc.AssertExpectations(t)
	})
}

func TestThresholdEndpoints(t *testing.T) {
	t.Run("current thresholds are served", func(t *testing.T) {
		svc := &mockScoringService{}
		svc.On("Thresholds").Return(risk.DefaultLevelThresholds())
		router := newTestRouter(t, svc, nil, nil)

		w := doRequest(t, router, http.MethodGet, "/v1/thresholds", nil)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeMap(t, w)
		assert.InDelta(t, 0.3, body["low"], 1e-9)
		assert.InDelta(t, 0.9, body["critical"], 1e-9)
		svc.AssertExpectations(t)
	})

	t.Run("replacement thresholds are applied and echoed", func(t *testing.T) {
		updated := risk.LevelThresholds{Low: 0.25, Medium: 0.55, High: 0.75, Critical: 0.92}

		svc := &mockScoringService{}
		svc.On("UpdateThresholds", updated).Return(nil)
		svc.On("Thresholds").Return(updated)
		router := newTestRouter(t, svc, nil, nil)

		w := doRequest(t, router, http.MethodPut, "/v1/thresholds", ThresholdsRequest{
			Low: 0.25, Medium: 0.55, High: 0.75, Critical: 0.92,
		})

		require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
		body := decodeMap(t, w)
		assert.InDelta(t, 0.75, body["high"], 1e-9)
		svc.AssertExpectations(t)
	})

	t.Run("non monotonic thresholds are the caller's fault", func(t *testing.T) {
		svc := &mockScoringService{}
		svc.On("UpdateThresholds", mock.Anything).
			Return(errors.NewConfigurationError("thresholds", "thresholds must increase from low to critical"))
		router := newTestRouter(t, svc, nil, nil)

		w := doRequest(t, router, http.MethodPut, "/v1/thresholds", ThresholdsRequest{
			Low: 0.8, Medium: 0.6, High: 0.4, Critical: 0.9,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_THRESHOLDS", errorCode(t, w))
		svc.AssertExpectations(t)
	})

	t.Run("out of range threshold never reaches the service", func(t *testing.T) {
		svc := &mockScoringService{}
		router := newTestRouter(t, svc, nil, nil)

		w := doRequest(t, router, http.MethodPut, "/v1/thresholds", ThresholdsRequest{
			Low: 0, Medium: 0.6, High: 0.8, Critical: 0.9,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
		svc.AssertExpectations(t)
	})
}

func TestStatsEndpoint(t *testing.T) {
	svc := &mockScoringService{}
	svc.On("CacheStats").Return(signals.CacheStats{Hits: 42, Misses: 7, Stores: 40})
	svc.On("BreakerStats").Return([]signals.SourceBreaker{
		{Source: "geolocation", Snapshot: signals.Snapshot{State: "open", ConsecutiveFailures: 5, Opens: 2}},
	})
	svc.On("Thresholds").Return(risk.DefaultLevelThresholds())
	svc.On("PatternPerformance").Return([]feedback.PatternPerformance{{PatternID: "amount"}})
	svc.On("Recommendations").Return([]feedback.Recommendation(nil))

	store := &mockDecisionReader{}
	store.On("Counts").Return(repository.Counts{Users: 3, Transactions: 12, Verdicts: 12, Outcomes: 4})

	router := newTestRouter(t, svc, store, nil)

	w := doRequest(t, router, http.MethodGet, "/v1/stats", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.Cache.Hits)
	require.Len(t, resp.Breakers, 1)
	assert.Equal(t, "open", resp.Breakers[0].State)
	assert.Equal(t, 12, resp.Store.Verdicts)
	assert.Equal(t, 1, resp.TrackedPatterns)
	assert.Equal(t, 0, resp.PendingRecommendations)
	svc.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestResetBreakerEndpoint(t *testing.T) {
	t.Run("known source closes", func(t *testing.T) {
		breakers := &mockBreakerAdmin{}
		breakers.On("ResetBreaker", "geolocation").Return(nil)
		router := newTestRouter(t, &mockScoringService{}, nil, breakers)

		w := doRequest(t, router, http.MethodPost, "/v1/breakers/geolocation/reset", nil)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeMap(t, w)
		assert.Equal(t, "closed", body["state"])
		breakers.AssertExpectations(t)
	})

	t.Run("unknown source is a 404", func(t *testing.T) {
		breakers := &mockBreakerAdmin{}
		breakers.On("ResetBreaker", "nonexistent").Return(assert.AnError)
		router := newTestRouter(t, &mockScoringService{}, nil, breakers)

		w := doRequest(t, router, http.MethodPost, "/v1/breakers/nonexistent/reset", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "RESOURCE_NOT_FOUND", errorCode(t, w))
		breakers.AssertExpectations(t)
	})
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, &mockScoringService{}, nil, nil)

	t.Run("liveness", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/healthz", nil)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeMap(t, w)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "test", body["version"])
	})

	t.Run("readiness reports uptime", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/readyz", nil)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeMap(t, w)
		assert.Equal(t, "ready", body["status"])
		assert.Contains(t, body, "uptime")
	})
}

// Mock implementations

type mockScoringService struct {
	mock.Mock
}

func (m *mockScoringService) Evaluate(ctx context.Context, tx *transaction.Transaction) (*risk.Verdict, error) {
	args := m.Called(ctx, tx)
	var v *risk.Verdict
	if got := args.Get(0); got != nil {
		v = got.(*risk.Verdict)
	}
	return v, args.Error(1)
}

func (m *mockScoringService) EvaluateBatch(ctx context.Context, txs []*transaction.Transaction) ([]*risk.Verdict, error) {
	args := m.Called(ctx, txs)
	var vs []*risk.Verdict
	if got := args.Get(0); got != nil {
		vs = got.([]*risk.Verdict)
	}
	return vs, args.Error(1)
}

func (m *mockScoringService) RecordOutcome(ctx context.Context, outcome *risk.Outcome) error {
	return m.Called(ctx, outcome).Error(0)
}

func (m *mockScoringService) PatternPerformance() []feedback.PatternPerformance {
	args := m.Called()
	if got := args.Get(0); got != nil {
		return got.([]feedback.PatternPerformance)
	}
	return nil
}

func (m *mockScoringService) Recommendations() []feedback.Recommendation {
	args := m.Called()
	if got := args.Get(0); got != nil {
		return got.([]feedback.Recommendation)
	}
	return nil
}

func (m *mockScoringService) UpdateThresholds(t risk.LevelThresholds) error {
	return m.Called(t).Error(0)
}

func (m *mockScoringService) Thresholds() risk.LevelThresholds {
	return m.Called().Get(0).(risk.LevelThresholds)
}

func (m *mockScoringService) CacheStats() signals.CacheStats {
	return m.Called().Get(0).(signals.CacheStats)
}

func (m *mockScoringService) BreakerStats() []signals.SourceBreaker {
	args := m.Called()
	if got := args.Get(0); got != nil {
		return got.([]signals.SourceBreaker)
	}
	return nil
}

func (m *mockScoringService) Start() { m.Called() }

func (m *mockScoringService) Stop() { m.Called() }

type mockDecisionReader struct {
	mock.Mock
}

func (m *mockDecisionReader) GetVerdict(ctx context.Context, txID uuid.UUID) (*risk.Verdict, error) {
	args := m.Called(ctx, txID)
	var v *risk.Verdict
	if got := args.Get(0); got != nil {
		v = got.(*risk.Verdict)
	}
	return v, args.Error(1)
}

func (m *mockDecisionReader) Counts() repository.Counts {
	return m.Called().Get(0).(repository.Counts)
}

type mockBreakerAdmin struct {
	mock.Mock
}

func (m *mockBreakerAdmin) ResetBreaker(name string) error {
	return m.Called(name).Error(0)
}
