package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/errors"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/risk"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/transaction"
	"github.com/paygate-labs/transaction-risk-engine/internal/infrastructure/repository"
	"github.com/paygate-labs/transaction-risk-engine/internal/infrastructure/telemetry"
	"github.com/paygate-labs/transaction-risk-engine/internal/metrics"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/feedback"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/scoring"
)

// DecisionReader serves stored verdicts and store counts
type DecisionReader interface {
	GetVerdict(ctx context.Context, txID uuid.UUID) (*risk.Verdict, error)
	Counts() repository.Counts
}

// BreakerAdmin force-closes signal source breakers
type BreakerAdmin interface {
	ResetBreaker(name string) error
}

// Handler implements the engine's HTTP surface
type Handler struct {
	svc      scoring.Service
	store    DecisionReader
	breakers BreakerAdmin
	registry *metrics.Registry
	tracer   *telemetry.RiskTracer
	validate *validator.Validate
	logger   *zap.Logger
	version  string
	started  time.Time
}

// NewHandler creates the handler set. store, breakers and registry may be
// nil; the endpoints needing them degrade instead of failing startup.
func NewHandler(svc scoring.Service, store DecisionReader, breakers BreakerAdmin, registry *metrics.Registry, version string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc:      svc,
		store:    store,
		breakers: breakers,
		registry: registry,
		tracer:   telemetry.NewRiskTracer("api.rest"),
		validate: validator.New(),
		logger:   logger,
		version:  version,
		started:  time.Now(),
	}
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	tx, err := req.toDomain()
	if err != nil {
		writeError(ctx, w, h.logger, errors.NewValidationError("INVALID_REQUEST", err.Error()))
		return
	}

	ctx, span := h.tracer.StartEvaluationSpan(ctx, "evaluate", map[string]any{
		"transaction_id": tx.ID.String(),
		"user_id":        tx.UserID.String(),
	})
	start := time.Now()
	verdict, err := h.svc.Evaluate(ctx, tx)
	if err == nil && verdict != nil {
		telemetry.AddEvent(ctx, "verdict", map[string]any{
			"risk_level": verdict.Level.String(),
			"decision":   string(verdict.Decision),
			"score":      verdict.OverallScore,
		})
	}
	telemetry.EndSpan(span, err)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	h.recordVerdict(ctx, time.Since(start), verdict)
	writeJSON(w, http.StatusOK, verdict)
}

func (h *Handler) handleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BatchEvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	txs := make([]*transaction.Transaction, len(req.Transactions))
	for i := range req.Transactions {
		tx, err := req.Transactions[i].toDomain()
		if err != nil {
			writeError(ctx, w, h.logger, errors.NewValidationError("INVALID_REQUEST", err.Error()))
			return
		}
		txs[i] = tx
	}

	ctx, span := h.tracer.StartEvaluationSpan(ctx, "evaluate_batch", map[string]any{
		"batch_size": len(txs),
	})
	verdicts, err := h.svc.EvaluateBatch(ctx, txs)
	telemetry.EndSpan(span, err)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	if h.registry != nil {
		for _, v := range verdicts {
			if v == nil {
				continue
			}
			h.registry.RecordDecision(ctx, v.OverallScore, v.Level.String(), string(v.Decision))
		}
	}

	writeJSON(w, http.StatusOK, BatchEvaluateResponse{Verdicts: verdicts})
}

func (h *Handler) handleGetVerdict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, h.logger,
			errors.NewValidationError("INVALID_TRANSACTION_ID", "transaction id must be a UUID"))
		return
	}

	if h.store == nil {
		writeError(ctx, w, h.logger, errors.ErrVerdictNotFound)
		return
	}

	verdict, err := h.store.GetVerdict(ctx, id)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, verdict)
}

func (h *Handler) handleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req OutcomeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	outcome, err := req.toDomain()
	if err != nil {
		writeError(ctx, w, h.logger, errors.NewValidationError("INVALID_REQUEST", err.Error()))
		return
	}

	if err := h.svc.RecordOutcome(ctx, outcome); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	if h.registry != nil {
		h.registry.RecordOutcome(ctx, string(outcome.Label), string(outcome.Decision))
	}

	// Decision and pattern IDs may have been backfilled from the stored
	// verdict, so echo the outcome as recorded
	writeJSON(w, http.StatusAccepted, outcome)
}

func (h *Handler) handlePatterns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Patterns []feedback.PatternPerformance `json:"patterns"`
	}{h.svc.PatternPerformance()})
}

func (h *Handler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Recommendations []feedback.Recommendation `json:"recommendations"`
	}{h.svc.Recommendations()})
}

func (h *Handler) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Thresholds())
}

func (h *Handler) handleUpdateThresholds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ThresholdsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}

	if err := h.svc.UpdateThresholds(req.toDomain()); err != nil {
		// Rejected thresholds are the operator's input, not a server fault
		if errors.IsConfiguration(err) {
			err = errors.NewValidationError("INVALID_THRESHOLDS", err.Error())
		}
		writeError(ctx, w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, h.svc.Thresholds())
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Cache:                  h.svc.CacheStats(),
		Breakers:               h.svc.BreakerStats(),
		Thresholds:             h.svc.Thresholds(),
		TrackedPatterns:        len(h.svc.PatternPerformance()),
		PendingRecommendations: len(h.svc.Recommendations()),
	}
	if h.store != nil {
		resp.Store = h.store.Counts()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleResetBreaker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	source := r.PathValue("source")

	if h.breakers == nil {
		writeError(ctx, w, h.logger,
			errors.NewDataUnavailableError("signal gateway", "no signal gateway configured"))
		return
	}

	if err := h.breakers.ResetBreaker(source); err != nil {
		writeError(ctx, w, h.logger, errors.NewNotFoundError("signal source"))
		return
	}

	h.logger.Info("breaker reset", zap.String("source", source))
	writeJSON(w, http.StatusOK, map[string]string{"source": source, "state": "closed"})
}

func (h *Handler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ready",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *Handler) recordVerdict(ctx context.Context, elapsed time.Duration, v *risk.Verdict) {
	if h.registry == nil || v == nil {
		return
	}

	h.registry.RecordEvaluation(ctx,
		float64(elapsed.Microseconds())/1000.0,
		v.OverallScore, v.Level.String(), string(v.Decision))

	if _, ok := v.Factor(risk.FactorValidation); ok {
		h.registry.RecordValidationReject(ctx)
	}
}
