package rest

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/errors"
	"github.com/paygate-labs/transaction-risk-engine/internal/infrastructure/telemetry"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps an error onto the wire. Domain errors carry their own
// status; transport-level decode and validation failures become 400s.
func writeError(ctx context.Context, w http.ResponseWriter, logger *zap.Logger, err error) {
	status, body := classifyError(err)

	if status >= http.StatusInternalServerError {
		telemetry.WithTrace(ctx, logger).Error("request failed",
			zap.Int("status", status),
			zap.Error(err))
	}

	writeJSON(w, status, ErrorResponse{Error: body})
}

func classifyError(err error) (int, ErrorBody) {
	var fieldErrs validator.ValidationErrors
	if goerrors.As(err, &fieldErrs) {
		details := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
		return http.StatusBadRequest, ErrorBody{
			Code:    "VALIDATION_ERROR",
			Message: "request failed validation",
			Details: details,
		}
	}

	var syntaxErr *json.SyntaxError
	if goerrors.As(err, &syntaxErr) {
		return http.StatusBadRequest, ErrorBody{
			Code:    "INVALID_JSON",
			Message: "invalid JSON syntax",
			Details: fmt.Sprintf("error at offset %d", syntaxErr.Offset),
		}
	}

	var typeErr *json.UnmarshalTypeError
	if goerrors.As(err, &typeErr) {
		return http.StatusBadRequest, ErrorBody{
			Code:    "TYPE_MISMATCH",
			Message: fmt.Sprintf("invalid type for field %q", typeErr.Field),
		}
	}

	var appErr *errors.AppError
	if goerrors.As(err, &appErr) {
		body := ErrorBody{Code: appErr.Code, Message: appErr.Message}
		if len(appErr.Details) > 0 {
			body.Details = appErr.Details
		}
		return appErr.StatusCode, body
	}

	if goerrors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout, ErrorBody{
			Code:    "REQUEST_CANCELED",
			Message: "request was canceled",
		}
	}
	if goerrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, ErrorBody{
			Code:    "REQUEST_TIMEOUT",
			Message: "request timed out",
		}
	}

	return http.StatusInternalServerError, ErrorBody{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}
}

// decodeJSON reads a request body. Unknown fields are rejected so client
// typos surface instead of silently evaluating a half-empty transaction.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if goerrors.As(err, &syntaxErr) || goerrors.As(err, &typeErr) {
			return err
		}
		return errors.NewValidationError("INVALID_REQUEST", err.Error())
	}
	return nil
}
