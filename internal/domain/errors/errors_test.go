package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Constructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		wantType  ErrorType
		wantCode  string
		wantHTTP  int
		retryable bool
	}{
		{
			name:      "validation",
			err:       NewValidationError("AMOUNT_NOT_POSITIVE", "amount must be positive"),
			wantType:  ErrorTypeValidation,
			wantCode:  "AMOUNT_NOT_POSITIVE",
			wantHTTP:  400,
			retryable: false,
		},
		{
			name:      "data unavailable",
			err:       NewDataUnavailableError("user_history", "history store unreachable"),
			wantType:  ErrorTypeDataUnavailable,
			wantCode:  "DATA_UNAVAILABLE",
			wantHTTP:  503,
			retryable: true,
		},
		{
			name:      "signal failure",
			err:       NewSignalFailureError("geolocation", "HTTP 502"),
			wantType:  ErrorTypeSignalFailure,
			wantCode:  "SIGNAL_FAILURE",
			wantHTTP:  502,
			retryable: true,
		},
		{
			name:      "configuration",
			err:       NewConfigurationError("thresholds.high", "thresholds must increase"),
			wantType:  ErrorTypeConfiguration,
			wantCode:  "INVALID_CONFIGURATION",
			wantHTTP:  500,
			retryable: false,
		},
		{
			name:     "not found",
			err:      NewNotFoundError("verdict"),
			wantType: ErrorTypeNotFound,
			wantCode: "RESOURCE_NOT_FOUND",
			wantHTTP: 404,
		},
		{
			name:      "internal",
			err:       NewInternalError("store write failed"),
			wantType:  ErrorTypeInternal,
			wantCode:  "INTERNAL_ERROR",
			wantHTTP:  500,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantHTTP, tt.err.StatusCode)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.True(t, IsType(tt.err, tt.wantType))
		})
	}
}

func TestAppError_Details(t *testing.T) {
	sig := NewSignalFailureError("identity", "HTTP 503")
	assert.Equal(t, "identity", sig.Details["source"])
	assert.Equal(t, "HTTP 503", sig.Details["reason"])

	cfg := NewConfigurationError("weights.amount", "weight must be positive")
	assert.Equal(t, "weights.amount", cfg.Details["field"])
}

func TestAppError_CauseChain(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewDataUnavailableError("user_history", "history store unreachable").WithCause(cause)

	assert.Equal(t, "history store unreachable: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("loading baseline: %w", err)
	assert.True(t, IsDataUnavailable(wrapped))
	assert.False(t, IsValidation(wrapped))
}

func TestAppError_Matchers(t *testing.T) {
	assert.True(t, IsValidation(ErrNilTransaction))
	assert.True(t, IsConfiguration(NewConfigurationError("weights.amount", "weight must be positive")))
	assert.False(t, IsValidation(stderrors.New("plain")))
	assert.False(t, IsType(nil, ErrorTypeValidation))
}
