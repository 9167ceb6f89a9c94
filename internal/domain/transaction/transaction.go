package transaction

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paygate-labs/transaction-risk-engine/internal/domain/validation"
	"github.com/paygate-labs/transaction-risk-engine/internal/domain/values"
)

// Transaction is a single payment event submitted for risk evaluation.
// Instances are immutable once constructed; the engine never mutates them.
type Transaction struct {
	ID       uuid.UUID    `json:"id"`
	UserID   uuid.UUID    `json:"user_id"`
	Amount   values.Money `json:"amount"`
	Merchant string       `json:"merchant"`
	Category string       `json:"category,omitempty"`

	Location  Location  `json:"location"`
	Timestamp time.Time `json:"timestamp"`

	// Client metadata
	Device    Device `json:"device,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type Location struct {
	Country   string  `json:"country"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	IPAddress string  `json:"ip_address,omitempty"`
}

type Device struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type,omitempty"`
	OS          string `json:"os,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// NewTransaction builds a transaction with a fresh ID and validates it
func NewTransaction(userID uuid.UUID, amount values.Money, merchant string, loc Location, ts time.Time) (*Transaction, error) {
	tx := &Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Merchant:  merchant,
		Location:  loc,
		Timestamp: ts,
	}

	if err := tx.Validate(); err != nil {
		return nil, err
	}

	return tx, nil
}

// Validate returns the first violation found, nil when the transaction is
// well formed. Use Violations to collect all of them.
func (t *Transaction) Validate() error {
	violations := t.Violations()
	if len(violations) > 0 {
		return fmt.Errorf("invalid transaction: %s", violations[0])
	}
	return nil
}

// Violations returns every validation failure in field order. An empty slice
// means the transaction is ready for evaluation.
func (t *Transaction) Violations() []string {
	var violations []string

	if t.ID == uuid.Nil {
		violations = append(violations, "transaction ID is required")
	}
	if t.UserID == uuid.Nil {
		violations = append(violations, "user ID is required")
	}
	if !t.Amount.IsPositive() {
		violations = append(violations, "amount must be positive")
	} else if err := validation.ValidateAmount(t.Amount.ToFloat64(), "amount"); err != nil {
		violations = append(violations, err.Error())
	}
	if t.Merchant == "" {
		violations = append(violations, "merchant is required")
	} else if err := validation.ValidateMerchantName(t.Merchant); err != nil {
		violations = append(violations, err.Error())
	}
	if t.Timestamp.IsZero() {
		violations = append(violations, "timestamp is required")
	}
	if t.Location.Country != "" {
		if err := validation.ValidateCountryCode(t.Location.Country); err != nil {
			violations = append(violations, err.Error())
		}
	}
	if err := validation.ValidateIPAddress(t.Location.IPAddress); err != nil {
		violations = append(violations, err.Error())
	}
	if t.Location.Latitude != 0 || t.Location.Longitude != 0 {
		if err := validation.ValidateCoordinates(t.Location.Latitude, t.Location.Longitude); err != nil {
			violations = append(violations, err.Error())
		}
	}
	if err := validation.ValidateDeviceID(t.Device.ID); err != nil {
		violations = append(violations, err.Error())
	}

	return violations
}

// Hour returns the local hour of day the transaction occurred
func (t *Transaction) Hour() int {
	return t.Timestamp.Hour()
}

// HasLocation reports whether a country is attached
func (t *Transaction) HasLocation() bool {
	return t.Location.Country != ""
}

// HasDevice reports whether any device metadata is attached
func (t *Transaction) HasDevice() bool {
	return t.Device.ID != "" || t.Device.Fingerprint != ""
}
