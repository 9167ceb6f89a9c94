package values

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ISO 4217 codes used by fixtures and defaults. Amounts in any other
// well-formed code are accepted; the engine scores transactions, it does
// not convert them.
const (
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
)

// Money is an exact monetary amount in a single currency. Construct it
// through the New* helpers so the currency code is always validated.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney builds a Money from an exact decimal amount
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	code, err := parseCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: amount, currency: code}, nil
}

// NewMoneyFromString parses a decimal string such as "99.95"
func NewMoneyFromString(amount, currency string) (Money, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return NewMoney(dec, currency)
}

// NewMoneyFromFloat converts a float amount. Floats carry more precision
// loss than a ledger could accept, but request payloads arrive as numbers
// and scoring tolerates it.
func NewMoneyFromFloat(amount float64, currency string) (Money, error) {
	return NewMoney(decimal.NewFromFloat(amount), currency)
}

// MustNewMoney is NewMoney for fixtures and constants; invalid input panics
func MustNewMoney(amount decimal.Decimal, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// MustNewMoneyFromFloat is NewMoneyFromFloat for fixtures; invalid input panics
func MustNewMoneyFromFloat(amount float64, currency string) Money {
	m, err := NewMoneyFromFloat(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns 0.00 in the given currency
func Zero(currency string) Money {
	return MustNewMoney(decimal.Zero, currency)
}

// Amount returns the exact decimal value
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the ISO 4217 code
func (m Money) Currency() string {
	return m.currency
}

// ToFloat64 returns the amount as a float for statistics, not accounting
func (m Money) ToFloat64() float64 {
	f, _ := m.amount.Float64()
	return f
}

// String renders the amount with its code, "123.45 USD". Codes stay
// unambiguous in logs and evidence where symbols would not.
func (m Money) String() string {
	return m.amount.StringFixed(2) + " " + m.currency
}

// IsZero reports a zero amount
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive reports an amount above zero
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// IsNegative reports an amount below zero
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Equal reports identical amount and currency
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// Add returns the sum; both sides must share a currency
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns the difference; both sides must share a currency
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return nil
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount.String(), Currency: m.currency})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var wire moneyJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	parsed, err := NewMoneyFromString(wire.Amount, wire.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// parseCurrency uppercases and shape-checks an ISO 4217 code
func parseCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("currency code must be 3 letters, got %q", code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("currency code must be letters, got %q", code)
		}
	}
	return code, nil
}
