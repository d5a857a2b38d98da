package models

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
)

// TransactionType is the direction of money movement. There is no third state.
type TransactionType string

const (
	Credit TransactionType = "credit"
	Debit  TransactionType = "debit"
)

// IsValid reports whether t is one of the two enumerated types.
func (t TransactionType) IsValid() bool {
	return t == Credit || t == Debit
}

// ValidationStatus tracks a transaction through reconciliation.
type ValidationStatus string

const (
	StatusUnvalidated ValidationStatus = "unvalidated"
	StatusVerified    ValidationStatus = "verified"
	StatusFailed      ValidationStatus = "failed"
)

const (
	// CategoryUnknown marks a transaction no rule or model could classify.
	CategoryUnknown = "UNKNOWN"
	// CategoryOthers is the keyword table fallback.
	CategoryOthers = "OTHERS"
)

// Transaction is a single canonical statement transaction.
type Transaction struct {
	ID               uint64              `json:"id,omitempty"`
	StatementID      uint64              `json:"statementId,omitempty"`
	Date             string              `json:"date"` // canonical 2006-01-02 once normalized
	Description      string              `json:"description"`
	RawDescription   string              `json:"rawDescription"`
	Amount           decimal.Decimal     `json:"amount"`
	Type             TransactionType     `json:"type"`
	Balance          decimal.NullDecimal `json:"balance"`
	ReferenceNumber  string              `json:"referenceNumber,omitempty"`
	Category         string              `json:"category"`
	ConfidenceScore  float64             `json:"confidenceScore"`
	ValidationStatus ValidationStatus    `json:"validationStatus"`
	ValidationErrors []string            `json:"validationErrors,omitempty"`
	IsDuplicate      bool                `json:"isDuplicate"`
	Template         string              `json:"template,omitempty"`
}

// HasCategory reports whether an upstream stage already classified t.
func (t *Transaction) HasCategory() bool {
	return t.Category != "" && t.Category != CategoryUnknown
}

// Hash fingerprints the transaction by date, amount, description and type.
func (t *Transaction) Hash() string {
	sum := md5.Sum([]byte(t.Date + t.Amount.StringFixed(2) + t.Description + string(t.Type)))
	return hex.EncodeToString(sum[:])
}

// Signed returns the amount with credits positive and debits negative.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Type == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// RawRow is a transaction as observed in the source, keyed by field or column name.
// It may be missing fields or hold unparsed strings.
type RawRow map[string]string

// Canonical raw row field names.
const (
	FieldDate        = "date"
	FieldDescription = "description"
	FieldDebit       = "debit"
	FieldCredit      = "credit"
	FieldAmount      = "amount"
	FieldBalance     = "balance"
	FieldType        = "transaction_type"
	FieldReference   = "reference_number"
)

// Get returns the trimmed value for field, or "".
func (r RawRow) Get(field string) string {
	return strings.TrimSpace(r[field])
}
