package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Format is the broad kind of source file.
type Format string

const (
	FormatTextDocument Format = "text_document"
	FormatImage        Format = "image"
	FormatTabular      Format = "tabular"
	FormatUnknown      Format = "unknown"
)

// StatementStatus is the workflow state of an uploaded statement.
type StatementStatus string

const (
	StatementPending    StatementStatus = "pending"
	StatementProcessing StatementStatus = "processing"
	StatementCompleted  StatementStatus = "completed"
	StatementValidated  StatementStatus = "validated"
	StatementFailed     StatementStatus = "failed"
)

// ExtractionMethod records which extraction path produced the rows.
type ExtractionMethod string

const (
	MethodTemplateTable    ExtractionMethod = "template_table"
	MethodTableRecognition ExtractionMethod = "table_recognition"
	MethodTextPattern      ExtractionMethod = "text_pattern"
	MethodOCRTesseract     ExtractionMethod = "ocr_tesseract"
	MethodOCRGemini        ExtractionMethod = "ocr_gemini"
	MethodTabularTemplate  ExtractionMethod = "tabular_template"
	MethodTabularHeuristic ExtractionMethod = "tabular_heuristic"
	MethodNone             ExtractionMethod = "none"
)

// StatementMetadata describes one source file. Produced by extraction,
// read-only for validation.
type StatementMetadata struct {
	BankName         string              `json:"bankName,omitempty"`
	AccountNumber    string              `json:"accountNumber,omitempty"`
	PeriodStart      string              `json:"periodStart,omitempty"`
	PeriodEnd        string              `json:"periodEnd,omitempty"`
	RawPeriod        string              `json:"rawPeriod,omitempty"`
	OpeningBalance   decimal.NullDecimal `json:"openingBalance"`
	ClosingBalance   decimal.NullDecimal `json:"closingBalance"`
	Currency         string              `json:"currency,omitempty"`
	DetectedTemplate string              `json:"detectedTemplate,omitempty"`
}

// Merge fills fields of m that are still empty from other.
func (m *StatementMetadata) Merge(other StatementMetadata) {
	if m.BankName == "" {
		m.BankName = other.BankName
	}
	if m.AccountNumber == "" {
		m.AccountNumber = other.AccountNumber
	}
	if m.PeriodStart == "" && m.PeriodEnd == "" {
		m.PeriodStart, m.PeriodEnd = other.PeriodStart, other.PeriodEnd
	}
	if m.RawPeriod == "" {
		m.RawPeriod = other.RawPeriod
	}
	if !m.OpeningBalance.Valid {
		m.OpeningBalance = other.OpeningBalance
	}
	// the last page states the closing balance, so later values win
	if other.ClosingBalance.Valid {
		m.ClosingBalance = other.ClosingBalance
	}
	if m.Currency == "" {
		m.Currency = other.Currency
	}
	if m.DetectedTemplate == "" {
		m.DetectedTemplate = other.DetectedTemplate
	}
}

// Extraction is the output of an extractor.
type Extraction struct {
	Metadata     StatementMetadata `json:"metadata"`
	Transactions []RawRow          `json:"transactions"`
	Method       ExtractionMethod  `json:"extractionMethod"`
}

// ValidationResult is the verdict over a whole statement.
type ValidationResult struct {
	IsValid        bool            `json:"isValid"`
	Errors         []string        `json:"errors"`
	Warnings       []string        `json:"warnings"`
	Transactions   []Transaction   `json:"transactions"`
	RunningBalance decimal.Decimal `json:"runningBalance"`
}

// Statement is the persisted aggregate for one uploaded file.
type Statement struct {
	ID               uint64            `json:"id"`
	FileName         string            `json:"fileName"`
	FilePath         string            `json:"filePath"`
	Format           Format            `json:"format"`
	BankHint         string            `json:"bankHint,omitempty"`
	Status           StatementStatus   `json:"status"`
	Metadata         StatementMetadata `json:"metadata"`
	ExtractionMethod ExtractionMethod  `json:"extractionMethod,omitempty"`
	ParserUsed       string            `json:"parserUsed,omitempty"`
	TransactionCount int               `json:"transactionCount"`
	IsValid          bool              `json:"isValid"`
	Errors           []string          `json:"errors,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
	RetryCount       int               `json:"retryCount"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	ProcessedAt      *time.Time        `json:"processedAt,omitempty"`
}
