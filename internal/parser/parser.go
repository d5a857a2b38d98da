// Package parser turns raw extracted rows into canonical transactions.
package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-reconciler/internal/datefmt"
	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/money"
	"github.com/insightdelivered/statement-reconciler/internal/templates"
)

const (
	// DefaultThreshold is the probability a classifier label must exceed to
	// replace the rule-based category.
	DefaultThreshold = 0.7

	templateConfidence = 1.0
	genericConfidence  = 0.8
)

// Classifier labels a transaction description with a probability.
type Classifier interface {
	Classify(text string) (label string, probability float64)
}

// Parser converts raw rows in template mode when a template is set, and in
// generic mode otherwise. A Parser holds no state between calls.
type Parser struct {
	template   *templates.Template
	classifier Classifier
	threshold  float64
	log        zerolog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithTemplate switches the parser to template mode.
func WithTemplate(t *templates.Template) Option {
	return func(p *Parser) { p.template = t }
}

// WithClassifier enables the classifier overlay.
func WithClassifier(c Classifier) Option {
	return func(p *Parser) { p.classifier = c }
}

// WithThreshold overrides DefaultThreshold.
func WithThreshold(th float64) Option {
	return func(p *Parser) {
		if th > 0 {
			p.threshold = th
		}
	}
}

// WithLogger sets the logger used for dropped rows.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Parser) { p.log = l }
}

// New returns a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{threshold: DefaultThreshold, log: zerolog.Nop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name identifies the parser for statement records.
func (p *Parser) Name() string {
	if p.template != nil {
		return p.template.Name + "_parser"
	}
	return "generic_parser"
}

// Parse converts rows in order. Rows without a usable date or amount are
// dropped and logged.
func (p *Parser) Parse(rows []models.RawRow) []models.Transaction {
	out := make([]models.Transaction, 0, len(rows))
	for i, raw := range rows {
		txn, reason := p.parseRow(raw)
		if reason != "" {
			p.log.Debug().
				Int("row", i).
				Str("reason", reason).
				Str("date", raw.Get(models.FieldDate)).
				Str("description", raw.Get(models.FieldDescription)).
				Msg("dropped row")
			continue
		}
		out = append(out, txn)
	}
	return out
}

func (p *Parser) parseRow(raw models.RawRow) (models.Transaction, string) {
	row := p.canonical(raw)

	dateText := row.Get(models.FieldDate)
	if dateText == "" {
		return models.Transaction{}, "missing date"
	}
	date, ok := datefmt.Normalize(dateText, p.layouts()...)
	if !ok {
		return models.Transaction{}, "unparseable date " + dateText
	}

	amount, typ, err := money.Resolve(row)
	if err != nil {
		return models.Transaction{}, "missing amount: " + err.Error()
	}

	desc := row.Get(models.FieldDescription)
	txn := models.Transaction{
		Date:             date,
		Description:      desc,
		RawDescription:   desc,
		Amount:           amount,
		Type:             typ,
		ReferenceNumber:  row.Get(models.FieldReference),
		Category:         models.CategoryUnknown,
		ConfidenceScore:  genericConfidence,
		ValidationStatus: models.StatusUnvalidated,
	}
	if b, err := money.Parse(row.Get(models.FieldBalance)); err == nil {
		txn.Balance = decimal.NewNullDecimal(b)
	}
	if txn.ReferenceNumber == "" {
		txn.ReferenceNumber = FindReference(desc)
	}

	if p.template != nil {
		txn.Template = p.template.Name
		txn.ConfidenceScore = templateConfidence
		if cat, ok := p.template.Categorize(CleanText(desc)); ok {
			txn.Category = cat
		}
	}
	if p.classifier != nil && desc != "" {
		if label, prob := p.classifier.Classify(desc); label != "" && prob > p.threshold {
			txn.Category = label
			txn.ConfidenceScore = prob
		}
	}
	return txn, ""
}

// canonical renames non-canonical keys through the template mapping, then the
// alias table. Keys are visited in sorted order and the first claim of a
// field wins; canonical keys are never overwritten.
func (p *Parser) canonical(raw models.RawRow) models.RawRow {
	row := make(models.RawRow, len(raw))
	keys := make([]string, 0, len(raw))
	for k, v := range raw {
		if isCanonical(k) {
			row[k] = v
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		field, ok := "", false
		if p.template != nil {
			field, ok = p.template.MapHeader(k)
		}
		if !ok {
			field, ok = aliasField(k)
		}
		if !ok {
			continue
		}
		if _, taken := row[field]; !taken {
			row[field] = raw[k]
		}
	}
	return row
}

func (p *Parser) layouts() []string {
	if p.template == nil || p.template.DateLayout() == "" {
		return datefmt.Generic
	}
	return append([]string{p.template.DateLayout()}, datefmt.Generic...)
}

func isCanonical(key string) bool {
	switch key {
	case models.FieldDate, models.FieldDescription, models.FieldDebit, models.FieldCredit,
		models.FieldAmount, models.FieldBalance, models.FieldType, models.FieldReference:
		return true
	}
	return false
}

var (
	noise      = regexp.MustCompile(`[^\p{L}\p{N}\s&/.,'@:-]+`)
	whitespace = regexp.MustCompile(`\s+`)
)

// CleanText strips noise characters, collapses whitespace and trims edge
// punctuation. Case is left alone.
func CleanText(s string) string {
	s = noise.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.Trim(s, " -.,:")
}
