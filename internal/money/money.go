// Package money parses statement amounts and decides transaction direction.
package money

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-reconciler/internal/models"
)

// ErrEmpty is returned by Parse for a blank cell.
var ErrEmpty = errors.New("empty amount")

// AmountPattern matches a currency amount with exactly two decimals,
// with or without thousands separators.
var AmountPattern = regexp.MustCompile(`\b(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2}\b`)

var currencyReplacer = strings.NewReplacer(
	"£", "", "$", "", "€", "", "₹", "",
	"INR", "", "GBP", "", "USD", "", "EUR", "", "Rs.", "", "Rs", "",
	",", "", " ", "", " ", "",
)

// Parse converts "1,234.56", "-£1,234.56", "(12.00)" or "50.00 DR" to a decimal.
// Parentheses, a trailing minus and a DR suffix mean negative.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	negative := false

	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DR"):
		negative = true
		s = strings.TrimSpace(s[:len(s)-2])
	case strings.HasSuffix(upper, "CR"):
		s = strings.TrimSpace(s[:len(s)-2])
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = currencyReplacer.Replace(s)
	if strings.HasSuffix(s, "-") && len(s) > 1 {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}
	if s == "" || s == "-" {
		return decimal.Zero, ErrEmpty
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// Resolve derives amount and direction from a raw row.
//
// An explicit transaction_type plus a parseable amount wins. Otherwise, when a debit or
// credit field exists, the positive one decides. A lone amount field decides
// by sign and the magnitude is returned.
func Resolve(row models.RawRow) (decimal.Decimal, models.TransactionType, error) {
	if t := models.TransactionType(strings.ToLower(row.Get(models.FieldType))); t.IsValid() {
		if amt, err := Parse(row.Get(models.FieldAmount)); err == nil {
			return amt.Abs(), t, nil
		}
	}

	_, hasDebit := row[models.FieldDebit]
	_, hasCredit := row[models.FieldCredit]
	if hasDebit || hasCredit {
		debit, _ := Parse(row.Get(models.FieldDebit))
		credit, _ := Parse(row.Get(models.FieldCredit))
		switch {
		case debit.IsPositive():
			return debit, models.Debit, nil
		case credit.IsPositive():
			return credit, models.Credit, nil
		}
		if _, hasAmount := row[models.FieldAmount]; !hasAmount {
			return decimal.Zero, "", errors.New("neither debit nor credit carries a positive value")
		}
	}

	amt, err := Parse(row.Get(models.FieldAmount))
	if err != nil {
		return decimal.Zero, "", err
	}
	if amt.IsNegative() {
		return amt.Abs(), models.Debit, nil
	}
	return amt, models.Credit, nil
}

// WithinTolerance reports whether a and b differ by at most tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

var (
	ocrSemicolon     = regexp.MustCompile(`(\d);(\s*)(\d)`)
	ocrColon         = regexp.MustCompile(`(\d):(\d{2})\b`)
	ocrTrailingColon = regexp.MustCompile(`(\d):(\s|$)`)
	ocrNA            = regexp.MustCompile(`\s+NA\b`)
)

// SanitizeOCR fixes common OCR misreads in amounts, e.g. "19,720; 15:" becomes
// "19,720.15".
func SanitizeOCR(line string) string {
	line = ocrSemicolon.ReplaceAllString(line, "$1.$3")
	line = ocrColon.ReplaceAllString(line, "$1.$2")
	line = ocrTrailingColon.ReplaceAllString(line, "$1$2")
	line = ocrNA.ReplaceAllString(line, "")
	return line
}
