package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/statement-reconciler/internal/models"
)

// referencePatterns are tried in order; the first match wins.
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bref\b:?\s*([A-Za-z0-9]+)`),
	regexp.MustCompile(`(?i)\bref[er]*[en]*ce\s*:?\s*([A-Za-z0-9]+)`),
	regexp.MustCompile(`(?i)\btxn\s*(?:id|no)\s*:?\s*([A-Za-z0-9]+)`),
}

// FindReference returns the reference number embedded in a description, or "".
func FindReference(description string) string {
	for _, re := range referencePatterns {
		if m := re.FindStringSubmatch(description); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// fieldAliases maps header spellings that reach the parser unmapped, for
// example from a JSON export, to canonical fields.
var fieldAliases = []struct {
	field string
	terms []string
}{
	{models.FieldDate, []string{"date", "posted", "value dt"}},
	{models.FieldBalance, []string{"balance"}},
	{models.FieldDebit, []string{"debit", "withdrawal", "paid out", "money out", "dr"}},
	{models.FieldCredit, []string{"credit", "deposit", "paid in", "money in", "cr"}},
	{models.FieldType, []string{"type", "dr/cr"}},
	{models.FieldAmount, []string{"amount", "value"}},
	{models.FieldReference, []string{"reference", "ref", "chq", "cheque", "txn id"}},
	{models.FieldDescription, []string{"description", "particulars", "details", "narration", "remarks", "memo", "payee"}},
}

func aliasField(header string) (string, bool) {
	h := strings.ToLower(strings.TrimSpace(header))
	for _, a := range fieldAliases {
		for _, term := range a.terms {
			if h == term || (len(term) >= 3 && strings.Contains(h, term)) {
				return a.field, true
			}
		}
	}
	return "", false
}
