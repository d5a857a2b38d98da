// Package normalizer canonicalises parsed transactions. Normalizing a
// normalized transaction changes nothing.
package normalizer

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/insightdelivered/statement-reconciler/internal/datefmt"
	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/parser"
)

// Keywords maps a category to the substrings that select it.
type Keywords struct {
	Category string
	Terms    []string
}

// DefaultKeywords is searched in order; the first category with a matching
// term wins. Descriptions are lowercased and padded with a space on each side,
// so a leading or trailing space in a term anchors it to a word edge.
var DefaultKeywords = []Keywords{
	{"SALARY", []string{"salary", "payroll", "wages"}},
	{"ATM_WITHDRAWAL", []string{" atm", "cash withdrawal", "cashpoint"}},
	{"TRANSFER", []string{"transfer", "neft", "rtgs", "imps", "faster payment", " fps", " upi"}},
	{"DIRECT_DEBIT", []string{"direct debit", "standing order", " dd "}},
	{"UTILITIES", []string{"electric", "water", " gas ", "broadband", "mobile", "telecom"}},
	{"GROCERIES", []string{"tesco", "sainsbury", "asda", "aldi", "lidl", "waitrose", "grocery", "supermarket"}},
	{"DINING", []string{"restaurant", "cafe", "coffee", "pizza", "swiggy", "zomato", "deliveroo"}},
	{"TRAVEL", []string{"uber", "rail", "airline", "fuel", "petrol", "parking", "tfl"}},
	{"SHOPPING", []string{"amazon", "flipkart", "ebay"}},
	{"ENTERTAINMENT", []string{"netflix", "spotify", "cinema", "prime video"}},
	{"INTEREST", []string{"interest"}},
	{"FEES", []string{" fee", "charge", "commission"}},
}

// Normalizer is not safe for concurrent use.
type Normalizer struct {
	layouts  []string
	keywords []Keywords
	title    cases.Caser
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithDateLayouts puts layouts ahead of the generic list.
func WithDateLayouts(layouts ...string) Option {
	return func(n *Normalizer) {
		n.layouts = append(append([]string{}, layouts...), datefmt.Generic...)
	}
}

// WithKeywords replaces DefaultKeywords.
func WithKeywords(k []Keywords) Option {
	return func(n *Normalizer) { n.keywords = k }
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		layouts:  datefmt.Generic,
		keywords: DefaultKeywords,
		title:    cases.Title(language.Und),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize canonicalises txns in place and returns them.
func (n *Normalizer) Normalize(txns []models.Transaction) []models.Transaction {
	for i := range txns {
		n.normalize(&txns[i])
	}
	return txns
}

func (n *Normalizer) normalize(t *models.Transaction) {
	if date, ok := datefmt.Normalize(t.Date, n.layouts...); ok {
		t.Date = date
	}
	if t.RawDescription == "" {
		t.RawDescription = t.Description
	}
	t.Description = n.CleanDescription(t.Description)

	t.Amount = t.Amount.Abs().Round(2)
	if t.Balance.Valid {
		t.Balance.Decimal = t.Balance.Decimal.Round(2)
	}

	if !t.HasCategory() {
		t.Category = n.categorize(t.Description)
	}
	if t.ReferenceNumber == "" {
		t.ReferenceNumber = parser.FindReference(t.RawDescription)
	}
}

// CleanDescription strips noise characters, collapses whitespace and title-cases.
func (n *Normalizer) CleanDescription(s string) string {
	return n.title.String(parser.CleanText(s))
}

func (n *Normalizer) categorize(description string) string {
	lower := " " + strings.ToLower(description) + " "
	for _, k := range n.keywords {
		for _, term := range k.Terms {
			if strings.Contains(lower, term) {
				return k.Category
			}
		}
	}
	return models.CategoryOthers
}
