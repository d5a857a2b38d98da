// Package templates loads per-bank extraction templates and interprets them.
//
// A template is data: identifier strings for detection, regex patterns for
// statement metadata, a field-to-column-header mapping, a date format and
// category rules. Wherever a template holds an unordered map, iteration is by
// sorted key so detection and classification are reproducible.
package templates

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/insightdelivered/statement-reconciler/internal/datefmt"
	"github.com/insightdelivered/statement-reconciler/internal/models"
)

// BankTemplate is the configuration shape of a template file.
type BankTemplate struct {
	Name                 string              `json:"name" yaml:"name"`
	Identifiers          []string            `json:"identifiers" yaml:"identifiers"`
	MetadataPatterns     map[string]string   `json:"metadata_patterns" yaml:"metadata_patterns"`
	FieldMapping         map[string]string   `json:"field_mapping" yaml:"field_mapping"`
	DateFormat           string              `json:"date_format" yaml:"date_format"`
	CategoryRules        map[string][]string `json:"category_rules" yaml:"category_rules"`
	TransactionTableArea []float64           `json:"transaction_table_area,omitempty" yaml:"transaction_table_area,omitempty"`
	HeaderRows           int                 `json:"header_rows,omitempty" yaml:"header_rows,omitempty"`
	TransactionStartRow  int                 `json:"transaction_start_row,omitempty" yaml:"transaction_start_row,omitempty"`
	TransactionEndRow    int                 `json:"transaction_end_row,omitempty" yaml:"transaction_end_row,omitempty"`
}

// Area is a table region in page coordinates, top-left origin.
type Area struct {
	Top, Left, Bottom, Right float64
}

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

type categoryRule struct {
	category string
	patterns []*regexp.Regexp
}

// Template is a compiled, immutable BankTemplate.
type Template struct {
	BankTemplate

	identifiers []string
	metadata    []namedPattern
	fields      []namedPattern
	categories  []categoryRule
	layout      string
}

// Compile validates bt and compiles its patterns.
func Compile(bt BankTemplate) (*Template, error) {
	if bt.Name == "" {
		return nil, &models.TemplateError{Name: bt.Name, Err: fmt.Errorf("missing name")}
	}
	t := &Template{BankTemplate: bt, layout: datefmt.Layout(bt.DateFormat)}

	for _, id := range bt.Identifiers {
		if id = strings.TrimSpace(id); id != "" {
			t.identifiers = append(t.identifiers, strings.ToLower(id))
		}
	}

	var err error
	if t.metadata, err = compileNamed(bt.MetadataPatterns); err != nil {
		return nil, &models.TemplateError{Name: bt.Name, Err: fmt.Errorf("metadata_patterns: %w", err)}
	}
	if t.fields, err = compileNamed(bt.FieldMapping); err != nil {
		return nil, &models.TemplateError{Name: bt.Name, Err: fmt.Errorf("field_mapping: %w", err)}
	}

	for _, category := range sortedKeys(bt.CategoryRules) {
		rule := categoryRule{category: category}
		for _, p := range bt.CategoryRules[category] {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, &models.TemplateError{Name: bt.Name, Err: fmt.Errorf("category_rules[%s]: %w", category, err)}
			}
			rule.patterns = append(rule.patterns, re)
		}
		t.categories = append(t.categories, rule)
	}

	if n := len(bt.TransactionTableArea); n != 0 && n != 4 {
		return nil, &models.TemplateError{Name: bt.Name, Err: fmt.Errorf("transaction_table_area needs 4 values, got %d", n)}
	}
	if bt.TransactionEndRow != 0 && bt.TransactionEndRow < bt.TransactionStartRow {
		return nil, &models.TemplateError{Name: bt.Name, Err: fmt.Errorf("transaction_end_row before transaction_start_row")}
	}
	return t, nil
}

func compileNamed(m map[string]string) ([]namedPattern, error) {
	var out []namedPattern
	for _, name := range sortedKeys(m) {
		re, err := regexp.Compile("(?i)" + m[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, namedPattern{name: name, re: re})
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches reports whether any identifier occurs in text, ignoring case.
func (t *Template) Matches(text string) bool {
	lower := strings.ToLower(text)
	for _, id := range t.identifiers {
		if strings.Contains(lower, id) {
			return true
		}
	}
	return false
}

// DateLayout is the Go layout for the template's date format, or "".
func (t *Template) DateLayout() string {
	return t.layout
}

// HasFieldMapping reports whether the template maps any columns.
func (t *Template) HasFieldMapping() bool {
	return len(t.fields) > 0
}

// MapHeader returns the canonical field whose pattern matches a column header.
func (t *Template) MapHeader(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	for _, f := range t.fields {
		if f.re.MatchString(header) {
			return f.name, true
		}
	}
	return "", false
}

// Categorize returns the first category, by sorted name, with a pattern
// matching description.
func (t *Template) Categorize(description string) (string, bool) {
	for _, rule := range t.categories {
		for _, re := range rule.patterns {
			if re.MatchString(description) {
				return rule.category, true
			}
		}
	}
	return "", false
}

// ExtractMetadata applies the metadata patterns to text. A pattern's first
// capture group is the value, or the whole match when it has none.
func (t *Template) ExtractMetadata(text string) map[string]string {
	out := make(map[string]string)
	for _, p := range t.metadata {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v := m[0]
		if len(m) > 1 {
			v = m[1]
		}
		out[p.name] = strings.TrimSpace(v)
	}
	return out
}

// Area returns the declared transaction table region.
func (t *Template) Area() (Area, bool) {
	if len(t.TransactionTableArea) != 4 {
		return Area{}, false
	}
	a := t.TransactionTableArea
	return Area{Top: a[0], Left: a[1], Bottom: a[2], Right: a[3]}, true
}

// MetadataRows is how many leading rows of a sheet hold statement metadata.
func (t *Template) MetadataRows() int {
	if t == nil || t.HeaderRows <= 0 {
		return 5
	}
	return t.HeaderRows
}

// Rows returns the data row window [start, end) counted after the header.
// An end of zero means the window runs to the last row.
func (t *Template) Rows() (start, end int) {
	return t.TransactionStartRow, t.TransactionEndRow
}
