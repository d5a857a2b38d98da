// Package classifier labels transaction descriptions with a naive Bayes
// model learned from categorised history.
package classifier

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/jbrukh/bayesian"
)

// Example is one labelled description.
type Example struct {
	Description string
	Category    string
}

// Model wraps a trained classifier. It is safe for concurrent Classify calls.
type Model struct {
	cl *bayesian.Classifier
}

// Train fits a model. At least two distinct categories are required.
func Train(examples []Example) (*Model, error) {
	seen := make(map[string]bool)
	for _, ex := range examples {
		if ex.Category = strings.TrimSpace(ex.Category); ex.Category != "" {
			seen[ex.Category] = true
		}
	}
	if len(seen) < 2 {
		return nil, fmt.Errorf("need at least two categories to train, got %d", len(seen))
	}

	names := make([]string, 0, len(seen))
	for c := range seen {
		names = append(names, c)
	}
	sort.Strings(names)
	classes := make([]bayesian.Class, len(names))
	for i, n := range names {
		classes[i] = bayesian.Class(n)
	}

	cl := bayesian.NewClassifier(classes...)
	for _, ex := range examples {
		cat := strings.TrimSpace(ex.Category)
		words := Tokenize(ex.Description)
		if cat == "" || len(words) == 0 {
			continue
		}
		cl.Learn(words, bayesian.Class(cat))
	}
	return &Model{cl: cl}, nil
}

// Classify returns the most probable category and its probability. Text with
// no usable words, or a tie between categories, yields "", 0.
func (m *Model) Classify(text string) (string, float64) {
	words := Tokenize(text)
	if len(words) == 0 {
		return "", 0
	}
	scores, best, strict := m.cl.ProbScores(words)
	if !strict {
		return "", 0
	}
	return string(m.cl.Classes[best]), scores[best]
}

// Categories lists the labels the model knows, sorted.
func (m *Model) Categories() []string {
	out := make([]string, len(m.cl.Classes))
	for i, c := range m.cl.Classes {
		out[i] = string(c)
	}
	return out
}

// Save writes the model to path.
func (m *Model) Save(path string) error {
	if err := m.cl.WriteToFile(path); err != nil {
		return fmt.Errorf("saving classifier to %s: %w", path, err)
	}
	return nil
}

// Load reads a model written by Save.
func Load(path string) (*Model, error) {
	cl, err := bayesian.NewClassifierFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading classifier from %s: %w", path, err)
	}
	return &Model{cl: cl}, nil
}

// Tokenize lowercases text and splits it into words, dropping pure numbers
// and single characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || isNumber(f) {
			continue
		}
		words = append(words, f)
	}
	return words
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ReadExamples reads "description,category" records. A header row naming
// those columns is skipped; extra columns are ignored.
func ReadExamples(r io.Reader) ([]Example, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	descCol, catCol := 0, 1
	var out []Example
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 {
			if d, c, ok := headerColumns(rec); ok {
				descCol, catCol = d, c
				continue
			}
		}
		if len(rec) <= max(descCol, catCol) {
			continue
		}
		out = append(out, Example{Description: rec[descCol], Category: rec[catCol]})
	}
	return out, nil
}

func headerColumns(rec []string) (desc, cat int, ok bool) {
	desc, cat = -1, -1
	for i, h := range rec {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "description", "narration", "details":
			desc = i
		case "category", "label":
			cat = i
		}
	}
	return desc, cat, desc >= 0 && cat >= 0
}
