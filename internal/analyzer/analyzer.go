// Package analyzer identifies a statement file's format, its rough layout and
// the bank template that applies to it.
package analyzer

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-reconciler/internal/extractor"
	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/templates"
)

// leadingRows is how much of a sheet is searched for identifiers.
const leadingRows = 10

var (
	headerCues = []string{"statement", "account", "summary", "bank"}
	footerCues = []string{"page", "total", "balance", "continued"}
)

// Structure describes what analysis found out about a file.
type Structure struct {
	Format    models.Format
	HasHeader bool
	HasFooter bool
	// HasTable is set when a transaction table header was seen.
	HasTable bool
	// TableRegion is the template's declared table area, if any.
	TableRegion *templates.Area
	Template    *templates.Template
	NeedsOCR    bool
}

// TemplateName returns the matched template's name or "".
func (s Structure) TemplateName() string {
	if s.Template == nil {
		return ""
	}
	return s.Template.Name
}

// Strategy names the extraction route for the structure.
func (s Structure) Strategy() string {
	switch s.Format {
	case models.FormatTextDocument:
		if s.Template != nil {
			return "template_text_extractor"
		}
		return "generic_text_extractor"
	case models.FormatImage:
		return "ocr_extractor"
	case models.FormatTabular:
		if s.Template != nil {
			return "template_tabular_extractor"
		}
		return "tabular_extractor"
	}
	return "none"
}

// Analyzer inspects files against a template set.
type Analyzer struct {
	templates *templates.Set
	log       zerolog.Logger
}

// New returns an Analyzer. A nil set means no templates.
func New(set *templates.Set, log zerolog.Logger) *Analyzer {
	if set == nil {
		set = templates.NewSet()
	}
	return &Analyzer{templates: set, log: log}
}

// Analyze never fails: unreadable content yields FormatUnknown or an empty
// structure.
func (a *Analyzer) Analyze(ctx context.Context, path string) Structure {
	s := Structure{Format: IdentifyFormat(path)}

	var leading string
	switch s.Format {
	case models.FormatTextDocument:
		text, err := extractor.LeadingText(ctx, path)
		if err != nil {
			a.log.Debug().Err(err).Str("path", path).Msg("no leading text, OCR will be needed")
			s.NeedsOCR = true
		}
		leading = text
		s.HasTable = hasTableHeader(strings.Split(text, "\n"))
	case models.FormatTabular:
		rows, err := extractor.LeadingRows(path, leadingRows)
		if err != nil {
			a.log.Warn().Err(err).Str("path", path).Msg("reading leading rows failed")
		}
		lines := make([]string, len(rows))
		for i, r := range rows {
			lines[i] = strings.Join(r, " ")
			if !s.HasTable && isTableHeader(r) {
				s.HasTable = true
			}
		}
		leading = strings.Join(lines, "\n")
	case models.FormatImage:
		// identifiers are matched after OCR; recognising twice is not worth it
		s.NeedsOCR = true
	}

	if leading != "" {
		lower := strings.ToLower(leading)
		s.HasHeader = containsAny(lower, headerCues)
		s.HasFooter = containsAny(lower, footerCues)
		s.Template = a.templates.Detect(leading)
	}
	if s.Template != nil {
		if area, ok := s.Template.Area(); ok {
			s.TableRegion = &area
		}
	}

	a.log.Debug().
		Str("path", path).
		Str("format", string(s.Format)).
		Str("template", s.TemplateName()).
		Str("strategy", s.Strategy()).
		Msg("analyzed statement")
	return s
}

// IdentifyFormat classifies a file by its leading bytes, then by extension.
func IdentifyFormat(path string) models.Format {
	head, err := readHead(path, 512)
	if err != nil || len(head) == 0 {
		return models.FormatUnknown
	}
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return models.FormatTextDocument
	case bytes.HasPrefix(head, []byte("\xD0\xCF\x11\xE0\xA1\xB1\x1A\xE1")):
		// OLE2 compound file: legacy Excel
		return models.FormatTabular
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		if ext == ".xlsx" || ext == ".xlsm" {
			return models.FormatTabular
		}
		return models.FormatUnknown
	case isHEIC(head):
		return models.FormatImage
	}

	mime := http.DetectContentType(head)
	switch {
	case strings.HasPrefix(mime, "image/png"), strings.HasPrefix(mime, "image/jpeg"), strings.HasPrefix(mime, "image/gif"):
		return models.FormatImage
	case strings.HasPrefix(mime, "text/plain"), strings.HasPrefix(mime, "text/csv"):
		switch ext {
		case ".csv", ".tsv":
			return models.FormatTabular
		case ".txt", ".text", "":
			return models.FormatTextDocument
		}
	}
	return models.FormatUnknown
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	m, err := f.Read(buf)
	if m == 0 && err != nil {
		return nil, err
	}
	return buf[:m], nil
}

func isHEIC(head []byte) bool {
	if len(head) < 12 || string(head[4:8]) != "ftyp" {
		return false
	}
	switch string(head[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// isTableHeader looks for a date column next to an amount-like column.
func isTableHeader(cells []string) bool {
	var date, amount bool
	for _, c := range cells {
		c = strings.ToLower(c)
		date = date || strings.Contains(c, "date")
		amount = amount || containsAny(c, []string{"amount", "debit", "credit", "balance", "withdrawal", "deposit", "paid"})
	}
	return date && amount
}

func hasTableHeader(lines []string) bool {
	for _, l := range lines {
		if isTableHeader([]string{l}) {
			return true
		}
	}
	return false
}
