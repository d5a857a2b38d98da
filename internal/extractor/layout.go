package extractor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/insightdelivered/statement-reconciler/internal/datefmt"
	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/templates"
)

// cell is a run of text with its horizontal extent. For positioned PDF text
// the unit is points; for layout text it is character columns.
type cell struct {
	x0, x1 float64
	text   string
}

type layoutRow struct {
	y     float64
	cells []cell
}

func (r *layoutRow) trim() {
	out := r.cells[:0]
	for _, c := range r.cells {
		c.text = strings.Join(strings.Fields(c.text), " ")
		if c.text != "" {
			out = append(out, c)
		}
	}
	r.cells = out
}

func (r layoutRow) text() string {
	parts := make([]string, len(r.cells))
	for i, c := range r.cells {
		parts[i] = c.text
	}
	return strings.Join(parts, "  ")
}

var columnGap = regexp.MustCompile(`\S+(?: \S+)*`)

// rowsFromText splits layout text into cells on runs of two or more spaces.
func rowsFromText(lines []string) []layoutRow {
	rows := make([]layoutRow, 0, len(lines))
	for i, line := range lines {
		line = strings.ReplaceAll(line, "\t", "    ")
		row := layoutRow{y: float64(i)}
		for _, loc := range columnGap.FindAllStringIndex(line, -1) {
			x0 := float64(utf8.RuneCountInString(line[:loc[0]]))
			x1 := x0 + float64(utf8.RuneCountInString(line[loc[0]:loc[1]]))
			row.cells = append(row.cells, cell{x0: x0, x1: x1, text: line[loc[0]:loc[1]]})
		}
		row.trim()
		if len(row.cells) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

// within keeps rows and cells inside a template area.
func within(rows []layoutRow, a templates.Area) []layoutRow {
	var out []layoutRow
	for _, r := range rows {
		if r.y < a.Top || r.y > a.Bottom {
			continue
		}
		kept := layoutRow{y: r.y}
		for _, c := range r.cells {
			if c.x0 >= a.Left && c.x1 <= a.Right {
				kept.cells = append(kept.cells, c)
			}
		}
		if len(kept.cells) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

// headerMapper names the canonical field for a column header.
type headerMapper func(header string) (string, bool)

// genericColumns is checked in order, so "Debit Amount" maps to debit.
var genericColumns = []struct {
	field string
	terms []string
}{
	{models.FieldDate, []string{"date"}},
	{models.FieldBalance, []string{"balance"}},
	{models.FieldDebit, []string{"debit", "withdrawal", "paid out", "money out"}},
	{models.FieldCredit, []string{"credit", "deposit", "paid in", "money in"}},
	{models.FieldAmount, []string{"amount"}},
	{models.FieldDescription, []string{"description", "particulars", "details", "narration", "remarks", "transaction"}},
	{models.FieldReference, []string{"ref", "chq", "cheque"}},
}

func genericField(header string) (string, bool) {
	h := strings.ToLower(strings.TrimSpace(header))
	if h == "" {
		return "", false
	}
	for _, col := range genericColumns {
		for _, term := range col.terms {
			if strings.Contains(h, term) {
				return col.field, true
			}
		}
	}
	return "", false
}

// mapperFor prefers the template's field mapping and falls back to the
// generic header vocabulary.
func mapperFor(t *templates.Template) headerMapper {
	if t == nil || !t.HasFieldMapping() {
		return genericField
	}
	return t.MapHeader
}

type column struct {
	field  string
	x0, x1 float64
}

// isHeader accepts a row mapping a date column and a description column, or a
// date column and at least two other known columns.
func isHeader(fields map[string]bool) bool {
	if !fields[models.FieldDate] {
		return false
	}
	return fields[models.FieldDescription] || len(fields) >= 3
}

func headerColumns(row layoutRow, mapField headerMapper) ([]column, bool) {
	var cols []column
	seen := make(map[string]bool)
	for _, c := range row.cells {
		f, ok := mapField(c.text)
		if !ok || seen[f] {
			continue
		}
		seen[f] = true
		cols = append(cols, column{field: f, x0: c.x0, x1: c.x1})
	}
	return cols, isHeader(seen)
}

var summaryRow = regexp.MustCompile(`(?i)\b(?:total|closing balance|opening balance|brought forward|carried forward|balance b/f|balance c/f)\b`)

// recognizeTable finds a header row and turns the rows below it into raw
// rows. Rows without a date that only carry text continue the previous
// row's description.
func recognizeTable(rows []layoutRow, mapField headerMapper) []models.RawRow {
	var cols []column
	start := -1
	for i, r := range rows {
		if c, ok := headerColumns(r, mapField); ok {
			cols, start = c, i
			break
		}
	}
	if start < 0 {
		return nil
	}

	var out []models.RawRow
	for _, r := range rows[start+1:] {
		if _, again := headerColumns(r, mapField); again {
			continue
		}
		line := r.text()
		if summaryRow.MatchString(line) {
			continue
		}

		row := models.RawRow{}
		for _, c := range r.cells {
			f := assignColumn(c, cols)
			if row[f] == "" {
				row[f] = c.text
			} else {
				row[f] += " " + c.text
			}
		}

		if _, loc := datefmt.FindToken(row[models.FieldDate]); loc == nil {
			if len(out) > 0 && onlyText(row) {
				prev := out[len(out)-1]
				prev[models.FieldDescription] = strings.TrimSpace(prev[models.FieldDescription] + " " + row[models.FieldDescription])
			}
			continue
		}
		out = append(out, finalize(row))
	}
	return out
}

func onlyText(row models.RawRow) bool {
	for f, v := range row {
		if f != models.FieldDescription && strings.TrimSpace(v) != "" {
			return false
		}
	}
	return row[models.FieldDescription] != ""
}

// assignColumn picks the column overlapping c the most, or the one whose
// centre is nearest.
func assignColumn(c cell, cols []column) string {
	best, bestOverlap := -1, 0.0
	for i, col := range cols {
		overlap := min(c.x1, col.x1) - max(c.x0, col.x0)
		if overlap > bestOverlap {
			best, bestOverlap = i, overlap
		}
	}
	if best >= 0 {
		return cols[best].field
	}

	centre := (c.x0 + c.x1) / 2
	bestDist := 0.0
	for i, col := range cols {
		d := centre - (col.x0+col.x1)/2
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return cols[best].field
}
