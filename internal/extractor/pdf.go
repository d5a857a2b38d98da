package extractor

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// pageSource is a document whose pages can be read one at a time.
type pageSource interface {
	NumPages() int
	// PageText is the page as plain text lines.
	PageText(i int) string
	// PageRows is the page as positioned rows of cells.
	PageRows(i int) []layoutRow
	Close() error
}

// pdfDocument reads text through the ledongthuc/pdf library.
type pdfDocument struct {
	f      *os.File
	r      *pdf.Reader
	height float64
}

const defaultPageHeight = 842 // A4 in points

func openPDF(path string) (doc *pdfDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	if r.NumPage() == 0 {
		f.Close()
		return nil, fmt.Errorf("PDF has no pages")
	}
	return &pdfDocument{f: f, r: r, height: defaultPageHeight}, nil
}

func (d *pdfDocument) NumPages() int { return d.r.NumPage() }

func (d *pdfDocument) Close() error { return d.f.Close() }

// PageText tries row grouping, then positioned content, then the font-mapped
// plain text, keeping the first readable result.
func (d *pdfDocument) PageText(i int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	page := d.r.Page(i + 1)
	if page.V.IsNull() {
		return ""
	}
	if t := textByRow(page); isReadablePage(t) {
		return t
	}
	if t := joinRows(rowsByContent(page, d.pageHeight(page))); isReadablePage(t) {
		return t
	}
	return textByFonts(page)
}

func (d *pdfDocument) PageRows(i int) (rows []layoutRow) {
	defer func() {
		if r := recover(); r != nil {
			rows = nil
		}
	}()

	page := d.r.Page(i + 1)
	if page.V.IsNull() {
		return nil
	}
	return rowsByContent(page, d.pageHeight(page))
}

func (d *pdfDocument) pageHeight(page pdf.Page) float64 {
	box := page.V.Key("MediaBox")
	if box.Len() == 4 {
		if h := box.Index(3).Float64() - box.Index(1).Float64(); h > 0 {
			return h
		}
	}
	return d.height
}

func textByRow(page pdf.Page) string {
	rows, err := page.GetTextByRow()
	if err != nil {
		return ""
	}
	var lines []string
	for _, row := range rows {
		var parts []string
		for _, word := range row.Content {
			parts = append(parts, word.S)
		}
		if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// rowsByContent groups text objects by baseline and merges neighbours into
// cells. Y is converted to a top-left origin so template areas apply directly.
func rowsByContent(page pdf.Page, height float64) []layoutRow {
	content := page.Content()
	if len(content.Text) == 0 {
		return nil
	}

	byY := make(map[int][]pdf.Text)
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) == "" && t.S != " " {
			continue
		}
		y := int(math.Round(t.Y))
		byY[y] = append(byY[y], t)
	}

	ys := make([]int, 0, len(byY))
	for y := range byY {
		ys = append(ys, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ys)))

	rows := make([]layoutRow, 0, len(ys))
	for _, y := range ys {
		items := byY[y]
		sort.Slice(items, func(a, b int) bool { return items[a].X < items[b].X })

		row := layoutRow{y: height - float64(y)}
		var cur *cell
		var prevEnd float64
		for _, it := range items {
			size := it.FontSize
			if size <= 0 {
				size = 10
			}
			gap := it.X - prevEnd
			switch {
			case cur == nil || gap > math.Max(6, size):
				row.cells = append(row.cells, cell{x0: it.X, x1: it.X + it.W, text: it.S})
				cur = &row.cells[len(row.cells)-1]
			case gap > size*0.15 && !strings.HasSuffix(cur.text, " ") && it.S != " ":
				cur.text += " " + it.S
				cur.x1 = it.X + it.W
			default:
				cur.text += it.S
				cur.x1 = it.X + it.W
			}
			prevEnd = it.X + it.W
		}
		row.trim()
		if len(row.cells) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

func textByFonts(page pdf.Page) string {
	fonts := make(map[string]*pdf.Font)
	for _, name := range page.Fonts() {
		f := page.Font(name)
		fonts[name] = &f
	}
	text, err := page.GetPlainText(fonts)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// textDocument is a document already available as page text, from pdftotext
// or a plain text file. Pages split on form feeds.
type textDocument struct {
	pages []string
}

func (d *textDocument) NumPages() int              { return len(d.pages) }
func (d *textDocument) PageText(i int) string      { return d.pages[i] }
func (d *textDocument) PageRows(i int) []layoutRow { return rowsFromText(strings.Split(d.pages[i], "\n")) }
func (d *textDocument) Close() error               { return nil }

func readTextFile(path string) (*textDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &textDocument{pages: splitPages(string(data))}, nil
}

func splitPages(s string) []string {
	var pages []string
	for _, p := range strings.Split(s, "\f") {
		if strings.TrimSpace(p) != "" {
			pages = append(pages, p)
		}
	}
	return pages
}

// pdftotext uses poppler-utils for PDFs the library cannot decode.
func pdftotext(ctx context.Context, path string) (*textDocument, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not available: %w", err)
	}

	numPages := 0
	if out, err := exec.CommandContext(ctx, "pdfinfo", path).Output(); err == nil {
		for _, line := range strings.Split(string(out), "\n") {
			if strings.HasPrefix(line, "Pages:") {
				numPages, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
			}
		}
	}

	var pages []string
	for i := 1; i <= numPages; i++ {
		n := strconv.Itoa(i)
		out, err := exec.CommandContext(ctx, "pdftotext", "-layout", "-f", n, "-l", n, path, "-").Output()
		if err != nil {
			continue
		}
		pages = append(pages, string(out))
	}
	if len(pages) == 0 {
		out, err := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-").Output()
		if err != nil {
			return nil, fmt.Errorf("pdftotext failed: %w", err)
		}
		pages = splitPages(string(out))
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdftotext produced no output")
	}
	return &textDocument{pages: pages}, nil
}

// textQuality is the share of plain ASCII letters, digits, whitespace and
// common punctuation. Identity-encoded fonts decode to accented garbage that
// unicode.IsLetter would accept.
func textQuality(text string) float64 {
	total, readable := 0, 0
	for _, r := range text {
		total++
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)) {
			readable++
		} else if r == '£' || r == '€' || r == '₹' {
			readable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

// commonWords appear in virtually every bank statement.
var commonWords = []string{
	"bank", "account", "balance", "date", "payment", "statement",
	"total", "amount", "credit", "debit", "transaction", "sort code",
	"money", "paid", "opening", "closing", "transfer", "direct",
	"number", "page", "period", "withdrawal", "deposit",
}

func isReadablePage(text string) bool {
	return len(strings.TrimSpace(text)) > 20 && textQuality(text) > 0.6
}

// isReadableDocument requires enough text, mostly readable characters and at
// least one word expected in a statement.
func isReadableDocument(text string) bool {
	if len(strings.TrimSpace(text)) <= 50 || textQuality(text) <= 0.6 {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range commonWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func joinRows(rows []layoutRow) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, r.text())
	}
	return strings.Join(lines, "\n")
}

// LeadingText returns the first page of a text document, for analysis.
func LeadingText(ctx context.Context, path string) (string, error) {
	if isPDF(path) {
		if doc, err := openPDF(path); err == nil {
			defer doc.Close()
			if t := doc.PageText(0); isReadablePage(t) {
				return t, nil
			}
		}
		doc, err := pdftotext(ctx, path)
		if err != nil {
			return "", err
		}
		return doc.PageText(0), nil
	}
	doc, err := readTextFile(path)
	if err != nil {
		return "", err
	}
	if doc.NumPages() == 0 {
		return "", nil
	}
	return doc.PageText(0), nil
}

func isPDF(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 5)
	n, _ := io.ReadFull(f, head)
	return n == 5 && string(head) == "%PDF-"
}
