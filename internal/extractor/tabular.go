package extractor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/statement-reconciler/internal/datefmt"
	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/templates"
)

const (
	// headerScanRows bounds the search for a generic header row.
	headerScanRows = 10
	// trailerRows is how many rows are held back so footers can be dropped.
	trailerRows = 9
	// closingScanRows is how far from the end a closing balance is looked for.
	closingScanRows = 5
	// openingScanRows is how many leading data rows may state the opening
	// balance.
	openingScanRows = 5
)

var trailerPattern = regexp.MustCompile(`(?i)\b(?:total|balance|closing)\b`)

// TabularExtractor reads CSV, XLS and XLSX statements row by row.
type TabularExtractor struct {
	Log zerolog.Logger
}

// rowReader yields one sheet row per call and io.EOF at the end.
type rowReader interface {
	read() ([]string, error)
	close() error
}

func (e *TabularExtractor) Open(ctx context.Context, src Source) (Cursor, error) {
	r, err := openRows(src.Path)
	if err != nil {
		return nil, &models.SourceError{Path: src.Path, Err: err}
	}
	c := &tabularCursor{
		r:    r,
		t:    src.Template,
		path: src.Path,
		log:  e.Log,
	}
	if err := c.readHeader(); err != nil {
		r.close()
		return nil, &models.SourceError{Path: src.Path, Err: err}
	}
	return c, nil
}

func openRows(path string) (rowReader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xls":
		return openXLS(path)
	case ".xlsx", ".xlsm":
		return openXLSX(path)
	default:
		return openCSV(path)
	}
}

// tabularCursor locates the header, then streams data rows through a
// holdback window so trailing summary rows can be cut at the end.
type tabularCursor struct {
	r    rowReader
	t    *templates.Template
	path string
	log  zerolog.Logger

	columns  map[int]string
	pending  [][]string // rows read while looking for the header
	index    int        // data row index after the header
	dataRows int        // non-blank rows seen inside the template window
	holdback [][]string
	out      []models.RawRow
	offset   int
	done     bool

	meta     models.StatementMetadata
	method   models.ExtractionMethod
	first    string // earliest canonical date seen
	last     string
	finished bool
}

func (c *tabularCursor) readHeader() error {
	scan := headerScanRows
	if c.t != nil {
		scan = max(scan, c.t.MetadataRows())
	}

	var head [][]string
	for len(head) < scan {
		row, err := c.r.read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		head = append(head, row)
	}
	if len(head) == 0 {
		return fmt.Errorf("no rows")
	}

	mapField := headerMapper(genericField)
	c.method = models.MethodTabularHeuristic
	if c.t != nil && c.t.HasFieldMapping() {
		mapField = c.t.MapHeader
		c.method = models.MethodTabularTemplate
	}

	at := 0
	for i, row := range head {
		if cols := mapColumns(row, mapField); c.isHeader(cols) {
			at = i
			break
		}
	}
	c.columns = mapColumns(head[at], mapField)

	var preamble []string
	for _, row := range head[:at] {
		preamble = append(preamble, strings.Join(row, "  "))
	}
	c.meta = metadataFromText(strings.Join(preamble, "\n"), c.t)
	if c.meta.BankName == "" {
		c.meta.BankName = bankFromFileName(c.path)
	}
	c.pending = head[at+1:]
	return nil
}

// isHeader: with a template, two mapped columns; otherwise a date column
// together with a description column.
func (c *tabularCursor) isHeader(cols map[int]string) bool {
	fields := make(map[string]bool, len(cols))
	for _, f := range cols {
		fields[f] = true
	}
	if c.method == models.MethodTabularTemplate {
		return len(fields) >= 2
	}
	return fields[models.FieldDate] && fields[models.FieldDescription]
}

func mapColumns(row []string, mapField headerMapper) map[int]string {
	cols := make(map[int]string)
	seen := make(map[string]bool)
	for i, h := range row {
		f, ok := mapField(strings.TrimSpace(h))
		if !ok || seen[f] {
			continue
		}
		cols[i] = f
		seen[f] = true
	}
	return cols
}

func (c *tabularCursor) Next(ctx context.Context, limit int) ([]models.RawRow, error) {
	if limit <= 0 {
		limit = DefaultChunkSize
	}
	for len(c.out) < limit && !c.done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := c.nextRow()
		if errors.Is(err, io.EOF) {
			c.finish()
			break
		}
		if err != nil {
			return nil, &models.SourceError{Path: c.path, Err: err}
		}
		if !c.inRange() {
			continue
		}
		if isBlank(row) {
			continue
		}
		c.dataRows++
		if c.balanceRow(row) {
			continue
		}
		c.holdback = append(c.holdback, row)
		if len(c.holdback) > trailerRows {
			c.emit(c.holdback[0])
			c.holdback = c.holdback[1:]
		}
	}

	n := min(limit, len(c.out))
	out := c.out[:n:n]
	c.out = c.out[n:]
	c.offset += n
	if c.done && len(c.out) == 0 {
		return out, io.EOF
	}
	return out, nil
}

func (c *tabularCursor) nextRow() ([]string, error) {
	if len(c.pending) > 0 {
		row := c.pending[0]
		c.pending = c.pending[1:]
		return row, nil
	}
	return c.r.read()
}

// inRange applies the template's [start, end) window and advances the index.
func (c *tabularCursor) inRange() bool {
	i := c.index
	c.index++
	if c.t == nil {
		return true
	}
	start, end := c.t.Rows()
	if i < start {
		return false
	}
	if end > 0 && i >= end {
		c.done = true
		c.finish()
		return false
	}
	return true
}

// finish drops trailing footer rows and completes the metadata.
func (c *tabularCursor) finish() {
	if c.finished {
		return
	}
	c.finished, c.done = true, true

	tail := c.holdback
	for len(tail) > 0 && c.isFooter(tail[len(tail)-1]) {
		tail = tail[:len(tail)-1]
	}
	if !c.meta.ClosingBalance.Valid {
		from := max(0, len(c.holdback)-closingScanRows)
		var lines []string
		for _, row := range c.holdback[from:] {
			lines = append(lines, strings.Join(row, "  "))
		}
		c.meta.ClosingBalance = findBalance(closingPattern, strings.Join(lines, "\n"))
	}
	for _, row := range tail {
		c.emit(row)
	}
	c.holdback = nil

	if c.meta.PeriodStart == "" && c.first != "" {
		c.meta.PeriodStart, c.meta.PeriodEnd = c.first, c.last
	}
}

// balanceRow reports whether a data row states the opening or closing
// balance instead of a transaction. The amount fills the metadata unless the
// preamble already gave one.
func (c *tabularCursor) balanceRow(row []string) bool {
	line := strings.Join(row, "  ")
	if c.dataRows <= openingScanRows {
		if b := findBalance(openingPattern, line); b.Valid {
			if !c.meta.OpeningBalance.Valid {
				c.meta.OpeningBalance = b
			}
			return true
		}
	}
	if b := findBalance(closingPattern, line); b.Valid {
		if !c.meta.ClosingBalance.Valid {
			c.meta.ClosingBalance = b
		}
		return true
	}
	return false
}

// isFooter matches summary rows: no date when there is a date column,
// otherwise summary words.
func (c *tabularCursor) isFooter(row []string) bool {
	for i, f := range c.columns {
		if f != models.FieldDate {
			continue
		}
		if i >= len(row) {
			return true
		}
		_, ok := datefmt.Normalize(cellDate(row[i]), layoutsFor(c.t)...)
		return !ok
	}
	return trailerPattern.MatchString(strings.Join(row, " "))
}

func (c *tabularCursor) emit(cells []string) {
	row := make(models.RawRow, len(c.columns))
	for i, f := range c.columns {
		if i < len(cells) {
			row[f] = strings.TrimSpace(cells[i])
		}
	}
	if d := row.Get(models.FieldDate); d != "" {
		row[models.FieldDate] = cellDate(d)
		if canon, ok := datefmt.Normalize(row[models.FieldDate], layoutsFor(c.t)...); ok {
			if c.first == "" || canon < c.first {
				c.first = canon
			}
			if canon > c.last {
				c.last = canon
			}
		}
	}
	c.out = append(c.out, finalize(row))
}

func (c *tabularCursor) Offset() int                        { return c.offset }
func (c *tabularCursor) Metadata() models.StatementMetadata { return c.meta }
func (c *tabularCursor) Method() models.ExtractionMethod    { return c.method }
func (c *tabularCursor) Close() error                       { return c.r.close() }

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// cellDate turns an Excel serial day number into a canonical date. Other
// values pass through.
func cellDate(v string) string {
	v = strings.TrimSpace(v)
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < 20000 || n > 80000 {
		return v
	}
	return excelEpoch.AddDate(0, 0, int(n)).Format(datefmt.Canonical)
}

var bankAliases = map[string]string{
	"hdfc": "HDFC Bank", "sbi": "State Bank of India", "icici": "ICICI Bank", "axis": "Axis Bank",
	"kotak": "Kotak Mahindra Bank", "pnb": "Punjab National Bank", "canara": "Canara Bank",
	"idbi": "IDBI Bank", "chase": "Chase", "bofa": "Bank of America", "wells": "Wells Fargo",
	"citi": "Citibank", "hsbc": "HSBC", "barclays": "Barclays", "metro": "Metro Bank",
}

// bankFromFileName looks for a bank name or short code in the file name.
func bankFromFileName(path string) string {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if b := findBank(strings.NewReplacer("_", " ", "-", " ").Replace(base)); b != "" {
		return b
	}
	for _, tok := range strings.FieldsFunc(base, func(r rune) bool { return r == '_' || r == '-' || r == ' ' || r == '.' }) {
		if b, ok := bankAliases[tok]; ok {
			return b
		}
	}
	return ""
}

// csvRows streams a delimited file.
type csvRows struct {
	f *os.File
	r *csv.Reader
}

func openCSV(path string) (*csvRows, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	sample, _ := br.Peek(4096)
	r := csv.NewReader(br)
	r.Comma = sniffDelimiter(sample)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return &csvRows{f: f, r: r}, nil
}

func (c *csvRows) read() ([]string, error) { return c.r.Read() }
func (c *csvRows) close() error            { return c.f.Close() }

// sniffDelimiter picks the candidate that appears most often in the first lines.
func sniffDelimiter(sample []byte) rune {
	sample = bytes.TrimPrefix(sample, []byte("\xef\xbb\xbf"))
	lines := bytes.SplitN(sample, []byte("\n"), 6)
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		count := 0
		for _, l := range lines {
			count += bytes.Count(l, []byte(string(d)))
		}
		if count > bestCount {
			best, bestCount = d, count
		}
	}
	return best
}

// xlsRows reads the first sheet of a legacy workbook.
type xlsRows struct {
	sheet *xls.WorkSheet
	next  int
}

func openXLS(path string) (*xlsRows, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("error opening XLS file: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, fmt.Errorf("no sheets found in XLS file")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("could not get first sheet")
	}
	return &xlsRows{sheet: sheet}, nil
}

func (x *xlsRows) read() ([]string, error) {
	if x.next > int(x.sheet.MaxRow) {
		return nil, io.EOF
	}
	row := x.sheet.Row(x.next)
	x.next++
	if row == nil {
		return []string{}, nil
	}
	cells := make([]string, row.LastCol())
	for i := range cells {
		cells[i] = row.Col(i)
	}
	return cells, nil
}

func (x *xlsRows) close() error { return nil }

// xlsxRows streams the first sheet of a workbook.
type xlsxRows struct {
	f    *excelize.File
	rows *excelize.Rows
}

func openXLSX(path string) (*xlsxRows, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("error opening XLSX file: %w", err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("no sheets found in XLSX file")
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return &xlsxRows{f: f, rows: rows}, nil
}

func (x *xlsxRows) read() ([]string, error) {
	if !x.rows.Next() {
		if err := x.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return x.rows.Columns()
}

func (x *xlsxRows) close() error {
	x.rows.Close()
	return x.f.Close()
}

// LeadingRows returns up to n rows from the start of a sheet, for analysis.
func LeadingRows(path string, n int) ([][]string, error) {
	r, err := openRows(path)
	if err != nil {
		return nil, err
	}
	defer r.close()

	var rows [][]string
	for len(rows) < n {
		row, err := r.read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
