// Package extractor turns statement files into raw transaction rows and
// statement metadata. There is one extractor per format family; all of them
// read through a Cursor so large sources are consumed in fixed-size windows.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/templates"
)

// DefaultChunkSize is the row window used when callers do not choose one.
const DefaultChunkSize = 1000

// Source is one file to extract, with the template chosen by analysis.
type Source struct {
	Path     string
	Format   models.Format
	Template *templates.Template
}

// Cursor yields raw rows in windows. Next returns io.EOF once exhausted.
type Cursor interface {
	Next(ctx context.Context, limit int) ([]models.RawRow, error)
	// Offset is the number of rows returned so far.
	Offset() int
	// Metadata is complete once Next has returned io.EOF.
	Metadata() models.StatementMetadata
	Method() models.ExtractionMethod
	Close() error
}

// Extractor opens a cursor over a source. Open fails only when the source
// cannot be read at all; such errors are *models.SourceError.
type Extractor interface {
	Open(ctx context.Context, src Source) (Cursor, error)
}

// Extract drains an extractor into a single result.
func Extract(ctx context.Context, e Extractor, src Source) (*models.Extraction, error) {
	cur, err := e.Open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	result := &models.Extraction{Transactions: []models.RawRow{}}
	for {
		rows, err := cur.Next(ctx, DefaultChunkSize)
		result.Transactions = append(result.Transactions, rows...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	result.Metadata = cur.Metadata()
	result.Method = cur.Method()
	return result, nil
}

// Set routes sources to the extractor for their format.
type Set struct {
	Text    Extractor
	Image   Extractor
	Tabular Extractor
}

// NewSet builds the default extractors.
func NewSet(log zerolog.Logger, ocr OCR) *Set {
	img := &ImageExtractor{OCR: ocr, Log: log}
	return &Set{
		Text:    &TextExtractor{Log: log, Scanned: img},
		Image:   img,
		Tabular: &TabularExtractor{Log: log},
	}
}

// For returns the extractor handling format.
func (s *Set) For(format models.Format) (Extractor, error) {
	var e Extractor
	switch format {
	case models.FormatTextDocument:
		e = s.Text
	case models.FormatImage:
		e = s.Image
	case models.FormatTabular:
		e = s.Tabular
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, format)
	}
	return e, nil
}

// page is what one load call contributes.
type page struct {
	rows     []models.RawRow
	metadata models.StatementMetadata
	method   models.ExtractionMethod
}

// pagedCursor serves rows from pages loaded on demand. The method reported is
// that of the first page yielding rows.
type pagedCursor struct {
	pages     int
	next      int
	load      func(ctx context.Context, n int) page
	buf       []models.RawRow
	offset    int
	metadata  models.StatementMetadata
	method    models.ExtractionMethod
	methodSet bool
	closeFn   func() error
}

func (c *pagedCursor) Next(ctx context.Context, limit int) ([]models.RawRow, error) {
	if limit <= 0 {
		limit = DefaultChunkSize
	}
	for len(c.buf) < limit && c.next < c.pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := c.load(ctx, c.next)
		c.next++
		c.buf = append(c.buf, p.rows...)
		c.metadata.Merge(p.metadata)
		if !c.methodSet && len(p.rows) > 0 && p.method != "" {
			c.method, c.methodSet = p.method, true
		}
	}
	n := min(limit, len(c.buf))
	out := c.buf[:n:n]
	c.buf = c.buf[n:]
	c.offset += n
	if len(c.buf) == 0 && c.next >= c.pages {
		return out, io.EOF
	}
	return out, nil
}

func (c *pagedCursor) Offset() int                        { return c.offset }
func (c *pagedCursor) Metadata() models.StatementMetadata { return c.metadata }
func (c *pagedCursor) Method() models.ExtractionMethod    { return c.method }

func (c *pagedCursor) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

// sliceCursor windows over rows already in memory.
func sliceCursor(rows []models.RawRow, meta models.StatementMetadata, method models.ExtractionMethod) *pagedCursor {
	return &pagedCursor{
		pages:  1,
		load:   func(context.Context, int) page { return page{rows: rows, metadata: meta, method: method} },
		method: method,
	}
}
