package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/templates"
)

// TextExtractor reads paginated text documents: PDFs with a text layer and
// plain text exports. PDFs without readable text go to Scanned for OCR.
type TextExtractor struct {
	Log     zerolog.Logger
	Scanned *ImageExtractor
}

// Open picks the best text source for the file. The ledongthuc/pdf library is
// tried first, then pdftotext, then page rendering plus OCR.
func (e *TextExtractor) Open(ctx context.Context, src Source) (Cursor, error) {
	doc, err := e.open(ctx, src)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return e.Scanned.openScanned(ctx, src)
	}

	return &pagedCursor{
		pages:   doc.NumPages(),
		load:    func(ctx context.Context, n int) page { return e.extractPage(doc, n, src.Template) },
		method:  models.MethodNone,
		closeFn: doc.Close,
	}, nil
}

// open returns nil, nil for a PDF that needs OCR.
func (e *TextExtractor) open(ctx context.Context, src Source) (pageSource, error) {
	if !isPDF(src.Path) {
		doc, err := readTextFile(src.Path)
		if err != nil {
			return nil, &models.SourceError{Path: src.Path, Err: err}
		}
		return doc, nil
	}

	doc, libErr := openPDF(src.Path)
	if libErr == nil {
		if isReadableDocument(doc.PageText(0)) {
			return doc, nil
		}
		doc.Close()
	}

	text, popplerErr := pdftotext(ctx, src.Path)
	if popplerErr == nil && isReadableDocument(text.PageText(0)) {
		return text, nil
	}

	if e.Scanned != nil && e.Scanned.OCR != nil {
		e.Log.Info().Str("path", src.Path).Msg("no text layer, falling back to OCR")
		return nil, nil
	}
	if libErr != nil {
		return nil, &models.SourceError{Path: src.Path, Err: libErr}
	}
	return nil, &models.SourceError{Path: src.Path, Err: fmt.Errorf("no readable text and no OCR engine configured")}
}

// extractPage tries, in order: the template's table area, the template's
// column mapping, generic table recognition and the line heuristic.
func (e *TextExtractor) extractPage(doc pageSource, n int, t *templates.Template) page {
	text := doc.PageText(n)
	p := page{metadata: metadataFromText(text, t)}
	rows := doc.PageRows(n)

	if t != nil {
		if area, ok := t.Area(); ok {
			if got := recognizeTable(within(rows, area), mapperFor(t)); len(got) > 0 {
				p.rows, p.method = got, models.MethodTemplateTable
				return p
			}
		}
		if t.HasFieldMapping() {
			if got := recognizeTable(rows, t.MapHeader); len(got) > 0 {
				p.rows, p.method = got, models.MethodTemplateTable
				return p
			}
		}
	}

	if got := recognizeTable(rows, genericField); len(got) > 0 {
		p.rows, p.method = got, models.MethodTableRecognition
		return p
	}

	p.rows, p.method = parseLines(text), models.MethodTextPattern
	if len(p.rows) == 0 && strings.TrimSpace(text) != "" {
		e.Log.Debug().Int("page", n+1).Msg("no transaction candidates on page")
	}
	return p
}
