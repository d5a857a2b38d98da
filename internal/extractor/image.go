package extractor

import (
	"bufio"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/money"
	"github.com/insightdelivered/statement-reconciler/internal/templates"
)

// RenderDPI is the resolution scanned PDF pages are rasterised at.
const RenderDPI = 300

// ImageExtractor OCRs scanned statements: single images and PDFs without a
// text layer.
type ImageExtractor struct {
	OCR OCR
	Log zerolog.Logger
	// Raw skips Preprocess, for engines that do their own cleanup.
	Raw bool
}

// Open decodes a PNG, JPEG, GIF or HEIC image and reads it as one page.
func (e *ImageExtractor) Open(ctx context.Context, src Source) (Cursor, error) {
	if e.OCR == nil {
		return nil, fmt.Errorf("%w: no OCR engine configured for %s", models.ErrUnsupportedFormat, src.Path)
	}
	img, err := decodeImage(src.Path)
	if err != nil {
		return nil, &models.SourceError{Path: src.Path, Err: err}
	}
	return &pagedCursor{
		pages: 1,
		load: func(ctx context.Context, n int) page {
			return e.recognizePage(ctx, img, n, src.Template)
		},
	}, nil
}

// openScanned rasterises each PDF page and OCRs it when the cursor reaches it.
func (e *ImageExtractor) openScanned(ctx context.Context, src Source) (Cursor, error) {
	if e == nil || e.OCR == nil {
		return nil, fmt.Errorf("%w: no OCR engine configured for %s", models.ErrUnsupportedFormat, src.Path)
	}
	doc, err := fitz.New(src.Path)
	if err != nil {
		return nil, &models.SourceError{Path: src.Path, Err: fmt.Errorf("opening PDF for rendering: %w", err)}
	}
	return &pagedCursor{
		pages: doc.NumPage(),
		load: func(ctx context.Context, n int) page {
			img, err := doc.ImageDPI(n, RenderDPI)
			if err != nil {
				e.Log.Warn().Err(err).Int("page", n+1).Str("path", src.Path).Msg("rendering page failed")
				return page{}
			}
			return e.recognizePage(ctx, img, n, src.Template)
		},
		closeFn: doc.Close,
	}, nil
}

// recognizePage never fails: an OCR error leaves the page empty.
func (e *ImageExtractor) recognizePage(ctx context.Context, img image.Image, n int, t *templates.Template) page {
	if !e.Raw {
		img = Preprocess(img)
	}
	text, method, err := e.OCR.Recognize(ctx, img)
	if err != nil {
		e.Log.Warn().Err(err).Int("page", n+1).Msg("OCR failed")
		return page{}
	}

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = money.SanitizeOCR(l)
	}
	clean := strings.Join(lines, "\n")

	p := page{metadata: metadataFromText(clean, t), method: method}
	if t != nil && t.HasFieldMapping() {
		p.rows = recognizeTable(rowsFromText(lines), t.MapHeader)
	}
	if len(p.rows) == 0 {
		p.rows = parseLines(clean)
	}
	e.Log.Debug().Int("page", n+1).Int("rows", len(p.rows)).Str("engine", string(method)).Msg("page recognised")
	return p
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	head, _ := r.Peek(12)
	if isHEIC(head) {
		img, err := heic.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC image: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEIC checks for an ftyp box with a HEIF-family brand.
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

