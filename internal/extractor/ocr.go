package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-reconciler/internal/models"
)

// OCR turns a page image into text and names the engine that produced it.
type OCR interface {
	Recognize(ctx context.Context, img image.Image) (string, models.ExtractionMethod, error)
}

// Tesseract runs the local tesseract binary.
type Tesseract struct {
	Cmd  string // defaults to "tesseract"
	Lang string // defaults to "eng"
	// PSM 6 assumes a single uniform block of text, which keeps table rows on one line.
	PSM int
}

// Available reports whether the binary can be found.
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.cmd())
	return err == nil
}

func (t *Tesseract) cmd() string {
	if t.Cmd == "" {
		return "tesseract"
	}
	return t.Cmd
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, models.ExtractionMethod, error) {
	text, err := t.recognize(ctx, img)
	return text, models.MethodOCRTesseract, err
}

func (t *Tesseract) recognize(ctx context.Context, img image.Image) (string, error) {
	if !t.Available() {
		return "", fmt.Errorf("tesseract not available (install tesseract-ocr)")
	}

	tmp, err := os.CreateTemp("", "ocr-page-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encoding page image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	lang, psm := t.Lang, t.PSM
	if lang == "" {
		lang = "eng"
	}
	if psm == 0 {
		psm = 6
	}

	// "stdout" as the output base makes tesseract print instead of writing a file
	cmd := exec.CommandContext(ctx, t.cmd(), tmp.Name(), "stdout", "-l", lang, "--psm", strconv.Itoa(psm))
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("tesseract failed: %v (output: %s)", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("tesseract failed: %w", err)
	}
	return string(out), nil
}

// Fallback tries each engine in order until one produces text.
type Fallback struct {
	Engines []OCR
	Log     zerolog.Logger
}

func (f *Fallback) Recognize(ctx context.Context, img image.Image) (string, models.ExtractionMethod, error) {
	var errs []error
	for _, e := range f.Engines {
		text, method, err := e.Recognize(ctx, img)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, method, nil
		}
		if err != nil {
			f.Log.Warn().Err(err).Str("engine", string(method)).Msg("OCR engine failed")
			errs = append(errs, err)
		}
	}
	return "", models.MethodNone, errors.Join(errs...)
}
