package extractor

import (
	"image"
	"image/color"
	"testing"
)

func TestOtsuSeparatesInkFromPaper(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range g.Pix {
		if i%4 == 0 {
			g.Pix[i] = 30
		} else {
			g.Pix[i] = 220
		}
	}
	th := otsu(g)
	if th < 30 || th >= 220 {
		t.Fatalf("threshold %d does not separate 30 from 220", th)
	}
}

func TestPreprocessRemovesSpeckle(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 9, 9))
	for y := 0; y < 9; y++ {
		for x := 0; x < 9; x++ {
			img.Set(x, y, color.White)
		}
	}
	// a block of ink on the left and a single stray pixel on the right
	for y := 2; y < 7; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.Black)
		}
	}
	img.Set(7, 4, color.Black)

	out := Preprocess(img)
	if got := out.GrayAt(7, 4).Y; got != 255 {
		t.Errorf("stray pixel survived: got %d, want 255", got)
	}
	if got := out.GrayAt(1, 4).Y; got != 0 {
		t.Errorf("ink block lost: got %d, want 0", got)
	}
	if out.Bounds() != img.Bounds() {
		t.Errorf("got bounds %v, want %v", out.Bounds(), img.Bounds())
	}
}

func TestIsHEIC(t *testing.T) {
	heic := []byte("\x00\x00\x00\x18ftypheic\x00\x00")
	if !isHEIC(heic) {
		t.Error("expected HEIC brand to be recognised")
	}
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0d")
	if isHEIC(png) {
		t.Error("PNG recognised as HEIC")
	}
	if isHEIC([]byte("ftyp")) {
		t.Error("short header recognised as HEIC")
	}
}
