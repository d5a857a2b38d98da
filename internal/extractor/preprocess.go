package extractor

import (
	"image"
	"image/color"
	"slices"
)

// Preprocess prepares a page image for OCR: grayscale, Otsu binarisation and
// a 3x3 median filter to remove speckle.
func Preprocess(img image.Image) *image.Gray {
	gray := toGray(img)
	binarize(gray, otsu(gray))
	return median3(gray)
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// otsu returns the threshold that maximises between-class variance.
func otsu(g *image.Gray) uint8 {
	var hist [256]int
	for _, p := range g.Pix {
		hist[p]++
	}
	total := len(g.Pix)
	if total == 0 {
		return 128
	}

	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}

	var sumB, best float64
	var wB int
	threshold := 0
	for i, n := range hist {
		wB += n
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i * n)
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best, threshold = between, i
		}
	}
	return uint8(threshold)
}

func binarize(g *image.Gray, threshold uint8) {
	for i, p := range g.Pix {
		if p > threshold {
			g.Pix[i] = 255
		} else {
			g.Pix[i] = 0
		}
	}
}

func median3(g *image.Gray) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	window := make([]uint8, 0, 9)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					p := image.Pt(x+dx, y+dy)
					if p.In(b) {
						window = append(window, g.GrayAt(p.X, p.Y).Y)
					}
				}
			}
			slices.Sort(window)
			out.SetGray(x, y, color.Gray{Y: window[len(window)/2]})
		}
	}
	return out
}
