// Package preprocess renders the image variants fed to the recognition passes.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // phone uploads and Telegram documents
)

const (
	Standard     = "standard"
	HighContrast = "highContrast"
	Binarized    = "binarized"
	Deskewed     = "deskewed"
	Inverted     = "inverted"
)

// Order matters: a request for N passes takes the first N variants.
var variants = []string{Standard, HighContrast, Binarized, Deskewed, Inverted}

type filter func(image.Image) image.Image

// Pipeline implements ocr.Preprocessor on top of imaging.
type Pipeline struct {
	filters map[string]filter
}

func New() *Pipeline {
	return &Pipeline{filters: map[string]filter{
		Standard:     standard,
		HighContrast: highContrast,
		Binarized:    binarized,
		Deskewed:     deskewed,
		Inverted:     inverted,
	}}
}

func (p *Pipeline) Variants() []string {
	return append([]string(nil), variants...)
}

// Apply returns a PNG of the requested variant, or the original bytes if the
// image cannot be decoded or the variant is unknown.
func (p *Pipeline) Apply(variant string, data []byte) []byte {
	out, err := p.render(variant, data)
	if err != nil {
		slog.Warn("preprocess failed, using original", "variant", variant, "err", err)
		return data
	}
	return out
}

func (p *Pipeline) render(variant string, data []byte) (out []byte, err error) {
	f, ok := p.filters[variant]
	if !ok {
		return nil, fmt.Errorf("unknown variant %q", variant)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("filter panic: %v", r)
		}
	}()

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, f(img), imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

// upscale enlarges narrow phone shots; handwriting needs resolution.
func upscale(img image.Image, below, factor int) image.Image {
	w := img.Bounds().Dx()
	if w == 0 || w >= below {
		return img
	}
	return imaging.Resize(img, w*factor, 0, imaging.Lanczos)
}

func standard(img image.Image) image.Image {
	factor := 2
	if img.Bounds().Dx() < 1000 {
		factor = 3
	}
	g := normalize(imaging.Grayscale(upscale(img, 2000, factor)))
	return imaging.Sharpen(g, 2)
}

// highContrast targets faded ink and pencil.
func highContrast(img image.Image) image.Image {
	g := normalize(imaging.Grayscale(upscale(img, 1500, 2)))
	g = imaging.AdjustBrightness(g, 20)
	g = imaging.AdjustContrast(g, 60)
	return imaging.Sharpen(g, 3)
}

func binarized(img image.Image) image.Image {
	g := normalize(imaging.Grayscale(upscale(img, 1500, 2)))
	g = threshold(g, 100)
	return imaging.Sharpen(imaging.Blur(g, 0.5), 1)
}

// deskewed relies on EXIF auto-orientation at decode time, then uses a
// higher threshold and stronger denoise for tilted or noisy shots.
func deskewed(img image.Image) image.Image {
	g := normalize(imaging.Grayscale(upscale(img, 1500, 2)))
	g = threshold(g, 150)
	return imaging.Sharpen(imaging.Blur(g, 1), 2)
}

// inverted handles light text on dark backgrounds.
func inverted(img image.Image) image.Image {
	g := normalize(imaging.Invert(imaging.Grayscale(upscale(img, 1500, 2))))
	return imaging.Sharpen(g, 1)
}

// normalize stretches luminance to the full 0..255 range.
func normalize(img *image.NRGBA) *image.NRGBA {
	lo, hi := uint8(255), uint8(0)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		v := img.Pix[i]
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi <= lo {
		return img
	}
	scale := 255 / float64(hi-lo)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		stretch := func(v uint8) uint8 {
			return uint8(min(255, float64(v-lo)*scale+0.5))
		}
		return color.NRGBA{R: stretch(max(c.R, lo)), G: stretch(max(c.G, lo)), B: stretch(max(c.B, lo)), A: c.A}
	})
}

func threshold(img *image.NRGBA, level uint8) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		if c.R >= level {
			return color.NRGBA{R: 255, G: 255, B: 255, A: c.A}
		}
		return color.NRGBA{A: c.A}
	})
}
