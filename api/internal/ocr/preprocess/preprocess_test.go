package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(120 + (x*3)%60)
			if y > h/3 && y < h/2 && x%7 < 3 {
				v = 40 // ink strokes
			}
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestVariants(t *testing.T) {
	p := New()
	got := p.Variants()
	want := []string{Standard, HighContrast, Binarized, Deskewed, Inverted}
	if len(got) != len(want) {
		t.Fatalf("variants = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("variant %d = %s, want %s", i, got[i], want[i])
		}
	}
	got[0] = "mutated"
	if p.Variants()[0] != Standard {
		t.Fatal("Variants must return a copy")
	}
}

func TestApplyProducesPNG(t *testing.T) {
	src := samplePNG(t, 80, 40)
	p := New()
	for _, v := range p.Variants() {
		out := p.Apply(v, src)
		if bytes.Equal(out, src) {
			t.Fatalf("%s returned the original bytes", v)
		}
		cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("%s: decode: %v", v, err)
		}
		if format != "png" {
			t.Fatalf("%s: format = %s", v, format)
		}
		if cfg.Width <= 80 {
			t.Fatalf("%s: narrow image was not upscaled (width %d)", v, cfg.Width)
		}
	}
}

func TestStandardUpscalesSmallImagesThreefold(t *testing.T) {
	out := New().Apply(Standard, samplePNG(t, 100, 20))
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 300 || cfg.Height != 60 {
		t.Fatalf("size = %dx%d", cfg.Width, cfg.Height)
	}
}

func TestApplyFallsBackToOriginal(t *testing.T) {
	p := New()
	garbage := []byte("definitely not an image")
	if out := p.Apply(Binarized, garbage); !bytes.Equal(out, garbage) {
		t.Fatal("undecodable input must be returned as is")
	}
	src := samplePNG(t, 10, 10)
	if out := p.Apply("sepia", src); !bytes.Equal(out, src) {
		t.Fatal("unknown variant must return the original")
	}
}

func TestThresholdIsBinary(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	for x, v := range []uint8{10, 99, 100, 240} {
		img.Set(x, 0, color.NRGBA{R: v, G: v, B: v, A: 255})
	}
	out := threshold(img, 100)
	want := []uint8{0, 0, 255, 255}
	for x, w := range want {
		if got := out.NRGBAAt(x, 0).R; got != w {
			t.Fatalf("pixel %d = %d, want %d", x, got, w)
		}
	}
}

func TestNormalizeStretchesRange(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	img.Set(1, 0, color.NRGBA{R: 150, G: 150, B: 150, A: 255})
	out := normalize(img)
	if lo, hi := out.NRGBAAt(0, 0).R, out.NRGBAAt(1, 0).R; lo != 0 || hi != 255 {
		t.Fatalf("range = %d..%d", lo, hi)
	}
}
