package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"medmap/api/internal/ocr"
)

// Engine implements ocr.Recognizer. Each call gets its own client, so passes
// can run in parallel.
type Engine struct {
	Languages     []string
	clientFactory func() *gosseract.Client
}

func New(langs ...string) *Engine {
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &Engine{Languages: langs, clientFactory: gosseract.NewClient}
}

func (e *Engine) Recognize(ctx context.Context, img []byte) (ocr.Recognition, error) {
	type result struct {
		rec ocr.Recognition
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := e.recognize(img)
		done <- result{rec, err}
	}()

	// tesseract cannot be interrupted; an abandoned call finishes in the background.
	select {
	case <-ctx.Done():
		return ocr.Recognition{}, ctx.Err()
	case r := <-done:
		return r.rec, r.err
	}
}

func (e *Engine) recognize(img []byte) (ocr.Recognition, error) {
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(e.Languages...); err != nil {
		return ocr.Recognition{}, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return ocr.Recognition{}, fmt.Errorf("set psm: %w", err)
	}
	if err := c.SetVariable("preserve_interword_spaces", "1"); err != nil {
		return ocr.Recognition{}, fmt.Errorf("set variable: %w", err)
	}
	if err := c.SetImageFromBytes(img); err != nil {
		return ocr.Recognition{}, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("recognize text: %w", err)
	}

	var conf float64
	if boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD); err == nil {
		conf = meanConfidence(boxes)
	}
	return ocr.Recognition{Text: strings.TrimSpace(text), Confidence: conf}, nil
}

// meanConfidence averages word confidences; tesseract already reports 0..100.
func meanConfidence(boxes []gosseract.BoundingBox) float64 {
	var sum float64
	var n int
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		sum += b.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
