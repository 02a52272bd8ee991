package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"medmap/api/internal/logger"
	"medmap/api/internal/metrics"
)

// Collector runs recognition over several preprocessing variants at once.
type Collector struct {
	Preprocess  Preprocessor
	Recognizer  Recognizer
	PassTimeout time.Duration
	Metrics     *metrics.Recorder
}

// Collect returns one PassResult per requested variant, in variant order.
// A pass that errors, panics or times out yields {variant, "", 0}.
func (c *Collector) Collect(ctx context.Context, img []byte, n int) []PassResult {
	variants := c.Preprocess.Variants()
	if n <= 0 || n > len(variants) {
		n = len(variants)
	}
	variants = variants[:n]

	out := make([]PassResult, n)
	var wg sync.WaitGroup
	for i, v := range variants {
		wg.Add(1)
		go func(i int, variant string) {
			defer wg.Done()
			out[i] = c.pass(ctx, variant, img)
			c.Metrics.ObservePass(variant, strings.TrimSpace(out[i].Text) != "")
		}(i, v)
	}
	wg.Wait()
	return out
}

func (c *Collector) pass(ctx context.Context, variant string, img []byte) (res PassResult) {
	res = PassResult{Variant: variant}
	log := logger.WithContext(ctx).With("variant", variant)
	defer func() {
		if r := recover(); r != nil {
			log.Error("recognition pass panicked", "panic", fmt.Sprint(r))
			res = PassResult{Variant: variant}
		}
	}()

	if c.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PassTimeout)
		defer cancel()
	}

	processed := c.Preprocess.Apply(variant, img)
	rec, err := c.Recognizer.Recognize(ctx, processed)
	if err != nil {
		log.Warn("recognition pass failed", "err", err)
		return res
	}
	if err := ctx.Err(); err != nil {
		log.Warn("recognition pass timed out", "err", err)
		return res
	}
	res.Text = strings.TrimSpace(rec.Text)
	res.Confidence = rec.Confidence
	log.Debug("recognition pass done", "confidence", rec.Confidence, "chars", len(res.Text))
	return res
}
