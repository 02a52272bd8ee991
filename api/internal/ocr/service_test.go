package ocr

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fiveVariants = []string{"standard", "highContrast", "binarized", "deskewed", "inverted"}

func TestCollect_KeepsVariantOrder(t *testing.T) {
	rec := &scriptedRecognizer{byPrefix: map[string]Recognition{}}
	for _, v := range fiveVariants {
		rec.byPrefix[v] = Recognition{Text: " Dolo 650 ", Confidence: 70}
	}
	c := &Collector{Preprocess: stubPreprocessor{variants: fiveVariants}, Recognizer: rec}

	got := c.Collect(context.Background(), []byte("img"), 0)
	if len(got) != 5 {
		t.Fatalf("len = %d", len(got))
	}
	for i, p := range got {
		if p.Variant != fiveVariants[i] || p.Text != "Dolo 650" || p.Confidence != 70 {
			t.Fatalf("pass %d = %+v", i, p)
		}
	}
}

func TestCollect_ClampsPassCount(t *testing.T) {
	rec := &scriptedRecognizer{byPrefix: map[string]Recognition{"standard": {Text: "x", Confidence: 1}}}
	c := &Collector{Preprocess: stubPreprocessor{variants: fiveVariants}, Recognizer: rec}
	if got := c.Collect(context.Background(), []byte("img"), 2); len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got := c.Collect(context.Background(), []byte("img"), 9); len(got) != 5 {
		t.Fatalf("len = %d", len(got))
	}
}

func TestCollect_FailuresBecomeEmptyPasses(t *testing.T) {
	rec := &scriptedRecognizer{
		byPrefix: map[string]Recognition{"standard": {Text: "Pan 40", Confidence: 88}},
		fail:     map[string]error{"highContrast": errRecognize},
		panics:   map[string]bool{"binarized": true},
		block:    map[string]bool{"deskewed": true},
	}
	c := &Collector{
		Preprocess:  stubPreprocessor{variants: fiveVariants[:4]},
		Recognizer:  rec,
		PassTimeout: 20 * time.Millisecond,
	}
	got := c.Collect(context.Background(), []byte("img"), 4)
	if got[0].Text != "Pan 40" {
		t.Fatalf("standard = %+v", got[0])
	}
	for _, p := range got[1:] {
		if p.Text != "" || p.Confidence != 0 {
			t.Fatalf("%s should be empty: %+v", p.Variant, p)
		}
	}
}

func TestServiceRun(t *testing.T) {
	rec := &scriptedRecognizer{byPrefix: map[string]Recognition{
		"standard":     {Text: "Dolo 650 Tab", Confidence: 80},
		"highContrast": {Text: "Dolo 650 Tab", Confidence: 75},
		"binarized":    {Text: "Dole 650 Tab", Confidence: 90},
	}}
	svc := &Service{
		Collector: &Collector{Preprocess: stubPreprocessor{variants: fiveVariants[:3]}, Recognizer: rec},
		Policy:    &Policy{Thresholds: DefaultThresholds()},
	}

	got, err := svc.Run(context.Background(), Image{Data: []byte("img")}, Options{Passes: 3, MinConsensus: 2, Debug: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.FinalText != "Dolo 650 Tab" || got.QualityTag != HighConfidence {
		t.Fatalf("got %+v", got)
	}
	if len(got.PassResults) != 3 {
		t.Fatalf("debug passes = %d", len(got.PassResults))
	}

	got, _ = svc.Run(context.Background(), Image{Data: []byte("img")}, Options{Passes: 3})
	if got.PassResults != nil {
		t.Fatal("pass results leaked without debug")
	}
}

func TestServiceRun_EmptyImage(t *testing.T) {
	svc := &Service{}
	if _, err := svc.Run(context.Background(), Image{}, Options{}); !errors.Is(err, ErrNoImage) {
		t.Fatalf("err = %v", err)
	}
}

func TestRawText(t *testing.T) {
	got := RawText("  Tab Dolo 650 \n")
	if got.FinalText != "Tab Dolo 650" || got.ConsensusScore != 100 || got.QualityTag != HighConfidence || got.PassesCompleted != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestBestPass(t *testing.T) {
	got := BestPass([]PassResult{
		{Variant: "a", Confidence: 50},
		{Variant: "b", Confidence: 70},
		{Variant: "c", Confidence: 70},
	})
	if got.Variant != "b" {
		t.Fatalf("variant = %s", got.Variant)
	}
	if BestPass(nil) != (PassResult{}) {
		t.Fatal("empty input")
	}
}
