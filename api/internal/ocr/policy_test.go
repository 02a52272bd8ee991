package ocr

import (
	"context"
	"errors"
	"testing"
)

func decide(t *testing.T, vision VisionTranscriber, passes []PassResult, minAgree int) Outcome {
	t.Helper()
	var usable []PassResult
	for _, p := range passes {
		if p.Text != "" {
			usable = append(usable, p)
		}
	}
	p := &Policy{Thresholds: DefaultThresholds(), Vision: vision}
	return p.Decide(context.Background(), Image{Data: []byte("img")}, passes,
		BuildConsensus(usable, minAgree), BestPass(usable))
}

func TestDecide_ConsensusAccepted(t *testing.T) {
	vision := &fakeVision{text: "should not be used"}
	got := decide(t, vision, []PassResult{
		{Variant: "standard", Text: "Dolo 650 Tab", Confidence: 80},
		{Variant: "highContrast", Text: "Dolo 650 Tab", Confidence: 75},
		{Variant: "binarized", Text: "Dole 650 Tab", Confidence: 90},
	}, 2)
	if got.FinalText != "Dolo 650 Tab" || got.ConsensusScore != 100 || got.QualityTag != HighConfidence {
		t.Fatalf("got %+v", got)
	}
	if got.FallbackUsed != FallbackNone || got.PassesCompleted != 3 || got.PassesAgreed != 3 {
		t.Fatalf("got %+v", got)
	}
	if vision.calls.Load() != 0 {
		t.Fatal("vision must not be called for good passes")
	}
}

func TestDecide_LowQualityEscalatesToVision(t *testing.T) {
	vision := &fakeVision{text: "Tab Augmentin 625 Duo BD x 5 days"}
	got := decide(t, vision, []PassResult{
		{Variant: "standard", Text: "Tb Agmntn 62S", Confidence: 40},
		{Variant: "binarized", Text: "T8 Augm 6 Dvo", Confidence: 35},
	}, 2)
	if got.FallbackUsed != FallbackVision {
		t.Fatalf("fallback = %q", got.FallbackUsed)
	}
	if got.FinalText != vision.text || got.ConsensusScore != 95 || got.QualityTag != HighConfidence {
		t.Fatalf("got %+v", got)
	}
}

func TestDecide_LowBestPassAndConsensus(t *testing.T) {
	best := PassResult{Variant: "standard", Text: "Tb Agmntn 62S", Confidence: 40}
	passes := []PassResult{best, {Variant: "binarized", Text: "T8 Augm 6 Dvo", Confidence: 35}}
	consensus := ConsensusResult{Text: "Tb Augm 62S Dvo", Score: 15, AgreedCount: 0}
	th := DefaultThresholds()

	cases := []struct {
		name     string
		vision   string
		fallback Fallback
		text     string
		score    float64
		tag      QualityTag
	}{
		{"long vision text", "Tab Augmentin 625 Duo BD", FallbackVision, "Tab Augmentin 625 Duo BD", 95, HighConfidence},
		{"eleven runes", "Augmentin62", FallbackVision, "Augmentin62", 95, HighConfidence},
		{"exactly ten runes", "Augmentin6", FallbackBestSinglePass, best.Text, 40, th.Tag(40)},
		{"short vision text", "Augmentin", FallbackBestSinglePass, best.Text, 40, th.Tag(40)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vision := &fakeVision{text: tc.vision}
			p := &Policy{Thresholds: th, Vision: vision}
			got := p.Decide(context.Background(), Image{Data: []byte("img")}, passes, consensus, best)
			if got.FallbackUsed != tc.fallback {
				t.Fatalf("fallback = %q, want %q", got.FallbackUsed, tc.fallback)
			}
			if got.FinalText != tc.text || got.ConsensusScore != tc.score || got.QualityTag != tc.tag {
				t.Fatalf("got %+v", got)
			}
			if vision.calls.Load() != 1 {
				t.Fatalf("vision calls = %d", vision.calls.Load())
			}
		})
	}
}

func TestDecide_VisionFailureFallsBackToBestPass(t *testing.T) {
	vision := &fakeVision{err: errors.New("upstream 503")}
	got := decide(t, vision, []PassResult{
		{Variant: "standard", Text: "Pan 4O OD", Confidence: 50},
		{Variant: "inverted", Text: "Pam 40 0D", Confidence: 45},
	}, 2)
	if got.FallbackUsed != FallbackBestSinglePass {
		t.Fatalf("fallback = %q", got.FallbackUsed)
	}
	if got.FinalText != "Pan 4O OD" || got.ConsensusScore != 50 || got.PassesAgreed != 1 {
		t.Fatalf("got %+v", got)
	}
	if got.QualityTag != MediumConfidence {
		t.Fatalf("tag = %s", got.QualityTag)
	}
}

func TestDecide_ShortVisionTextIgnored(t *testing.T) {
	vision := &fakeVision{text: "Pan 40"}
	got := decide(t, vision, []PassResult{
		{Variant: "standard", Text: "Pantop 40 mg before food", Confidence: 50},
		{Variant: "binarized", Text: "Pantop 40 mg before food", Confidence: 52},
	}, 2)
	if got.FallbackUsed != FallbackNone || got.FinalText != "Pantop 40 mg before food" {
		t.Fatalf("got %+v", got)
	}
	if vision.calls.Load() != 1 {
		t.Fatalf("vision calls = %d", vision.calls.Load())
	}
}

func TestDecide_ShortConsensusUsesBestPass(t *testing.T) {
	got := decide(t, nil, []PassResult{
		{Variant: "standard", Text: "Dolo", Confidence: 60},
		{Variant: "binarized", Text: "Dolo", Confidence: 70},
	}, 2)
	if got.FallbackUsed != FallbackBestSinglePass || got.ConsensusScore != 70 {
		t.Fatalf("got %+v", got)
	}
}

func TestDecide_AllEmpty(t *testing.T) {
	empty := []PassResult{{Variant: "standard"}, {Variant: "binarized"}}

	t.Run("vision succeeds", func(t *testing.T) {
		got := decide(t, &fakeVision{text: "Cap Omez 20 mg twice daily"}, empty, 2)
		if got.FallbackUsed != FallbackVision || got.ConsensusScore != 95 {
			t.Fatalf("got %+v", got)
		}
	})
	t.Run("vision fails", func(t *testing.T) {
		got := decide(t, &fakeVision{err: errors.New("boom")}, empty, 2)
		if got.FinalText != "" || got.ConsensusScore != 0 || got.QualityTag != LowQuality {
			t.Fatalf("got %+v", got)
		}
		if got.PassesCompleted != 2 {
			t.Fatalf("passes completed = %d", got.PassesCompleted)
		}
	})
	t.Run("no vision", func(t *testing.T) {
		got := decide(t, nil, empty, 2)
		if got.FinalText != "" || got.QualityTag != LowQuality {
			t.Fatalf("got %+v", got)
		}
	})
}

func TestThresholdsTag(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		score float64
		want  QualityTag
	}{
		{100, HighConfidence},
		{70, HighConfidence},
		{69.99, MediumConfidence},
		{40, MediumConfidence},
		{39.9, LowQuality},
		{0, LowQuality},
	}
	for _, c := range cases {
		if got := th.Tag(c.score); got != c.want {
			t.Errorf("Tag(%v) = %s, want %s", c.score, got, c.want)
		}
	}
}
