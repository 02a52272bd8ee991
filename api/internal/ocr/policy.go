package ocr

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"medmap/api/internal/logger"
)

// Thresholds are the escalation policy constants; all of them are tunable.
type Thresholds struct {
	BestPassMin            float64       // below this best-pass confidence, try vision
	ConsensusMin           float64       // below this consensus score, try vision
	SinglePassConsensusMin float64       // below this, prefer the best single pass
	MinTextLen             int           // vision text must be longer; consensus text at least this long
	VisionScore            float64       // score adopted for a vision transcript
	HighTag                float64       // >= HIGH_CONFIDENCE
	MediumTag              float64       // >= MEDIUM_CONFIDENCE
	VisionTimeout          time.Duration // bound on a single vision call
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		BestPassMin:            55,
		ConsensusMin:           30,
		SinglePassConsensusMin: 20,
		MinTextLen:             10,
		VisionScore:            95,
		HighTag:                70,
		MediumTag:              40,
		VisionTimeout:          60 * time.Second,
	}
}

func (t Thresholds) Tag(score float64) QualityTag {
	switch {
	case score >= t.HighTag:
		return HighConfidence
	case score >= t.MediumTag:
		return MediumConfidence
	default:
		return LowQuality
	}
}

// Policy decides between consensus, best single pass and vision transcription.
type Policy struct {
	Thresholds Thresholds
	Vision     VisionTranscriber // optional
}

// Decide never fails: vision errors fall through to the recognizer path and an
// empty LOW_QUALITY outcome is returned when nothing usable exists.
func (p *Policy) Decide(ctx context.Context, img Image, passes []PassResult, consensus ConsensusResult, best PassResult) Outcome {
	t := p.Thresholds
	log := logger.WithContext(ctx)
	completed := len(passes)

	if !anyText(passes) {
		text, err := p.transcribe(ctx, img)
		switch {
		case err != nil:
			log.Error("vision fallback failed with no recognizer text", "err", err)
			return Outcome{QualityTag: LowQuality, PassesCompleted: completed}
		case p.visionUsable(text):
			return p.visionOutcome(text, completed)
		default:
			return Outcome{
				FinalText:       text,
				QualityTag:      LowQuality,
				PassesCompleted: completed,
				FallbackUsed:    FallbackVision,
			}
		}
	}

	if best.Confidence < t.BestPassMin || consensus.Score < t.ConsensusMin {
		log.Info("recognizer quality too low, trying vision",
			"best_confidence", best.Confidence, "best_variant", best.Variant, "consensus", consensus.Score)
		text, err := p.transcribe(ctx, img)
		if err == nil && p.visionUsable(text) {
			return p.visionOutcome(text, completed)
		}
		if err != nil {
			log.Warn("vision fallback failed, using recognizer result", "err", err)
		} else {
			log.Warn("vision transcript too short, using recognizer result", "len", utf8.RuneCountInString(text))
		}
	}

	if consensus.Score < t.SinglePassConsensusMin || utf8.RuneCountInString(strings.TrimSpace(consensus.Text)) < t.MinTextLen {
		log.Info("using best single pass", "variant", best.Variant, "confidence", best.Confidence)
		return Outcome{
			FinalText:       strings.TrimSpace(best.Text),
			ConsensusScore:  best.Confidence,
			QualityTag:      t.Tag(best.Confidence),
			PassesCompleted: completed,
			PassesAgreed:    1,
			FallbackUsed:    FallbackBestSinglePass,
		}
	}

	return Outcome{
		FinalText:       consensus.Text,
		ConsensusScore:  consensus.Score,
		QualityTag:      t.Tag(consensus.Score),
		PassesCompleted: completed,
		PassesAgreed:    consensus.AgreedCount,
	}
}

func (p *Policy) transcribe(ctx context.Context, img Image) (string, error) {
	if p.Vision == nil {
		return "", errNoVision
	}
	if p.Thresholds.VisionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Thresholds.VisionTimeout)
		defer cancel()
	}
	text, err := p.Vision.Transcribe(ctx, img)
	return strings.TrimSpace(text), err
}

func (p *Policy) visionUsable(text string) bool {
	return utf8.RuneCountInString(text) > p.Thresholds.MinTextLen
}

func (p *Policy) visionOutcome(text string, completed int) Outcome {
	return Outcome{
		FinalText:       text,
		ConsensusScore:  p.Thresholds.VisionScore,
		QualityTag:      p.Thresholds.Tag(p.Thresholds.VisionScore),
		PassesCompleted: completed,
		FallbackUsed:    FallbackVision,
	}
}

func anyText(passes []PassResult) bool {
	for _, p := range passes {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}
