package ocr

import (
	"context"
	"strings"

	"medmap/api/internal/logger"
	"medmap/api/internal/metrics"
)

const defaultMinConsensus = 2

// Service is the OCR consensus and escalation engine.
type Service struct {
	Collector *Collector
	Consensus ConsensusBuilder
	Policy    *Policy
	Metrics   *metrics.Recorder
}

func (s *Service) Run(ctx context.Context, img Image, opts Options) (Outcome, error) {
	if len(img.Data) == 0 {
		return Outcome{}, ErrNoImage
	}
	minAgree := opts.MinConsensus
	if minAgree <= 0 {
		minAgree = defaultMinConsensus
	}

	passes := s.Collector.Collect(ctx, img.Data, opts.Passes)
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	usable := make([]PassResult, 0, len(passes))
	for _, p := range passes {
		if strings.TrimSpace(p.Text) != "" {
			usable = append(usable, p)
		}
	}
	consensus := s.Consensus.Build(usable, minAgree)
	best := BestPass(usable)

	logger.WithContext(ctx).Info("ocr passes collected",
		"passes", len(passes), "usable", len(usable),
		"consensus", consensus.Score, "best_variant", best.Variant, "best_confidence", best.Confidence)

	out := s.Policy.Decide(ctx, img, passes, consensus, best)
	if opts.Debug {
		out.PassResults = passes
	}
	s.Metrics.ObserveOCR(string(out.FallbackUsed), string(out.QualityTag))
	return out, nil
}

// RawText wraps already-digital text so it can skip OCR.
func RawText(text string) Outcome {
	return Outcome{
		FinalText:      strings.TrimSpace(text),
		ConsensusScore: 100,
		QualityTag:     HighConfidence,
	}
}

// BestPass picks the highest confidence; the earliest pass wins ties.
func BestPass(passes []PassResult) PassResult {
	var best PassResult
	for i, p := range passes {
		if i == 0 || p.Confidence > best.Confidence {
			best = p
		}
	}
	return best
}
