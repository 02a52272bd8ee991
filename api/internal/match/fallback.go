package match

import (
	"context"
	"math"
	"time"

	"medmap/api/internal/logger"
	"medmap/api/internal/metrics"
)

// Source is an external authority. The returned candidate's RawScore is the
// confidence the source assigns to its own answer.
type Source interface {
	Name() string
	Lookup(ctx context.Context, m Mention) (*CatalogCandidate, error)
}

// Chain queries sources in order until one answers.
type Chain struct {
	Sources []Source
	Timeout time.Duration
	Profile Profile
	Metrics *metrics.Recorder
}

func NewChain(profile Profile, timeout time.Duration, rec *metrics.Recorder, sources ...Source) *Chain {
	return &Chain{Sources: sources, Timeout: timeout, Profile: profile, Metrics: rec}
}

// Resolve returns nil when no source answers. Source errors are swallowed;
// only cancellation of ctx is returned.
func (c *Chain) Resolve(ctx context.Context, m Mention) (*ExternalMatch, error) {
	log := logger.WithContext(ctx)
	for _, src := range c.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cand, err := c.lookup(ctx, src, m)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("external lookup failed", "source", src.Name(), "brand", m.BrandName, "err", err)
			c.Metrics.ObserveExternal(src.Name(), "error")
			continue
		case cand == nil:
			c.Metrics.ObserveExternal(src.Name(), "miss")
			continue
		}
		c.Metrics.ObserveExternal(src.Name(), "hit")

		out := *cand
		out.Method = MethodExternal
		score := math.Round(cand.RawScore*100) / 100
		return &ExternalMatch{
			ValidatedMatch: ValidatedMatch{
				CatalogCandidate: out,
				FinalScore:       score,
				Warnings:         []Warning{},
				Confidence:       c.Profile.Tier(score),
			},
			VerifiedBy: src.Name(),
		}, nil
	}
	return nil, nil
}

func (c *Chain) lookup(ctx context.Context, src Source, m Mention) (*CatalogCandidate, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	return src.Lookup(ctx, m)
}
