package external

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"medmap/api/internal/match"
	"medmap/api/internal/util"
)

// Memo caches a source's answers, misses included. Errors are not cached.
type Memo struct {
	match.Source
	c *cache.Cache
}

func NewMemo(src match.Source, ttl time.Duration) *Memo {
	return &Memo{Source: src, c: cache.New(ttl, 2*ttl)}
}

func (m *Memo) Lookup(ctx context.Context, mention match.Mention) (*match.CatalogCandidate, error) {
	key := util.FoldKey(mention.RawInput())
	if v, ok := m.c.Get(key); ok {
		c, _ := v.(*match.CatalogCandidate)
		if c == nil {
			return nil, nil
		}
		out := *c
		return &out, nil
	}
	c, err := m.Source.Lookup(ctx, mention)
	if err != nil {
		return nil, err
	}
	m.c.SetDefault(key, c)
	return c, nil
}
