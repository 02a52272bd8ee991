// Package embedding wraps text embedders with dimension checks, retries and
// an in-memory cache.
package embedding

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"medmap/api/internal/logger"
)

// Dim is the width of the catalog's embedding column.
const Dim = 1536

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyText         = errors.New("cannot embed empty text")
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelID() string
}

// CheckDim fails loudly on a vector of the wrong width.
func CheckDim(vec []float32, want int) error {
	if len(vec) != want {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, want, len(vec))
	}
	return nil
}

// Guarded validates every vector returned by the wrapped embedder.
type Guarded struct {
	Embedder
	Dim      int
	Attempts int
	Backoff  time.Duration // doubles after each failed attempt
}

func NewGuarded(e Embedder, dim int) *Guarded {
	return &Guarded{Embedder: e, Dim: dim, Attempts: 3, Backoff: time.Second}
}

func (g *Guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	attempts := max(g.Attempts, 1)
	delay := g.Backoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		vec, err := g.Embedder.Embed(ctx, text)
		if err == nil {
			err = CheckDim(vec, g.Dim)
		}
		if err == nil {
			return vec, nil
		}
		lastErr = err
		logger.WithContext(ctx).Warn("embedding attempt failed",
			"model", g.ModelID(), "attempt", attempt, "of", attempts, "err", err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", attempts, lastErr)
}

// Cached memoizes vectors per model and text.
type Cached struct {
	Embedder
	c *cache.Cache
}

func NewCached(e Embedder, ttl time.Duration) *Cached {
	return &Cached{Embedder: e, c: cache.New(ttl, 2*ttl)}
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.ModelID(), text)
	if v, ok := c.c.Get(key); ok {
		return slices.Clone(v.([]float32)), nil
	}
	vec, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.c.SetDefault(key, slices.Clone(vec))
	return vec, nil
}

func cacheKey(model, text string) string {
	h := sha1.Sum([]byte(model + "\x00" + strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(h[:])
}
