package match

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeCatalog struct {
	mu      sync.Mutex
	exact   map[string]CatalogCandidate // key: lower(name)
	results []Candidate
	err     error
	queries []SearchQuery
}

func (f *fakeCatalog) FindExact(_ context.Context, name, form string) (*CatalogCandidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	for k, c := range f.exact {
		if k == lower(name) && (form == "" || lower(c.Form) == lower(form)) {
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) Search(_ context.Context, q SearchQuery) ([]Candidate, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type stubStage struct {
	method Method
	cand   *CatalogCandidate
	err    error
	calls  atomic.Int32
}

func (s *stubStage) Method() Method { return s.method }

func (s *stubStage) Find(context.Context, Mention) (*CatalogCandidate, error) {
	s.calls.Add(1)
	return s.cand, s.err
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return f.vec, f.err }

type fakeSource struct {
	name  string
	cand  *CatalogCandidate
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Lookup(ctx context.Context, _ Mention) (*CatalogCandidate, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.cand, f.err
}

var errBackend = errors.New("backend unavailable")

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
