package store

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"medmap/api/internal/match"
)

// Medicine is a catalog row as kept by MemoryCatalog and its seed file.
type Medicine struct {
	ID            string    `yaml:"id"`
	BrandName     string    `yaml:"brand_name"`
	GenericName   string    `yaml:"generic_name"`
	Strength      string    `yaml:"strength"`
	Form          string    `yaml:"form"`
	Category      string    `yaml:"category"`
	Manufacturer  string    `yaml:"manufacturer"`
	IsCombination bool      `yaml:"is_combination"`
	Embedding     []float32 `yaml:"embedding,omitempty"`
}

func (m Medicine) candidate() match.CatalogCandidate {
	return match.CatalogCandidate{
		ID:            m.ID,
		BrandName:     m.BrandName,
		GenericName:   m.GenericName,
		Strength:      m.Strength,
		Form:          m.Form,
		Category:      m.Category,
		Manufacturer:  m.Manufacturer,
		IsCombination: m.IsCombination,
	}
}

// MemoryCatalog is an in-process catalog with the same scoring as
// hybrid_medicine_search: pg_trgm similarity and cosine similarity.
type MemoryCatalog struct {
	mu    sync.RWMutex
	items []Medicine
}

func NewMemoryCatalog(items ...Medicine) *MemoryCatalog {
	return &MemoryCatalog{items: append([]Medicine(nil), items...)}
}

// LoadMemoryCatalog reads a YAML seed file of the form `medicines: [...]`.
func LoadMemoryCatalog(path string) (*MemoryCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog seed: %w", err)
	}
	var doc struct {
		Medicines []Medicine `yaml:"medicines"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog seed %s: %w", path, err)
	}
	for i := range doc.Medicines {
		if doc.Medicines[i].ID == "" {
			doc.Medicines[i].ID = fmt.Sprintf("seed-%d", i+1)
		}
	}
	return NewMemoryCatalog(doc.Medicines...), nil
}

func (c *MemoryCatalog) Add(m Medicine) {
	c.mu.Lock()
	c.items = append(c.items, m)
	c.mu.Unlock()
}

func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *MemoryCatalog) FindExact(ctx context.Context, name, form string) (*match.CatalogCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, form = strings.TrimSpace(name), strings.TrimSpace(form)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.items {
		if !strings.EqualFold(m.BrandName, name) {
			continue
		}
		if form != "" && !strings.EqualFold(m.Form, form) {
			continue
		}
		cand := m.candidate()
		return &cand, nil
	}
	return nil, nil
}

func (c *MemoryCatalog) Search(ctx context.Context, q match.SearchQuery) ([]match.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}
	qt := trigrams(q.Text)

	c.mu.RLock()
	out := make([]match.Candidate, 0, len(c.items))
	for _, m := range c.items {
		cand := match.Candidate{CatalogCandidate: m.candidate()}
		cand.TrgmScore = jaccard(qt, trigrams(m.BrandName))
		if len(q.Vector) > 0 && len(m.Embedding) == len(q.Vector) {
			cand.VectorScore = cosine32(q.Vector, m.Embedding)
		}
		cand.CombinedScore = q.TrgmWeight*cand.TrgmScore + q.VectorWeight*cand.VectorScore
		out = append(out, cand)
	}
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CombinedScore > out[j].CombinedScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Similarity is pg_trgm's similarity(a, b).
func Similarity(a, b string) float64 {
	return jaccard(trigrams(a), trigrams(b))
}

// trigrams follows pg_trgm: lowercase alphanumeric words, each padded with
// two leading blanks and one trailing blank.
func trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		rs := []rune("  " + w + " ")
		for i := 0; i+3 <= len(rs); i++ {
			set[string(rs[i:i+3])] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

func cosine32(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
