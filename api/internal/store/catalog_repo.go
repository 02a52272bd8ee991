package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"medmap/api/internal/embedding"
	"medmap/api/internal/match"
)

// CatalogRepo serves the medicine catalog from Postgres.
type CatalogRepo struct {
	DB  *sql.DB
	Dim int
}

func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{DB: db, Dim: embedding.Dim} }

const catalogColumns = `id::text, brand_name, generic_name, strength, form, category, manufacturer, is_combination`

func (r *CatalogRepo) FindExact(ctx context.Context, name, form string) (*match.CatalogCandidate, error) {
	const q = `select ` + catalogColumns + `
	           from medicines
	           where lower(brand_name) = lower($1)
	             and ($2 = '' or lower(form) = lower($2))
	           limit 1`
	var c match.CatalogCandidate
	err := r.DB.QueryRowContext(ctx, q, strings.TrimSpace(name), strings.TrimSpace(form)).Scan(
		&c.ID, &c.BrandName, &c.GenericName, &c.Strength, &c.Form, &c.Category, &c.Manufacturer, &c.IsCombination,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: find exact: %w", err)
	}
	return &c, nil
}

func (r *CatalogRepo) Search(ctx context.Context, q match.SearchQuery) ([]match.Candidate, error) {
	const sq = `select id::text, brand_name, generic_name, strength, form, category, manufacturer, is_combination,
	                   trgm_score, vector_score, combined_score
	            from hybrid_medicine_search($1, $2::vector, $3, $4, $5)`
	vec := q.Vector
	if vec == nil {
		vec = make([]float32, r.dim())
	}
	if err := embedding.CheckDim(vec, r.dim()); err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.DB.QueryContext(ctx, sq, q.Text, VectorLiteral(vec), limit, q.TrgmWeight, q.VectorWeight)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	defer rows.Close()

	var out []match.Candidate
	for rows.Next() {
		var c match.Candidate
		if err := rows.Scan(
			&c.ID, &c.BrandName, &c.GenericName, &c.Strength, &c.Form, &c.Category, &c.Manufacturer, &c.IsCombination,
			&c.TrgmScore, &c.VectorScore, &c.CombinedScore,
		); err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) dim() int {
	if r.Dim > 0 {
		return r.Dim
	}
	return embedding.Dim
}

// VectorLiteral renders v in pgvector text form: [0.1,0.2,...].
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 8)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
