// Package external holds the authorities consulted when the catalog has no
// qualifying candidate.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"medmap/api/internal/match"
)

const (
	SourceOpenFDA   = "OPENFDA_LABEL"
	SourceRxNorm    = "RXNORM"
	SourceKnowledge = "AI_KNOWLEDGE"
)

// OpenFDA looks brands up in the drug label endpoint.
type OpenFDA struct {
	BaseURL    string
	APIKey     string // optional, raises the rate limit
	Confidence float64
	httpc      *http.Client
}

func NewOpenFDA(apiKey string) *OpenFDA {
	return &OpenFDA{
		BaseURL:    "https://api.fda.gov",
		APIKey:     apiKey,
		Confidence: 95,
		httpc:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *OpenFDA) Name() string { return SourceOpenFDA }

func (s *OpenFDA) Lookup(ctx context.Context, m match.Mention) (*match.CatalogCandidate, error) {
	queries := []string{m.SearchName()}
	if m.BrandVariant != "" {
		queries = append(queries, strings.TrimSpace(m.BrandName))
	}
	for _, q := range queries {
		c, err := s.search(ctx, q)
		if err != nil || c != nil {
			return c, err
		}
	}
	return nil, nil
}

type fdaResponse struct {
	Results []struct {
		ID         string   `json:"id"`
		DosageForm []string `json:"dosage_form"`
		OpenFDA    struct {
			BrandName        []string `json:"brand_name"`
			GenericName      []string `json:"generic_name"`
			ManufacturerName []string `json:"manufacturer_name"`
			SubstanceName    []string `json:"substance_name"`
			ProductType      []string `json:"product_type"`
			Route            []string `json:"route"`
		} `json:"openfda"`
	} `json:"results"`
}

func (s *OpenFDA) search(ctx context.Context, name string) (*match.CatalogCandidate, error) {
	v := url.Values{}
	v.Set("search", fmt.Sprintf("openfda.brand_name:%q", name))
	v.Set("limit", "1")
	if s.APIKey != "" {
		v.Set("api_key", s.APIKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/drug/label.json?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil // openFDA answers 404 for an empty result set
	}
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("openfda %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var out fdaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("openfda: decode: %w", err)
	}
	if len(out.Results) == 0 {
		return nil, nil
	}
	r := out.Results[0]
	of := r.OpenFDA

	generic := first(of.GenericName)
	if len(of.SubstanceName) > 1 {
		generic = strings.Join(titleAll(of.SubstanceName), " + ")
	}
	form := first(r.DosageForm)
	if form == "" {
		form = first(of.Route)
	}
	return &match.CatalogCandidate{
		ID:            r.ID,
		BrandName:     titleCase(firstOr(of.BrandName, name)),
		GenericName:   titleCase(generic),
		Form:          titleCase(form),
		Category:      titleCase(first(of.ProductType)),
		Manufacturer:  first(of.ManufacturerName),
		IsCombination: len(of.SubstanceName) > 1,
		RawScore:      s.Confidence,
	}, nil
}

func first(xs []string) string { return firstOr(xs, "") }

func firstOr(xs []string, def string) string {
	for _, x := range xs {
		if x = strings.TrimSpace(x); x != "" {
			return x
		}
	}
	return def
}

// titleCase turns openFDA's upper-case values into "Amoxicillin And Clavulanate".
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func titleAll(xs []string) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = titleCase(x)
	}
	return out
}
