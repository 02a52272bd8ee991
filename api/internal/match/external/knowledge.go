package external

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"medmap/api/internal/match"
	"medmap/api/internal/util"
)

// Verdict is a knowledge model's answer about whether a medicine exists.
type Verdict struct {
	Exists       bool    `json:"exists"`
	Confidence   float64 `json:"confidence_score"`
	BrandName    string  `json:"brand_name_official"`
	GenericName  string  `json:"generic_name"`
	Strength     string  `json:"standard_strength"`
	Form         string  `json:"standard_form"`
	Manufacturer string  `json:"manufacturer"`
}

// ParseVerdict decodes a model reply, tolerating code fences.
func ParseVerdict(raw string) (Verdict, error) {
	var v Verdict
	body := util.StripCodeFences(raw)
	if body == "" {
		return v, fmt.Errorf("verdict: empty reply")
	}
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return v, fmt.Errorf("verdict: bad JSON: %w", err)
	}
	return v, nil
}

type Verifier interface {
	Verify(ctx context.Context, m match.Mention) (Verdict, error)
}

// Knowledge accepts a model's answer only at or above Floor.
type Knowledge struct {
	Verifier Verifier
	Floor    float64
}

func NewKnowledge(v Verifier) *Knowledge {
	return &Knowledge{Verifier: v, Floor: 90}
}

func (s *Knowledge) Name() string { return SourceKnowledge }

func (s *Knowledge) Lookup(ctx context.Context, m match.Mention) (*match.CatalogCandidate, error) {
	v, err := s.Verifier.Verify(ctx, m)
	if err != nil {
		return nil, err
	}
	if !v.Exists || v.Confidence < s.Floor {
		return nil, nil
	}
	brand := strings.TrimSpace(v.BrandName)
	if brand == "" {
		brand = m.SearchName()
	}
	return &match.CatalogCandidate{
		BrandName:     brand,
		GenericName:   v.GenericName,
		Strength:      v.Strength,
		Form:          v.Form,
		Manufacturer:  v.Manufacturer,
		IsCombination: strings.ContainsAny(v.GenericName, "+/"),
		RawScore:      min(v.Confidence, 100),
	}, nil
}
