package match

import (
	"math"
	"strings"
)

// Validate scores a candidate against the mention. It always starts from
// c.RawScore, so validating the same pair twice gives the same result.
func (p Profile) Validate(m Mention, c CatalogCandidate) ValidatedMatch {
	score := c.RawScore
	warnings := []Warning{}

	if v := strings.TrimSpace(m.BrandVariant); v != "" {
		if !strings.Contains(strings.ToLower(c.BrandName), strings.ToLower(v)) {
			warnings = append(warnings, VariantMismatch)
			score *= p.VariantPenalty
		}
	}

	// informational only
	if c.IsCombination && !strings.ContainsAny(c.GenericName, "+/") {
		warnings = append(warnings, CombinationViolation)
	}

	if m.Form != "" && c.Form != "" && !strings.EqualFold(strings.TrimSpace(m.Form), strings.TrimSpace(c.Form)) {
		warnings = append(warnings, FormMismatch)
		score *= p.FormPenalty
	}

	score = math.Round(score*100) / 100
	return ValidatedMatch{
		CatalogCandidate: c,
		FinalScore:       score,
		Warnings:         warnings,
		Confidence:       p.Tier(score),
	}
}
