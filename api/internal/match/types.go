package match

import (
	"strings"

	"medmap/api/internal/util"
)

// Mention is one medicine as extracted from the prescription text.
// BrandVariant is a product-line suffix ("625"), never a dose.
type Mention struct {
	BrandName       string `json:"brand_name"`
	RawBrandToken   string `json:"raw_brand_token,omitempty"`
	BrandVariant    string `json:"brand_variant,omitempty"`
	Form            string `json:"form,omitempty"`
	FrequencyPerDay *int   `json:"frequency_per_day,omitempty"`
	DurationDays    *int   `json:"duration_days,omitempty"`
}

// RawInput is brand, variant and form joined by spaces.
func (m Mention) RawInput() string {
	return util.JoinNonEmpty(m.BrandName, m.BrandVariant, m.Form)
}

// SearchName is the brand name with its variant, used by lexical stages.
func (m Mention) SearchName() string {
	name := strings.TrimSpace(m.BrandName)
	if v := strings.TrimSpace(m.BrandVariant); v != "" {
		return name + " " + v
	}
	return name
}

type Method string

const (
	MethodExact    Method = "EXACT"
	MethodFuzzy    Method = "FUZZY"
	MethodVector   Method = "VECTOR"
	MethodExternal Method = "EXTERNAL"
)

type CatalogCandidate struct {
	ID            string  `json:"id,omitempty"`
	BrandName     string  `json:"brand_name"`
	GenericName   string  `json:"generic_name"`
	Strength      string  `json:"strength"`
	Form          string  `json:"form"`
	Category      string  `json:"category,omitempty"`
	Manufacturer  string  `json:"manufacturer,omitempty"`
	IsCombination bool    `json:"is_combination"`
	Method        Method  `json:"match_method"`
	RawScore      float64 `json:"raw_score"`
}

type Warning string

const (
	VariantMismatch      Warning = "VARIANT_MISMATCH"
	CombinationViolation Warning = "COMBINATION_INTEGRITY_VIOLATION"
	FormMismatch         Warning = "FORM_MISMATCH"
)

type Tier string

const (
	TierHigh   Tier = "High"
	TierMedium Tier = "Medium"
	TierLow    Tier = "Low"
)

// ValidatedMatch is a candidate after the rule engine. Strength is always the
// candidate's own.
type ValidatedMatch struct {
	CatalogCandidate
	FinalScore float64   `json:"similarity_percentage"`
	Warnings   []Warning `json:"validation_warnings"`
	Confidence Tier      `json:"confidence"`
}

type ExternalMatch struct {
	ValidatedMatch
	VerifiedBy string `json:"verified_by"`
}

type Resolution string

const (
	ResolutionMatched    Resolution = "matched"
	ResolutionExternal   Resolution = "externally_verified"
	ResolutionUnresolved Resolution = "unresolved"
)

// Outcome holds exactly one of Match, External or FallbackRequired. Build it
// with Matched, ExternallyVerified or Unresolved.
type Outcome struct {
	RawInput         string          `json:"raw_input"`
	Mention          Mention         `json:"structured_data"`
	Resolution       Resolution      `json:"resolution"`
	Match            *ValidatedMatch `json:"matched_medicine,omitempty"`
	External         *ExternalMatch  `json:"external_match,omitempty"`
	FallbackRequired bool            `json:"fallback_required"`
}

func Matched(m Mention, v ValidatedMatch) Outcome {
	return Outcome{RawInput: m.RawInput(), Mention: m, Resolution: ResolutionMatched, Match: &v}
}

func ExternallyVerified(m Mention, e ExternalMatch) Outcome {
	return Outcome{RawInput: m.RawInput(), Mention: m, Resolution: ResolutionExternal, External: &e}
}

func Unresolved(m Mention) Outcome {
	return Outcome{RawInput: m.RawInput(), Mention: m, Resolution: ResolutionUnresolved, FallbackRequired: true}
}

// Tier of whichever match is attached; empty when unresolved.
func (o Outcome) Tier() Tier {
	switch {
	case o.Match != nil:
		return o.Match.Confidence
	case o.External != nil:
		return o.External.Confidence
	}
	return ""
}

// Candidate is what a catalog search returns before stage-specific filtering.
type Candidate struct {
	CatalogCandidate
	TrgmScore     float64
	VectorScore   float64
	CombinedScore float64
}

// SearchQuery is the hybrid catalog search request.
type SearchQuery struct {
	Text         string
	Vector       []float32
	TrgmWeight   float64
	VectorWeight float64
	Limit        int
}
