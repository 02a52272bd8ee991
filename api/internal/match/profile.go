package match

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile holds the tunable thresholds of the waterfall and rule engine.
type Profile struct {
	Name           string  `yaml:"name"`
	MinSimilarity  float64 `yaml:"min_similarity"`  // 0..1, fuzzy/vector qualifying cutoff
	VariantPenalty float64 `yaml:"variant_penalty"` // multiplier on VARIANT_MISMATCH
	FormPenalty    float64 `yaml:"form_penalty"`    // multiplier on FORM_MISMATCH
	HighTier       float64 `yaml:"high_tier"`
	MediumTier     float64 `yaml:"medium_tier"`
	TrgmWeight     float64 `yaml:"trgm_weight"`   // vector stage
	VectorWeight   float64 `yaml:"vector_weight"` // vector stage
	SearchLimit    int     `yaml:"search_limit"`
}

func Strict() Profile {
	return Profile{
		Name:           "strict",
		MinSimilarity:  0.50,
		VariantPenalty: 0.50,
		FormPenalty:    0.60,
		HighTier:       90,
		MediumTier:     70,
		TrgmWeight:     0.4,
		VectorWeight:   0.6,
		SearchLimit:    5,
	}
}

func Lenient() Profile {
	p := Strict()
	p.Name = "lenient"
	p.MinSimilarity = 0.25
	p.VariantPenalty = 0.70
	p.HighTier = 85
	p.MediumTier = 60
	return p
}

// ProfileByName returns strict for an empty name.
func ProfileByName(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "strict":
		return Strict(), nil
	case "lenient":
		return Lenient(), nil
	default:
		return Profile{}, fmt.Errorf("unknown match profile %q", name)
	}
}

// LoadProfile starts from the named base profile and overrides any field
// present in the YAML file at path.
func LoadProfile(base, path string) (Profile, error) {
	p, err := ProfileByName(base)
	if err != nil {
		return Profile{}, err
	}
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return p, p.Check()
}

// Check reports the first out-of-range field.
func (p Profile) Check() error {
	switch {
	case p.MinSimilarity < 0 || p.MinSimilarity > 1:
		return fmt.Errorf("min_similarity %v out of [0,1]", p.MinSimilarity)
	case p.VariantPenalty <= 0 || p.VariantPenalty > 1:
		return fmt.Errorf("variant_penalty %v out of (0,1]", p.VariantPenalty)
	case p.FormPenalty <= 0 || p.FormPenalty > 1:
		return fmt.Errorf("form_penalty %v out of (0,1]", p.FormPenalty)
	case p.MediumTier > p.HighTier:
		return fmt.Errorf("medium_tier %v above high_tier %v", p.MediumTier, p.HighTier)
	case p.SearchLimit <= 0:
		return fmt.Errorf("search_limit must be positive")
	}
	return nil
}

func (p Profile) Tier(score float64) Tier {
	switch {
	case score >= p.HighTier:
		return TierHigh
	case score >= p.MediumTier:
		return TierMedium
	default:
		return TierLow
	}
}
