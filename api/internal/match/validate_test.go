package match

import (
	"reflect"
	"testing"
)

func TestValidate(t *testing.T) {
	strict := Strict()
	cases := []struct {
		name     string
		mention  Mention
		cand     CatalogCandidate
		score    float64
		warnings []Warning
		tier     Tier
	}{
		{
			name:     "clean exact",
			mention:  Mention{BrandName: "Dolo", BrandVariant: "650", Form: "Tablet"},
			cand:     CatalogCandidate{BrandName: "Dolo 650", GenericName: "Paracetamol", Strength: "650mg", Form: "Tablet", RawScore: 99},
			score:    99,
			warnings: []Warning{},
			tier:     TierHigh,
		},
		{
			name:     "variant mismatch",
			mention:  Mention{BrandName: "Amoxiclav", BrandVariant: "625", Form: "Tablet"},
			cand:     CatalogCandidate{BrandName: "Amoxiclav 375", GenericName: "Amoxicillin + Clavulanic Acid", Form: "tablet", IsCombination: true, RawScore: 80},
			score:    40,
			warnings: []Warning{VariantMismatch},
			tier:     TierLow,
		},
		{
			name:     "form mismatch",
			mention:  Mention{BrandName: "Calpol", Form: "Syrup"},
			cand:     CatalogCandidate{BrandName: "Calpol", GenericName: "Paracetamol", Form: "Tablet", RawScore: 95},
			score:    57,
			warnings: []Warning{FormMismatch},
			tier:     TierLow,
		},
		{
			name:     "combination flag is informational",
			mention:  Mention{BrandName: "Combiflam"},
			cand:     CatalogCandidate{BrandName: "Combiflam", GenericName: "Ibuprofen Paracetamol", Form: "Tablet", IsCombination: true, RawScore: 92.5},
			score:    92.5,
			warnings: []Warning{CombinationViolation},
			tier:     TierHigh,
		},
		{
			name:     "all rules",
			mention:  Mention{BrandName: "Augmentin", BrandVariant: "625", Form: "Syrup"},
			cand:     CatalogCandidate{BrandName: "Augmentin Duo", GenericName: "Amoxicillin", Form: "Tablet", IsCombination: true, RawScore: 77.77},
			score:    23.33,
			warnings: []Warning{VariantMismatch, CombinationViolation, FormMismatch},
			tier:     TierLow,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := strict.Validate(c.mention, c.cand)
			if got.FinalScore != c.score {
				t.Errorf("score = %v, want %v", got.FinalScore, c.score)
			}
			if !reflect.DeepEqual(got.Warnings, c.warnings) {
				t.Errorf("warnings = %v, want %v", got.Warnings, c.warnings)
			}
			if got.Confidence != c.tier {
				t.Errorf("tier = %s, want %s", got.Confidence, c.tier)
			}
		})
	}
}

func TestValidate_StrengthComesFromCandidate(t *testing.T) {
	m := Mention{BrandName: "Dolo", BrandVariant: "650", Form: "Tablet"}
	for _, strength := range []string{"500mg", "", "650 mg", "1g"} {
		c := CatalogCandidate{BrandName: "Dolo 650", Strength: strength, Form: "Tablet", RawScore: 90}
		if got := Strict().Validate(m, c); got.Strength != strength {
			t.Fatalf("strength = %q, want %q", got.Strength, strength)
		}
	}
}

func TestValidate_Idempotent(t *testing.T) {
	m := Mention{BrandName: "Amoxiclav", BrandVariant: "625", Form: "Syrup"}
	c := CatalogCandidate{BrandName: "Amoxiclav 375", Form: "Tablet", RawScore: 88}
	for _, p := range []Profile{Strict(), Lenient()} {
		once := p.Validate(m, c)
		twice := p.Validate(m, once.CatalogCandidate)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("%s: %+v != %+v", p.Name, once, twice)
		}
	}
}

func TestValidate_LenientPenalties(t *testing.T) {
	m := Mention{BrandName: "Amoxiclav", BrandVariant: "625"}
	c := CatalogCandidate{BrandName: "Amoxiclav 375", RawScore: 100}
	got := Lenient().Validate(m, c)
	if got.FinalScore != 70 || got.Confidence != TierMedium {
		t.Fatalf("got %v %s", got.FinalScore, got.Confidence)
	}
}

func TestProfileTier(t *testing.T) {
	strict, lenient := Strict(), Lenient()
	cases := []struct {
		score         float64
		strict, loose Tier
	}{
		{95, TierHigh, TierHigh},
		{88, TierMedium, TierHigh},
		{72, TierMedium, TierMedium},
		{65, TierLow, TierMedium},
		{10, TierLow, TierLow},
	}
	for _, c := range cases {
		if got := strict.Tier(c.score); got != c.strict {
			t.Errorf("strict(%v) = %s", c.score, got)
		}
		if got := lenient.Tier(c.score); got != c.loose {
			t.Errorf("lenient(%v) = %s", c.score, got)
		}
	}
}
