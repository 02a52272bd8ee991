package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"medmap/api/internal/match"
)

// RxNorm resolves brands through the NLM RxNav drugs endpoint.
type RxNorm struct {
	BaseURL    string
	Confidence float64
	httpc      *http.Client
}

func NewRxNorm() *RxNorm {
	return &RxNorm{
		BaseURL:    "https://rxnav.nlm.nih.gov",
		Confidence: 92,
		httpc:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *RxNorm) Name() string { return SourceRxNorm }

type rxConcept struct {
	RxCUI   string `json:"rxcui"`
	Name    string `json:"name"`
	Synonym string `json:"synonym"`
	TTY     string `json:"tty"`
}

type rxResponse struct {
	DrugGroup struct {
		ConceptGroup []struct {
			TTY               string      `json:"tty"`
			ConceptProperties []rxConcept `json:"conceptProperties"`
		} `json:"conceptGroup"`
	} `json:"drugGroup"`
}

// Branded packs first, then branded drugs, then clinical drugs.
var ttyRank = map[string]int{"SBD": 0, "BPCK": 1, "SCD": 2, "GPCK": 3}

func (s *RxNorm) Lookup(ctx context.Context, m match.Mention) (*match.CatalogCandidate, error) {
	name := strings.TrimSpace(m.BrandName)
	if name == "" {
		return nil, nil
	}
	u := s.BaseURL + "/REST/drugs.json?" + url.Values{"name": {name}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("rxnorm %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var out rxResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("rxnorm: decode: %w", err)
	}

	var best *rxConcept
	bestRank := len(ttyRank)
	for _, g := range out.DrugGroup.ConceptGroup {
		rank, ok := ttyRank[g.TTY]
		if !ok || len(g.ConceptProperties) == 0 || rank >= bestRank {
			continue
		}
		best, bestRank = pickConcept(g.ConceptProperties, m), rank
	}
	if best == nil {
		return nil, nil
	}

	d := parseRxName(best.Name)
	brand := d.brand
	if brand == "" {
		brand = name
	}
	return &match.CatalogCandidate{
		ID:            "rxcui:" + best.RxCUI,
		BrandName:     brand,
		GenericName:   d.generic,
		Strength:      d.strength,
		Form:          d.form,
		IsCombination: strings.Contains(best.Name, " / "),
		RawScore:      s.Confidence,
	}, nil
}

// pickConcept prefers a concept mentioning the variant and then the form.
func pickConcept(cs []rxConcept, m match.Mention) *rxConcept {
	score := func(c rxConcept) int {
		n, s := 0, strings.ToLower(c.Name)
		if m.BrandVariant != "" && strings.Contains(s, strings.ToLower(m.BrandVariant)) {
			n += 2
		}
		if m.Form != "" && strings.Contains(s, strings.ToLower(m.Form)) {
			n++
		}
		return n
	}
	best := 0
	for i := range cs {
		if score(cs[i]) > score(cs[best]) {
			best = i
		}
	}
	return &cs[best]
}

var (
	rxBrand    = regexp.MustCompile(`\[([^\]]+)\]\s*$`)
	rxStrength = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:MG|MCG|G|ML|UNT|MEQ|%)(?:/(?:ML|ACTUAT|HR))?`)
)

type rxDrug struct {
	generic, strength, form, brand string
}

// parseRxName splits "amoxicillin 500 MG / clavulanate 125 MG Oral Tablet [Augmentin]".
func parseRxName(name string) rxDrug {
	var d rxDrug
	if sm := rxBrand.FindStringSubmatch(name); sm != nil {
		d.brand = strings.TrimSpace(sm[1])
		name = strings.TrimSpace(name[:len(name)-len(sm[0])])
	}
	locs := rxStrength.FindAllStringIndex(name, -1)
	if len(locs) == 0 {
		d.generic = titleCase(name)
		return d
	}

	var generics, strengths []string
	start := 0
	for _, loc := range locs {
		g := strings.Trim(strings.TrimSpace(name[start:loc[0]]), "/ ")
		if g != "" {
			generics = append(generics, titleCase(g))
		}
		strengths = append(strengths, strings.ToLower(strings.ReplaceAll(name[loc[0]:loc[1]], " ", "")))
		start = loc[1]
	}
	d.generic = strings.Join(generics, " + ")
	d.strength = strings.Join(strengths, " + ")

	form := strings.Fields(name[start:])
	if len(form) > 0 {
		d.form = titleCase(form[len(form)-1])
	}
	return d
}
