// Package extract turns model output into medicine mentions.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"medmap/api/internal/logger"
	"medmap/api/internal/match"
	"medmap/api/internal/util"
)

// Extractor finds medicine mentions in prescription text.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]match.Mention, error)
}

// Attempts is how many times a model is asked before extraction fails.
const Attempts = 3

var ErrBadOutput = errors.New("extract: model output is not a mention list")

// CallFunc sends one user message to a model and returns its raw reply.
type CallFunc func(ctx context.Context, user string) (string, error)

// Run asks the model up to Attempts times. The first message uses userTmpl,
// later ones retryTmpl; both take the text as their only argument.
func Run(ctx context.Context, text, userTmpl, retryTmpl string, call CallFunc) ([]match.Mention, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []match.Mention{}, nil
	}
	log := logger.WithContext(ctx)
	var lastErr error
	for attempt := 1; attempt <= Attempts; attempt++ {
		tmpl := userTmpl
		if attempt > 1 {
			tmpl = retryTmpl
		}
		raw, err := call(ctx, fmt.Sprintf(tmpl, text))
		if err == nil {
			var ms []match.Mention
			if ms, err = Parse(raw); err == nil {
				return ms, nil
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		log.Warn("extraction attempt failed", "attempt", attempt, "err", err)
	}
	return nil, fmt.Errorf("extraction failed after %d attempts: %w", Attempts, lastErr)
}

type rawMention struct {
	BrandName       string  `json:"brand_name"`
	RawBrandToken   string  `json:"raw_brand_token"`
	BrandVariant    flexStr `json:"brand_variant"`
	Form            flexStr `json:"form"`
	FrequencyPerDay optInt  `json:"frequency_per_day"`
	DurationDays    optInt  `json:"duration_days"`
}

// Parse accepts a JSON array, a single object, or an object wrapping the
// array under "medicines". Code fences are stripped first.
func Parse(raw string) ([]match.Mention, error) {
	body := []byte(util.StripCodeFences(strings.TrimSpace(raw)))
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrBadOutput
	}

	var items []rawMention
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadOutput, err)
		}
	case '{':
		var wrapped struct {
			Medicines *[]rawMention `json:"medicines"`
		}
		if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Medicines != nil {
			items = *wrapped.Medicines
			break
		}
		var one rawMention
		if err := json.Unmarshal(body, &one); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadOutput, err)
		}
		items = []rawMention{one}
	default:
		return nil, ErrBadOutput
	}

	out := make([]match.Mention, 0, len(items))
	for _, it := range items {
		brand := util.NormalizeSpace(it.BrandName)
		if brand == "" {
			continue
		}
		m := match.Mention{
			BrandName:       brand,
			RawBrandToken:   util.NormalizeSpace(it.RawBrandToken),
			BrandVariant:    util.NormalizeSpace(string(it.BrandVariant)),
			Form:            NormalizeForm(string(it.Form)),
			FrequencyPerDay: it.FrequencyPerDay.v,
			DurationDays:    it.DurationDays.v,
		}
		if m.RawBrandToken == "" {
			m.RawBrandToken = brand
		}
		out = append(out, m)
	}
	return out, nil
}

var forms = map[string]string{
	"tab": "Tablet", "tabs": "Tablet", "t": "Tablet", "tb": "Tablet", "tablet": "Tablet", "tablets": "Tablet",
	"syp": "Syrup", "syr": "Syrup", "syrup": "Syrup",
	"cap": "Capsule", "caps": "Capsule", "c": "Capsule", "capsule": "Capsule", "capsules": "Capsule",
	"inj": "Injection", "injection": "Injection",
	"cr": "Cream", "oint": "Cream", "ointment": "Cream", "cream": "Cream",
	"susp": "Suspension", "suspension": "Suspension",
	"drop": "Drops", "drops": "Drops", "gtt": "Drops", "gtts": "Drops",
}

// NormalizeForm maps prescription abbreviations to catalog form names.
// Unknown forms are kept as written.
func NormalizeForm(s string) string {
	s = util.NormalizeSpace(s)
	key := strings.TrimRight(strings.ToLower(s), ".")
	if f, ok := forms[key]; ok {
		return f
	}
	return s
}

// flexStr decodes strings and numbers; anything else is empty.
type flexStr string

func (f *flexStr) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexStr(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexStr(n.String())
		return nil
	}
	*f = ""
	return nil
}

// optInt accepts JSON numbers, including quoted ones; anything else is absent.
type optInt struct{ v *int }

func (o *optInt) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	i := int(f)
	o.v = &i
	return nil
}
