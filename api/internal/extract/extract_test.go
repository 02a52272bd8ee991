package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	raw := "```json\n" + `[
  {"brand_name": "Amoxiclav", "raw_brand_token": "Amoxyclav", "brand_variant": 625, "form": "Tab", "frequency_per_day": 2, "duration_days": 5},
  {"brand_name": "Calpol", "brand_variant": null, "form": "syp.", "frequency_per_day": "thrice", "duration_days": null},
  {"brand_name": "  ", "form": "Tablet"}
]` + "\n```"
	got, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d: %+v", len(got), got)
	}
	a := got[0]
	if a.BrandName != "Amoxiclav" || a.RawBrandToken != "Amoxyclav" || a.BrandVariant != "625" || a.Form != "Tablet" {
		t.Fatalf("first = %+v", a)
	}
	if a.FrequencyPerDay == nil || *a.FrequencyPerDay != 2 || a.DurationDays == nil || *a.DurationDays != 5 {
		t.Fatalf("first schedule = %v %v", a.FrequencyPerDay, a.DurationDays)
	}
	b := got[1]
	if b.RawBrandToken != "Calpol" || b.BrandVariant != "" || b.Form != "Syrup" {
		t.Fatalf("second = %+v", b)
	}
	if b.FrequencyPerDay != nil || b.DurationDays != nil {
		t.Fatalf("second schedule should be absent: %v %v", b.FrequencyPerDay, b.DurationDays)
	}
}

func TestParse_Shapes(t *testing.T) {
	one, err := Parse(`{"brand_name": "Pan", "brand_variant": "40"}`)
	if err != nil || len(one) != 1 || one[0].BrandVariant != "40" {
		t.Fatalf("object: %+v %v", one, err)
	}
	wrapped, err := Parse(`{"medicines": [{"brand_name": "Dolo"}, {"brand_name": "Pan"}]}`)
	if err != nil || len(wrapped) != 2 {
		t.Fatalf("wrapped: %+v %v", wrapped, err)
	}
	empty, err := Parse("[]")
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty: %+v %v", empty, err)
	}
	for _, bad := range []string{"", "Sure! Here are the medicines", "[{"} {
		if _, err := Parse(bad); !errors.Is(err, ErrBadOutput) {
			t.Errorf("Parse(%q) err = %v", bad, err)
		}
	}
}

func TestNormalizeForm(t *testing.T) {
	cases := map[string]string{
		"Tab": "Tablet", "T.": "Tablet", "tb": "Tablet",
		"Syr": "Syrup", "CAP": "Capsule", "Inj.": "Injection",
		"Oint": "Cream", "Susp": "Suspension", "Gtt": "Drops",
		"Inhaler": "Inhaler", "": "",
	}
	for in, want := range cases {
		if got := NormalizeForm(in); got != want {
			t.Errorf("NormalizeForm(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRun_RetriesWithStricterMessage(t *testing.T) {
	var msgs []string
	call := func(_ context.Context, user string) (string, error) {
		msgs = append(msgs, user)
		if len(msgs) < 3 {
			return "Here you go: Dolo 650", nil
		}
		return `[{"brand_name":"Dolo","brand_variant":"650"}]`, nil
	}
	got, err := Run(context.Background(), "Tab Dolo 650 BD", "first: %s", "retry: %s", call)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].BrandName != "Dolo" {
		t.Fatalf("got %+v", got)
	}
	if msgs[0] != "first: Tab Dolo 650 BD" || !strings.HasPrefix(msgs[1], "retry: ") || len(msgs) != 3 {
		t.Fatalf("messages = %q", msgs)
	}
}

func TestRun_GivesUp(t *testing.T) {
	calls := 0
	call := func(context.Context, string) (string, error) {
		calls++
		return "", errors.New("500")
	}
	if _, err := Run(context.Background(), "x", "%s", "%s", call); err == nil {
		t.Fatal("expected error")
	}
	if calls != Attempts {
		t.Fatalf("calls = %d", calls)
	}
}

func TestRun_EmptyText(t *testing.T) {
	got, err := Run(context.Background(), " \n", "%s", "%s", func(context.Context, string) (string, error) {
		t.Fatal("model called for empty text")
		return "", nil
	})
	if err != nil || len(got) != 0 {
		t.Fatalf("got %+v %v", got, err)
	}
}
