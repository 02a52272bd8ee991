package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"medmap/api/internal/match"
)

func seed() *MemoryCatalog {
	return NewMemoryCatalog(
		Medicine{ID: "1", BrandName: "Augmentin 625", GenericName: "Amoxicillin + Clavulanic Acid", Strength: "500mg+125mg", Form: "Tablet", IsCombination: true, Embedding: []float32{1, 0}},
		Medicine{ID: "2", BrandName: "Augmentin", GenericName: "Amoxicillin + Clavulanic Acid", Strength: "228.5mg/5ml", Form: "Syrup", IsCombination: true, Embedding: []float32{0, 1}},
		Medicine{ID: "3", BrandName: "Crocin", GenericName: "Paracetamol", Strength: "500mg", Form: "Tablet"},
	)
}

func TestMemoryFindExact(t *testing.T) {
	c := seed()
	ctx := context.Background()

	got, err := c.FindExact(ctx, "augmentin 625", "")
	if err != nil || got == nil || got.ID != "1" {
		t.Fatalf("FindExact = %+v, %v", got, err)
	}
	got, _ = c.FindExact(ctx, "Augmentin", "syrup")
	if got == nil || got.ID != "2" {
		t.Fatalf("form-qualified FindExact = %+v", got)
	}
	got, _ = c.FindExact(ctx, "Augmentin", "Injection")
	if got != nil {
		t.Fatalf("expected no match on wrong form, got %+v", got)
	}
}

func TestMemorySearchTrigram(t *testing.T) {
	res, err := seed().Search(context.Background(), match.SearchQuery{Text: "Crocin", TrgmWeight: 1, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("limit not applied: %d", len(res))
	}
	if res[0].ID != "3" || res[0].TrgmScore != 1 || res[0].CombinedScore != 1 {
		t.Fatalf("top = %+v", res[0])
	}
}

func TestMemorySearchVector(t *testing.T) {
	res, err := seed().Search(context.Background(), match.SearchQuery{
		Text: "zzz", Vector: []float32{0, 2}, VectorWeight: 1, Limit: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res[0].ID != "2" || math.Abs(res[0].VectorScore-1) > 1e-9 {
		t.Fatalf("top = %+v", res[0])
	}
	for _, r := range res {
		if r.ID == "3" && r.VectorScore != 0 {
			t.Fatalf("row without embedding scored %v", r.VectorScore)
		}
	}
}

func TestMemorySearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := seed().Search(ctx, match.SearchQuery{Text: "x"}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"augmentin", "AUGMENTIN", 1},
		{"abc", "xyz", 0},
		{"", "abc", 0},
		// "  a"," ab","abc","bc " vs "  a"," ab","abd","bd "
		{"abc", "abd", 2.0 / 6.0},
	}
	for _, tc := range cases {
		if got := Similarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Similarity(%q,%q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestLoadMemoryCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `medicines:
  - brand_name: Dolo 650
    generic_name: Paracetamol
    strength: 650mg
    form: Tablet
  - id: m-2
    brand_name: Pan 40
    form: Tablet
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadMemoryCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d", c.Len())
	}
	got, _ := c.FindExact(context.Background(), "dolo 650", "tablet")
	if got == nil || got.ID != "seed-1" || got.Strength != "650mg" {
		t.Fatalf("got %+v", got)
	}
}

func TestVectorLiteral(t *testing.T) {
	if got := VectorLiteral([]float32{0.5, -1, 0}); got != "[0.5,-1,0]" {
		t.Fatalf("got %q", got)
	}
	if got := VectorLiteral(nil); got != "[]" {
		t.Fatalf("got %q", got)
	}
}

func TestImageHashStable(t *testing.T) {
	a, b := ImageHash([]byte("img")), ImageHash([]byte("img"))
	if a != b || len(a) != 64 {
		t.Fatalf("hash %q / %q", a, b)
	}
	if a == ImageHash([]byte("img2")) {
		t.Fatal("different input, same hash")
	}
}

func TestJSONArrayNil(t *testing.T) {
	js, err := jsonArray[match.Mention](nil)
	if err != nil || string(js) != "[]" {
		t.Fatalf("got %s, %v", js, err)
	}
}

func TestSafeDSN(t *testing.T) {
	got := SafeDSN("postgres://med:secret@db:5432/medmap?sslmode=disable")
	if got != "host=db:5432 db=medmap user=med" {
		t.Fatalf("got %q", got)
	}
}
