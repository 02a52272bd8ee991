package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.ObserveStage("EXACT", true)
	r.ObserveStage("FUZZY", false)
	r.ObserveStage("FUZZY", false)
	r.ObserveExternal("RXNORM", "error")
	r.ObserveOCR("", "HIGH_CONFIDENCE")
	r.ObservePipeline("image", 1500*time.Millisecond)

	if got := testutil.ToFloat64(r.stages.WithLabelValues("FUZZY", "miss")); got != 2 {
		t.Fatalf("fuzzy misses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.ocr.WithLabelValues("none", "HIGH_CONFIDENCE")); got != 1 {
		t.Fatalf("ocr none = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `medmap_external_lookups_total{result="error",source="RXNORM"} 1`) {
		t.Fatalf("metrics output missing external counter:\n%s", body)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ObservePass("standard", true)
	r.ObserveOutcome("matched", "High")
	r.ObservePipeline("text", time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil recorder handler code = %d", rec.Code)
	}
}
