package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder groups the pipeline collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	passes    *prometheus.CounterVec
	ocr       *prometheus.CounterVec
	stages    *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	external  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	gatherer  prometheus.Gatherer
}

func New(reg *prometheus.Registry) *Recorder {
	r := &Recorder{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medmap",
			Name:      "ocr_passes_total",
			Help:      "Recognition passes by preprocessing variant and result.",
		}, []string{"variant", "result"}),
		ocr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medmap",
			Name:      "ocr_outcomes_total",
			Help:      "OCR outcomes by fallback used and quality tag.",
		}, []string{"fallback", "quality"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medmap",
			Name:      "match_stage_total",
			Help:      "Waterfall stage invocations by method and result.",
		}, []string{"method", "result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medmap",
			Name:      "match_outcomes_total",
			Help:      "Mention resolutions.",
		}, []string{"resolution", "confidence"}),
		external: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medmap",
			Name:      "external_lookups_total",
			Help:      "External fallback lookups by source and result.",
		}, []string{"source", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medmap",
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end prescription processing time.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"input"}),
		gatherer: reg,
	}
	reg.MustRegister(r.passes, r.ocr, r.stages, r.outcomes, r.external, r.durations)
	return r
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Recorder) ObservePass(variant string, ok bool) {
	if r == nil {
		return
	}
	r.passes.WithLabelValues(variant, result(ok, "text", "empty")).Inc()
}

func (r *Recorder) ObserveOCR(fallback, quality string) {
	if r == nil {
		return
	}
	if fallback == "" {
		fallback = "none"
	}
	r.ocr.WithLabelValues(fallback, quality).Inc()
}

func (r *Recorder) ObserveStage(method string, hit bool) {
	if r == nil {
		return
	}
	r.stages.WithLabelValues(method, result(hit, "hit", "miss")).Inc()
}

func (r *Recorder) ObserveOutcome(resolution, confidence string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(resolution, confidence).Inc()
}

// ObserveExternal records one adapter call; result is "hit", "miss" or "error".
func (r *Recorder) ObserveExternal(source, result string) {
	if r == nil {
		return
	}
	r.external.WithLabelValues(source, result).Inc()
}

func (r *Recorder) ObservePipeline(input string, d time.Duration) {
	if r == nil {
		return
	}
	r.durations.WithLabelValues(input).Observe(d.Seconds())
}

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
