package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"medmap/api/internal/metrics"
	"medmap/api/internal/pipeline"
)

// Processor is the prescription pipeline as seen by the HTTP layer.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type Handle struct {
	Pipeline Processor
	Metrics  *metrics.Recorder
	Ping     func(ctx context.Context) error // optional readiness probe
	Timeout  time.Duration
	MaxBody  int64
}

func New(p Processor, rec *metrics.Recorder) *Handle {
	return &Handle{
		Pipeline: p,
		Metrics:  rec,
		Timeout:  3 * time.Minute,
		MaxBody:  20 << 20,
	}
}

// Routes registers every endpoint on a fresh mux wrapped in the request-id
// middleware.
func (h *Handle) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/prescriptions/process", h.Process)
	mux.Handle("/metrics", h.Metrics.Handler())
	return withRequestID(mux)
}

type errorBody struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeMissingInput = "MISSING_INPUT"
	CodeBadRequest   = "BAD_REQUEST"
	CodeServerError  = "SERVER_ERROR"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Status: "error", Code: code, Message: msg})
}
