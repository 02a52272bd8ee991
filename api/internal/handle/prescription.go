package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"medmap/api/internal/logger"
	"medmap/api/internal/ocr"
	"medmap/api/internal/pipeline"
	"medmap/api/internal/util"
)

type ProcessRequest struct {
	Image    string `json:"image"` // base64 or data URL
	MimeType string `json:"mime_type,omitempty"`
	RawText  string `json:"raw_text"`
	Options  struct {
		OCRPasses    int  `json:"ocr_passes"`
		MinConsensus int  `json:"min_consensus"`
		DebugPasses  bool `json:"debug_passes"`
	} `json:"options"`
}

func (h *Handle) Process(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "POST only")
		return
	}
	if h.MaxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBody)
	}
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "bad json: "+err.Error())
		return
	}

	in := pipeline.Request{
		RawText: req.RawText,
		Options: ocr.Options{
			Passes:       req.Options.OCRPasses,
			MinConsensus: req.Options.MinConsensus,
			Debug:        req.Options.DebugPasses,
		},
	}
	if req.Image != "" {
		data, hint, err := util.DecodeBase64MaybeDataURL(req.Image)
		if err != nil || len(data) == 0 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "image is not valid base64")
			return
		}
		in.Image = ocr.Image{Data: data, MIME: util.PickMIME(req.MimeType, hint, data)}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.deadline(r))
	defer cancel()

	res, err := h.Pipeline.Process(ctx, in)
	switch {
	case errors.Is(err, pipeline.ErrMissingInput):
		writeError(w, http.StatusBadRequest, CodeMissingInput, err.Error())
	case err != nil:
		logger.WithContext(ctx).Error("process prescription", "err", err)
		writeError(w, http.StatusInternalServerError, CodeServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// deadline honours X-Request-Timeout (seconds) when it is shorter than the
// server limit.
func (h *Handle) deadline(r *http.Request) time.Duration {
	d := h.Timeout
	if d <= 0 {
		d = 3 * time.Minute
	}
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 && time.Duration(v)*time.Second < d {
			d = time.Duration(v) * time.Second
		}
	}
	return d
}
