package yandex

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"medmap/api/internal/ocr"
	"medmap/api/internal/util"
)

const defaultOCRURL = "https://ocr.api.cloud.yandex.net/ocr/v1/recognizeText"

// Engine transcribes prescriptions with Yandex Vision's handwriting model.
type Engine struct {
	URL       string
	Model     string   // "handwritten" or "page"
	Languages []string // e.g. ["en", "hi"]
	iamc      *IamClient
	folderID  string
	httpc     *http.Client
}

func New(oauth2Token, folderID string) *Engine {
	return &Engine{
		URL:       defaultOCRURL,
		Model:     "handwritten",
		Languages: []string{"en"},
		iamc:      NewIamClient(oauth2Token),
		folderID:  folderID,
		httpc:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *Engine) Name() string { return "yandex" }

type request struct {
	Content       string   `json:"content"`
	MimeType      string   `json:"mimeType,omitempty"` // "JPEG" | "PNG" | "PDF"
	LanguageCodes []string `json:"languageCodes,omitempty"`
	Model         string   `json:"model,omitempty"`
}

type textAnnotation struct {
	FullText string `json:"fullText,omitempty"`
	Blocks   []struct {
		Lines []struct {
			Text string `json:"text,omitempty"`
		} `json:"lines,omitempty"`
	} `json:"blocks,omitempty"`
}

type response struct {
	Result *struct {
		TextAnnotation *textAnnotation `json:"textAnnotation,omitempty"`
	} `json:"result,omitempty"`
}

// Transcribe implements ocr.VisionTranscriber.
func (e *Engine) Transcribe(ctx context.Context, img ocr.Image) (string, error) {
	payload, _ := json.Marshal(request{
		Content:       base64.StdEncoding.EncodeToString(img.Data),
		MimeType:      util.SniffMimeForOCR(img.Data),
		LanguageCodes: e.Languages,
		Model:         e.Model,
	})

	resp, err := e.send(ctx, payload)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		e.iamc.Invalidate()
		if resp, err = e.send(ctx, payload); err != nil {
			return "", err
		}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("yandex ocr %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Result == nil || out.Result.TextAnnotation == nil {
		return "", nil
	}
	return annotationText(out.Result.TextAnnotation), nil
}

func (e *Engine) send(ctx context.Context, payload []byte) (*http.Response, error) {
	token, err := e.iamc.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-folder-id", e.folderID)
	return e.httpc.Do(req)
}

// annotationText prefers fullText and falls back to joining lines.
func annotationText(ta *textAnnotation) string {
	if t := strings.TrimSpace(ta.FullText); t != "" {
		return t
	}
	var lines []string
	for _, b := range ta.Blocks {
		for _, l := range b.Lines {
			if s := strings.TrimSpace(l.Text); s != "" {
				lines = append(lines, s)
			}
		}
	}
	return strings.Join(lines, "\n")
}
