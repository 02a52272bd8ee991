package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"medmap/api/internal/extract"
	"medmap/api/internal/match"
	"medmap/api/internal/match/external"
	"medmap/api/internal/ocr"
	"medmap/api/internal/prompt"
	"medmap/api/internal/util"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Engine talks to an OpenAI-compatible chat and embeddings API. DeepSeek and
// other compatible providers work by changing BaseURL.
type Engine struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	BaseURL        string
	httpc          *http.Client
}

func New(key, model string) *Engine {
	return &Engine{
		APIKey:         key,
		Model:          model,
		EmbeddingModel: "text-embedding-3-small",
		BaseURL:        DefaultBaseURL,
		httpc:          &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *Engine) Name() string { return "openai" }

func (e *Engine) ModelID() string { return e.EmbeddingModel }

// Transcribe implements ocr.VisionTranscriber.
func (e *Engine) Transcribe(ctx context.Context, img ocr.Image) (string, error) {
	mime := util.PickMIME(img.MIME, "", img.Data)
	body := map[string]any{
		"model": e.Model,
		"messages": []any{
			map[string]any{"role": "system", "content": prompt.System(e.Name(), prompt.Transcribe)},
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "text", "text": prompt.User(e.Name(), prompt.Transcribe)},
					map[string]any{"type": "image_url", "image_url": map[string]any{"url": util.MakeDataURL(mime, img.Data), "detail": "high"}},
				},
			},
		},
		"temperature": 0,
		"max_tokens":  2048,
	}
	out, err := e.chat(ctx, "transcribe", body)
	if err != nil {
		return "", err
	}
	return util.StripCodeFences(out), nil
}

// Extract implements extract.Extractor.
func (e *Engine) Extract(ctx context.Context, text string) ([]match.Mention, error) {
	system := prompt.System(e.Name(), prompt.Extract)
	return extract.Run(ctx, text,
		prompt.User(e.Name(), prompt.Extract),
		prompt.User(e.Name(), prompt.ExtractRetry),
		func(ctx context.Context, user string) (string, error) {
			return e.chat(ctx, "extract", map[string]any{
				"model": e.Model,
				"messages": []any{
					map[string]any{"role": "system", "content": system},
					map[string]any{"role": "user", "content": user},
				},
				"temperature": 0.1,
				"max_tokens":  2048,
			})
		})
}

// Verify implements external.Verifier.
func (e *Engine) Verify(ctx context.Context, m match.Mention) (external.Verdict, error) {
	body := map[string]any{
		"model": e.Model,
		"messages": []any{
			map[string]any{"role": "system", "content": prompt.System(e.Name(), prompt.Verify)},
			map[string]any{"role": "user", "content": fmt.Sprintf(prompt.User(e.Name(), prompt.Verify), m.RawInput())},
		},
		"temperature":     0,
		"response_format": map[string]any{"type": "json_object"},
	}
	out, err := e.chat(ctx, "verify", body)
	if err != nil {
		return external.Verdict{}, err
	}
	return external.ParseVerdict(out)
}

// Embed returns the raw vector; dimension checks and retries are left to
// embedding.Guarded.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is empty")
	}
	payload, _ := json.Marshal(map[string]any{"model": e.EmbeddingModel, "input": strings.TrimSpace(text)})
	resp, err := e.post(ctx, "/embeddings", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai embed %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var raw struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	if len(raw.Data) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}
	return raw.Data[0].Embedding, nil
}

func (e *Engine) chat(ctx context.Context, op string, body map[string]any) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY is empty")
	}
	payload, _ := json.Marshal(body)
	resp, err := e.post(ctx, "/chat/completions", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai %s %d: %s", op, resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	if len(raw.Choices) == 0 {
		return "", fmt.Errorf("openai %s: empty response", op)
	}
	return strings.TrimSpace(raw.Choices[0].Message.Content), nil
}

func (e *Engine) post(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	base := strings.TrimRight(e.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)
	return e.httpc.Do(req)
}
