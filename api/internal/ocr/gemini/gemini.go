package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"medmap/api/internal/extract"
	"medmap/api/internal/match"
	"medmap/api/internal/match/external"
	"medmap/api/internal/ocr"
	"medmap/api/internal/prompt"
	"medmap/api/internal/util"
)

type Engine struct {
	APIKey         string
	Model          string
	EmbeddingModel string
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey:         strings.TrimSpace(apiKey),
		Model:          strings.TrimSpace(model),
		EmbeddingModel: "text-embedding-004",
	}
}

func (e *Engine) Name() string    { return "gemini" }
func (e *Engine) ModelID() string { return e.EmbeddingModel }

func (e *Engine) client(ctx context.Context) (*genai.Client, error) {
	if e.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	return genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
}

// generate runs one prompt with up to three attempts on transport errors.
func (e *Engine) generate(ctx context.Context, op, system string, jsonOut bool, parts ...genai.Part) (string, error) {
	cl, err := e.client(ctx)
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{Temperature: ptrFloat32(0)}
	if jsonOut {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := strings.TrimSpace(firstText(resp))
		if txt == "" {
			return "", fmt.Errorf("gemini %s: empty response", op)
		}
		return util.StripCodeFences(txt), nil
	}
	return "", fmt.Errorf("gemini %s: %w", op, lastErr)
}

func (e *Engine) Transcribe(ctx context.Context, img ocr.Image) (string, error) {
	return e.generate(ctx, "transcribe", prompt.System(e.Name(), prompt.Transcribe), false,
		genai.Text(prompt.User(e.Name(), prompt.Transcribe)),
		&genai.Blob{MIMEType: util.PickMIME(img.MIME, "", img.Data), Data: img.Data},
	)
}

func (e *Engine) Extract(ctx context.Context, text string) ([]match.Mention, error) {
	system := prompt.System(e.Name(), prompt.Extract)
	return extract.Run(ctx, text,
		prompt.User(e.Name(), prompt.Extract),
		prompt.User(e.Name(), prompt.ExtractRetry),
		func(ctx context.Context, user string) (string, error) {
			return e.generate(ctx, "extract", system, true, genai.Text(user))
		})
}

func (e *Engine) Verify(ctx context.Context, m match.Mention) (external.Verdict, error) {
	user := fmt.Sprintf(prompt.User(e.Name(), prompt.Verify), m.RawInput())
	out, err := e.generate(ctx, "verify", prompt.System(e.Name(), prompt.Verify), true, genai.Text(user))
	if err != nil {
		return external.Verdict{}, err
	}
	return external.ParseVerdict(out)
}

func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	cl, err := e.client(ctx)
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	em := cl.EmbeddingModel(e.EmbeddingModel)
	em.TaskType = genai.TaskTypeRetrievalQuery
	res, err := em.EmbedContent(ctx, genai.Text(strings.TrimSpace(text)))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if res == nil || res.Embedding == nil {
		return nil, errors.New("gemini embed: empty response")
	}
	return res.Embedding.Values, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
