package yandex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultIAMURL = "https://iam.api.cloud.yandex.net/iam/v1/tokens"
	// IAM tokens live 12h; the API does not always say so.
	fallbackTTL = 11 * time.Hour
	refreshSkew = time.Minute
)

type iamToken struct {
	value   string
	expires time.Time
}

func (t iamToken) validAt(now time.Time) bool {
	return t.value != "" && now.Before(t.expires.Add(-refreshSkew))
}

// IamClient trades the OAuth token for IAM tokens and keeps the current one.
type IamClient struct {
	URL string

	oauth string
	httpc *http.Client
	now   func() time.Time

	mu  sync.Mutex
	cur iamToken
}

func NewIamClient(oauth string) *IamClient {
	return &IamClient{
		URL:   defaultIAMURL,
		oauth: oauth,
		httpc: &http.Client{Timeout: 20 * time.Second},
		now:   time.Now,
	}
}

// Token returns the cached IAM token, exchanging a new one when it is
// missing or about to expire. Concurrent callers share one exchange.
func (c *IamClient) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur.validAt(c.now()) {
		return c.cur.value, nil
	}
	tok, err := c.exchange(ctx)
	if err != nil {
		return "", err
	}
	c.cur = tok
	return tok.value, nil
}

// Invalidate drops the cached token after the API rejects it.
func (c *IamClient) Invalidate() {
	c.mu.Lock()
	c.cur = iamToken{}
	c.mu.Unlock()
}

func (c *IamClient) exchange(ctx context.Context) (iamToken, error) {
	if c.oauth == "" {
		return iamToken{}, fmt.Errorf("yandex iam: YC_OAUTH_TOKEN is empty")
	}
	payload, _ := json.Marshal(map[string]string{"yandexPassportOauthToken": c.oauth})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return iamToken{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return iamToken{}, fmt.Errorf("yandex iam: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return iamToken{}, fmt.Errorf("yandex iam %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var body struct {
		IamToken  string    `json:"iamToken"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return iamToken{}, fmt.Errorf("yandex iam: decode: %w", err)
	}
	if body.IamToken == "" {
		return iamToken{}, fmt.Errorf("yandex iam: empty token")
	}
	exp := body.ExpiresAt
	if exp.IsZero() {
		exp = c.now().Add(fallbackTTL)
	}
	return iamToken{value: body.IamToken, expires: exp}, nil
}
