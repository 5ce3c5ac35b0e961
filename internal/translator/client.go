package translator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	defaultOpenAIURL = "https://api.openai.com/v1"
	defaultOllamaURL = "http://localhost:11434"
)

// Client talks to an OpenAI compatible chat completion endpoint or to Ollama.
// It imposes no timeout of its own; callers bound each call with the context.
type Client struct {
	provider    string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	http        *resty.Client
}

var _ Translator = (*Client)(nil)

func NewClient(provider, baseURL, apiKey, model string, temperature float64) *Client {
	provider = strings.ToLower(provider)
	if baseURL == "" {
		baseURL = defaultOpenAIURL
		if provider == ProviderOllama {
			baseURL = defaultOllamaURL
		}
	}
	return &Client{
		provider:    provider,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		http:        resty.New().SetTimeout(5 * time.Minute),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string, tc Context) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt(sourceLang, targetLang, tc)},
		{Role: "user", Content: text},
	}

	switch c.provider {
	case ProviderOllama:
		return c.translateOllama(ctx, messages)
	default:
		return c.translateOpenAI(ctx, messages)
	}
}

func (c *Client) translateOpenAI(ctx context.Context, messages []chatMessage) (string, error) {
	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
	}
	var resp struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}

	r, err := c.http.R().SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&resp).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return "", err
	}
	if r.IsError() {
		return "", responseError("openai translate", r)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai translate: no choices returned")
	}
	return cleanup(resp.Choices[0].Message.Content)
}

func (c *Client) translateOllama(ctx context.Context, messages []chatMessage) (string, error) {
	body := map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   false,
		"options":  map[string]any{"temperature": c.temperature},
	}
	var resp struct {
		Message chatMessage `json:"message"`
	}

	r, err := c.http.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&resp).
		Post(c.baseURL + "/api/chat")
	if err != nil {
		return "", err
	}
	if r.IsError() {
		return "", responseError("ollama translate", r)
	}
	return cleanup(resp.Message.Content)
}

// responseError classifies an error response. Client errors other than
// timeouts and rate limiting are permanent.
func responseError(op string, r *resty.Response) error {
	code := r.StatusCode()
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return fmt.Errorf("%s: %s: %w", op, r.Status(), ErrPermanent)
	}
	return fmt.Errorf("%s: %s; body: %s", op, r.Status(), r.String())
}

func cleanup(content string) (string, error) {
	out := strings.TrimSpace(content)
	if strings.HasPrefix(out, "```") {
		out = strings.TrimPrefix(out, "```")
		if i := strings.Index(out, "\n"); i >= 0 {
			out = out[i+1:]
		}
		out = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(out), "```"))
	}
	if out == "" {
		return "", fmt.Errorf("empty translation returned")
	}
	return out, nil
}

func systemPrompt(sourceLang, targetLang string, tc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the user message from %s to %s. ", sourceLang, targetLang)
	b.WriteString("Reply with the translation only. Keep markup, placeholders and line breaks unchanged.")
	if tc.Reference != "" {
		fmt.Fprintf(&b, "\nThe text is the %q field", tc.Reference)
		if tc.Subtype != "" {
			fmt.Fprintf(&b, " of a %s", tc.Subtype)
		}
		b.WriteString(".")
	}
	if tc.Instructions != "" {
		b.WriteString("\n")
		b.WriteString(tc.Instructions)
	}
	return b.String()
}
