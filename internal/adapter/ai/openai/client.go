// Package openai implements a question provider for OpenAI-compatible chat
// completion APIs. Groq and OpenRouter are both served by this client.
package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/interview-prep/internal/adapter/ai"
	"github.com/fairyhunter13/interview-prep/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/interview-prep/internal/adapter/observability"
	"github.com/fairyhunter13/interview-prep/internal/config"
	"github.com/fairyhunter13/interview-prep/internal/domain"
	obsctx "github.com/fairyhunter13/interview-prep/internal/observability"
)

const (
	maxErrorBody = 512
	// maxResponseBody caps what is read from an upstream reply.
	maxResponseBody = 2 << 20
)

// Options configures one OpenAI-compatible endpoint.
type Options struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	// JSONMode sends response_format json_object. Not every gateway accepts it.
	JSONMode    bool
	Temperature float64
	Headers     map[string]string
	HTTPClient  *http.Client
	Counter     *tokencount.Counter
}

// Client implements domain.QuestionProvider over /chat/completions.
type Client struct {
	opts Options
	hc   *http.Client
}

// New builds a client from opts. The HTTP client has no timeout of its own;
// the caller's context bounds each call.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.Counter == nil {
		opts.Counter = tokencount.NewEstimatingCounter()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{opts: opts, hc: hc}
}

// NewGroq returns the primary provider.
func NewGroq(cfg config.Config, counter *tokencount.Counter) *Client {
	return New(Options{
		Name:     "groq",
		BaseURL:  cfg.GroqBaseURL,
		APIKey:   cfg.GroqAPIKey,
		Model:    cfg.GroqModel,
		JSONMode: true,
		Counter:  counter,
	})
}

// NewOpenRouter returns the secondary provider. OpenRouter ranks apps by the
// Referer and X-Title headers.
func NewOpenRouter(cfg config.Config, counter *tokencount.Counter) *Client {
	headers := map[string]string{}
	if cfg.OpenRouterReferer != "" {
		headers["HTTP-Referer"] = cfg.OpenRouterReferer
	}
	if cfg.OpenRouterTitle != "" {
		headers["X-Title"] = cfg.OpenRouterTitle
	}
	return New(Options{
		Name:    "openrouter",
		BaseURL: cfg.OpenRouterBaseURL,
		APIKey:  cfg.OpenRouterAPIKey,
		Model:   cfg.OpenRouterModel,
		Headers: headers,
		Counter: counter,
	})
}

// Name implements domain.QuestionProvider.
func (c *Client) Name() string { return c.opts.Name }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	Messages       []message       `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate makes a single chat completion call and decodes the questions.
// Failures are returned as *ai.ProviderError and never retried here.
func (c *Client) Generate(ctx domain.Context, req domain.GenerationRequest) ([]domain.Question, error) {
	if c.opts.APIKey == "" {
		return nil, ai.NewProviderError(c.opts.Name, ai.CodeUnavailable, errors.New("api key not configured"))
	}
	system, user := ai.BuildPrompt(req)
	content, err := c.chat(ctx, system, user, tokencount.MaxTokens(req.Total()))
	if err != nil {
		return nil, err
	}
	return ai.DecodeQuestions(c.opts.Name, content)
}

func (c *Client) chat(ctx domain.Context, system, user string, maxTokens int) (string, error) {
	lg := obsctx.LoggerFromContext(ctx)
	body := chatRequest{
		Model:       c.opts.Model,
		Temperature: c.opts.Temperature,
		MaxTokens:   maxTokens,
		Messages:    []message{{Role: "system", Content: system}, {Role: "user", Content: user}},
	}
	if c.opts.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", ai.NewProviderError(c.opts.Name, ai.CodeUnavailable, err)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", ai.NewProviderError(c.opts.Name, ai.CodeUnavailable, err)
	}
	r.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	r.Header.Set("Content-Type", "application/json")
	for k, v := range c.opts.Headers {
		r.Header.Set(k, v)
	}

	lg.Debug("provider request",
		slog.String("provider", c.opts.Name),
		slog.String("model", c.opts.Model),
		slog.Int("prompt_tokens", c.opts.Counter.CountChat(system, user, c.opts.Model)),
		slog.Int("max_tokens", maxTokens))

	start := time.Now()
	resp, err := c.hc.Do(r)
	observability.ObserveAIRequest(c.opts.Name, "generate", start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return "", ai.NewProviderError(c.opts.Name, ai.CodeUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", ai.NewProviderError(c.opts.Name, ai.CodeUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(raw)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		lg.Warn("ai provider non-2xx",
			slog.String("provider", c.opts.Name),
			slog.Int("status", resp.StatusCode),
			slog.String("model", c.opts.Model),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
			slog.String("body", snippet))
		return "", ai.StatusError(c.opts.Name, resp.StatusCode, snippet)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", ai.NewProviderError(c.opts.Name, ai.CodeInvalidOutput, err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ai.NewProviderError(c.opts.Name, ai.CodeInvalidOutput, errors.New("empty choices"))
	}
	if out.Model != "" && out.Model != c.opts.Model {
		lg.Info("model substitution detected",
			slog.String("provider", c.opts.Name),
			slog.String("requested_model", c.opts.Model),
			slog.String("actual_model", out.Model))
	}
	return out.Choices[0].Message.Content, nil
}
