// Package gemini implements the Google Gemini question provider on top of the
// official genai SDK.
package gemini

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	genai "google.golang.org/genai"

	"github.com/fairyhunter13/interview-prep/internal/adapter/ai"
	"github.com/fairyhunter13/interview-prep/internal/adapter/observability"
	"github.com/fairyhunter13/interview-prep/internal/domain"
	obsctx "github.com/fairyhunter13/interview-prep/internal/observability"
)

const providerName = "gemini"

// Client implements domain.QuestionProvider.
type Client struct {
	cli   *genai.Client
	model string
}

// New creates a Gemini client for model using apiKey.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key not configured")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &Client{cli: cli, model: model}, nil
}

// Name implements domain.QuestionProvider.
func (c *Client) Name() string { return providerName }

// Generate asks for application/json output and decodes the questions.
func (c *Client) Generate(ctx domain.Context, req domain.GenerationRequest) ([]domain.Question, error) {
	system, user := ai.BuildPrompt(req)
	full := system + "\n\n" + user

	start := time.Now()
	resp, err := c.cli.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	observability.ObserveAIRequest(providerName, "generate", start)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("gemini generate failed", slog.String("model", c.model), slog.Any("error", err))
		return nil, classify(ctx, err)
	}
	return QuestionsFromResponse(resp)
}

// QuestionsFromResponse decodes the first candidate's text.
func QuestionsFromResponse(resp *genai.GenerateContentResponse) ([]domain.Question, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ai.NewProviderError(providerName, ai.CodeInvalidOutput, errors.New("empty candidates"))
	}
	return ai.DecodeQuestions(providerName, resp.Candidates[0].Content.Parts[0].Text)
}

// classify maps SDK errors onto provider error codes.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = errors.Join(ctxErr, err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return statusError(apiErrPtr.Code, apiErrPtr.Message)
	}
	return ai.NewProviderError(providerName, ai.CodeUnavailable, err)
}

func statusError(code int, msg string) error {
	if code == 0 {
		code = http.StatusBadGateway
	}
	return ai.StatusError(providerName, code, msg)
}
