package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/utils"
)

const (
	defaultModel        = "gemini-1.5-flash"
	defaultRetryBackoff = time.Second
	defaultTimeout      = 120 * time.Second
	minTimeout          = 60 * time.Second
	defaultTemperature  = 0.1

	jsonMIMEType = "application/json"
)

// sleep waits between retries; tests replace it to avoid real delays.
var sleep = utils.WaitFor

type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config tunes the Gemini generator. Zero values fall back to defaults.
type Config struct {
	APIKey       string
	Model        string
	MaxRetries   int
	RetryBackoff time.Duration
	Timeout      time.Duration
	Temperature  float32
}

// Generator wraps the Google GenAI client and asks for JSON-only responses.
type Generator struct {
	models      modelsAPI
	model       string
	maxRetries  int
	backoff     time.Duration
	timeout     time.Duration
	temperature float32
	logger      *zap.Logger
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, cfg Config, logger *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, &ai.Error{Kind: ai.KindMissingKey, Err: errors.New("gemini api key is required")}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, cfg, logger), nil
}

func newGenerator(models modelsAPI, cfg Config, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	timeout := cfg.Timeout
	switch {
	case timeout <= 0:
		timeout = defaultTimeout
	case timeout < minTimeout:
		timeout = minTimeout
	}

	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	return &Generator{
		models:      models,
		model:       model,
		maxRetries:  maxRetries,
		backoff:     backoff,
		timeout:     timeout,
		temperature: temperature,
		logger:      logger,
	}
}

// GenerateJSON sends the prompt and returns the text of the first candidate.
// Timeouts, 5xx and 429 responses are retried up to maxRetries extra times.
func (g *Generator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	temperature := g.temperature
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: jsonMIMEType,
		Temperature:      &temperature,
	}

	var lastErr *ai.Error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("retrying gemini request",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", g.maxRetries+1),
				zap.Error(lastErr),
			)
			if err := sleep(ctx, g.backoff); err != nil {
				return "", &ai.Error{Kind: ai.KindTimeout, Err: err}
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		resp, err := g.models.GenerateContent(callCtx, g.model, genai.Text(prompt), config)
		cancel()

		if err == nil {
			return responseText(resp)
		}

		lastErr = classify(err)
		if !lastErr.Retryable() || ctx.Err() != nil {
			return "", lastErr
		}
	}

	return "", lastErr
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func classify(err error) *ai.Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ai.Error{Kind: ai.KindServiceError, Status: apiErr.Code, Body: apiErr.Message, Err: err}
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &ai.Error{Kind: ai.KindServiceError, Status: apiErrPtr.Code, Body: apiErrPtr.Message, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ai.Error{Kind: ai.KindTimeout, Err: err}
	}

	return &ai.Error{Kind: ai.KindServiceError, Body: err.Error(), Err: err}
}

// responseText returns candidates[0].content.parts[*].text joined together.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return "", &ai.Error{Kind: ai.KindMalformedResponse, Err: errors.New("gemini api returned no candidates")}
	}

	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		builder.WriteString(part.Text)
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", &ai.Error{Kind: ai.KindMalformedResponse, Err: errors.New("gemini api returned empty response")}
	}

	return output, nil
}
