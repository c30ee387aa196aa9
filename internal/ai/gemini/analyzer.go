package gemini

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/utils"
)

const (
	providerName        = "gemini"
	defaultMaxLogLength = 200
)

// Locale selects the language of the generated string values.
type Locale string

const (
	LocaleID Locale = "id"
	LocaleEN Locale = "en"
)

//go:embed prompts/*.md
var prompts embed.FS

type jsonGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Analyzer asks Gemini to score a resume against a role and decodes the JSON reply.
type Analyzer struct {
	generator jsonGenerator
	template  string
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.Analyzer = (*Analyzer)(nil)

func NewAnalyzer(generator jsonGenerator, locale Locale, log *zap.Logger, maxLogLength int) (*Analyzer, error) {
	if generator == nil {
		return nil, errors.New("generator is required")
	}

	if locale == "" {
		locale = LocaleID
	}
	template, err := loadTemplate(locale)
	if err != nil {
		return nil, err
	}

	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Analyzer{
		generator: generator,
		template:  template,
		logger:    logger.WithCommonFields(log, providerName, generator.Model()),
		maxLogLen: maxLogLength,
	}, nil
}

func loadTemplate(locale Locale) (string, error) {
	switch locale {
	case LocaleID, LocaleEN:
	default:
		return "", fmt.Errorf("unsupported locale %q", locale)
	}

	data, err := prompts.ReadFile("prompts/" + string(locale) + ".md")
	if err != nil {
		return "", fmt.Errorf("read %s prompt: %w", locale, err)
	}
	return string(data), nil
}

func (a *Analyzer) Analyze(ctx context.Context, req ai.Request) (ai.RawResponse, error) {
	if strings.TrimSpace(req.ResumeText) == "" {
		return nil, errors.New("resume text is required")
	}

	prompt := a.buildPrompt(req)

	a.logger.Debug("gemini generate content request",
		zap.String("role", req.RoleName),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, a.maxLogLen)),
	)

	raw, err := a.generator.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("gemini generate content response",
		zap.String("role", req.RoleName),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, a.maxLogLen)),
	)

	return parseResponse(raw)
}

func (a *Analyzer) buildPrompt(req ai.Request) string {
	// a single pass, so placeholders inside the resume text are left alone
	replacer := strings.NewReplacer(
		"{{ROLE_NAME}}", strings.TrimSpace(req.RoleName),
		"{{REQUIREMENT}}", strings.TrimSpace(req.Requirement),
		"{{CULTURE}}", strings.TrimSpace(req.Culture),
		"{{RESUME_TEXT}}", req.ResumeText,
	)
	return replacer.Replace(a.template)
}

// parseResponse accepts a JSON object, a JSON string holding an object, or
// either of them wrapped in a markdown code fence.
func parseResponse(raw string) (ai.RawResponse, error) {
	cleaned := extractJSON(raw)

	if obj, err := decodeObject(cleaned); err == nil {
		return obj, nil
	}

	var nested string
	if err := json.Unmarshal([]byte(cleaned), &nested); err == nil {
		if obj, err := decodeObject(extractJSON(nested)); err == nil {
			return obj, nil
		}
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start != -1 && end > start {
		if obj, err := decodeObject(cleaned[start : end+1]); err == nil {
			return obj, nil
		}
	}

	return nil, &ai.Error{
		Kind: ai.KindMalformedResponse,
		Err:  fmt.Errorf("response is not a json object: %q", utils.TruncateForLog(raw, defaultMaxLogLength)),
	}
}

func decodeObject(s string) (ai.RawResponse, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("null object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after object")
	}

	return ai.RawResponse(obj), nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```JSON")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
