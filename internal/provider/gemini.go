package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiName is the registry key of the Gemini provider.
const GeminiName = "gemini"

// DefaultGeminiModel is used when neither the policy nor the options name a model.
const DefaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the subset of genai.Models the provider calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider generates coach replies with the Gemini API.
type GeminiProvider struct {
	models contentGenerator
	opts   Opts
}

// NewGemini builds the provider. Without an API key it is returned unconfigured and
// no client is created.
func NewGemini(ctx context.Context, opts ...Option) (*GeminiProvider, error) {
	o := buildOpts(DefaultGeminiModel, opts)
	p := &GeminiProvider{opts: o}
	if o.APIKey == "" {
		slog.Info("GeminiProvider: no API key, provider disabled")
		return p, nil
	}

	cfg := &genai.ClientConfig{APIKey: o.APIKey, Backend: genai.BackendGeminiAPI}
	if o.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: o.BaseURL}
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	p.models = cli.Models
	return p, nil
}

func (p *GeminiProvider) Name() string { return GeminiName }

// IsConfigured reports whether a client was built.
func (p *GeminiProvider) IsConfigured() bool { return p.models != nil }

// Generate calls GenerateContent once, bounded by the provider timeout.
func (p *GeminiProvider) Generate(ctx context.Context, params GenerationParams) Outcome {
	if p.models == nil {
		return Unavailable(ErrNotConfigured)
	}
	model := pickModel(params.Model, p.opts.DefaultModel)

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.models.GenerateContent(ctx, model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: params.UserPrompt}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: params.SystemPrompt}}},
			Temperature:       genai.Ptr(float32(p.opts.Temperature)),
			MaxOutputTokens:   int32(p.opts.MaxTokens),
		},
	)
	if err != nil {
		slog.Warn("GeminiProvider.Generate: generate content failed", "model", model, "stage", params.Request.Stage, "elapsed", time.Since(start), "error", err)
		return Failed(fmt.Errorf("gemini generate content: %w", err))
	}

	text, ok := candidateText(resp)
	if !ok {
		slog.Warn("GeminiProvider.Generate: no candidates returned", "model", model, "stage", params.Request.Stage)
		return Failed(ErrNoChoicesReturned)
	}
	lines := SplitLines(text)
	slog.Debug("GeminiProvider.Generate: completion received", "model", model, "stage", params.Request.Stage, "lines", len(lines), "elapsed", time.Since(start))
	return OK(params.Request.Stage, lines)
}

// candidateText concatenates the non-thought text parts of the first candidate.
func candidateText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String(), true
}
