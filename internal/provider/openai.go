package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIName is the registry key of the OpenAI provider.
const OpenAIName = "openai"

// DefaultOpenAIModel is used when neither the policy nor the options name a model.
const DefaultOpenAIModel = "gpt-4o-mini"

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIProvider generates coach replies with the OpenAI chat completions API.
type OpenAIProvider struct {
	chat chatService
	opts Opts
}

// NewOpenAI builds the provider. Without an API key the provider is registered but
// reports itself as not configured.
func NewOpenAI(opts ...Option) *OpenAIProvider {
	o := buildOpts(DefaultOpenAIModel, opts)
	p := &OpenAIProvider{opts: o}
	if o.APIKey == "" {
		slog.Info("OpenAIProvider: no API key, provider disabled")
		return p
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(o.APIKey),
		// One attempt per turn; the timeout bounds it.
		option.WithMaxRetries(0),
	}
	if o.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	p.chat = &cli.Chat.Completions
	return p
}

func (p *OpenAIProvider) Name() string { return OpenAIName }

// IsConfigured reports whether a client was built.
func (p *OpenAIProvider) IsConfigured() bool { return p.chat != nil }

// Generate calls the chat completions API once, bounded by the provider timeout.
func (p *OpenAIProvider) Generate(ctx context.Context, params GenerationParams) Outcome {
	if p.chat == nil {
		return Unavailable(ErrNotConfigured)
	}
	model := pickModel(params.Model, p.opts.DefaultModel)

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(params.SystemPrompt),
			openai.UserMessage(params.UserPrompt),
		},
		Temperature: openai.Float(p.opts.Temperature),
		MaxTokens:   openai.Int(int64(p.opts.MaxTokens)),
	})
	if err != nil {
		slog.Warn("OpenAIProvider.Generate: chat completion failed", "model", model, "stage", params.Request.Stage, "elapsed", time.Since(start), "error", err)
		return Failed(fmt.Errorf("openai chat completion: %w", err))
	}
	if resp == nil || len(resp.Choices) == 0 {
		slog.Warn("OpenAIProvider.Generate: no choices returned", "model", model, "stage", params.Request.Stage)
		return Failed(ErrNoChoicesReturned)
	}

	lines := SplitLines(resp.Choices[0].Message.Content)
	slog.Debug("OpenAIProvider.Generate: completion received", "model", model, "stage", params.Request.Stage, "lines", len(lines), "elapsed", time.Since(start))
	return OK(params.Request.Stage, lines)
}
