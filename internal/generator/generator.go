// Package generator turns call transcripts into SOP documents with an
// OpenAI chat model.
package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"github.com/fyrsmithlabs/voicesop/internal/upstream"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	defaultModel        = "gpt-4-turbo-preview"
	defaultTemperature  = 0.7
	defaultMaxTokens    = 4000
	structuredMaxTokens = 3000
)

// ErrEmptyTranscript is returned when there is nothing to generate from.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Model is the part of a langchaingo model the generator uses.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// StructuredInput describes an SOP assembled from form fields rather than a
// transcript.
type StructuredInput struct {
	Title         string   `json:"title" validate:"required"`
	Purpose       string   `json:"purpose"`
	Prerequisites []string `json:"prerequisites"`
	Steps         []string `json:"steps"`
	Notes         string   `json:"notes"`
}

// Generator produces SOP markdown.
type Generator struct {
	model       Model
	temperature float64
	maxTokens   int
}

// Option configures a Generator.
type Option func(*Generator)

// WithSampling overrides temperature and max tokens for transcript and
// refinement calls.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(g *Generator) {
		g.temperature = temperature
		if maxTokens > 0 {
			g.maxTokens = maxTokens
		}
	}
}

// New wraps an existing model.
func New(model Model, opts ...Option) *Generator {
	g := &Generator{
		model:       model,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewOpenAI builds a generator backed by the OpenAI chat API.
func NewOpenAI(cfg config.OpenAIConfig, httpClient *http.Client) (*Generator, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("openai API key required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey.Value()),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, openai.WithHTTPClient(httpClient))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return New(llm, WithSampling(cfg.Temperature, cfg.MaxTokens)), nil
}

// Generate writes an SOP from a call transcript.
func (g *Generator) Generate(ctx context.Context, transcript string, info customer.Info) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", upstream.Wrap(upstream.ServiceGeneration, "generate", ErrEmptyTranscript)
	}
	return g.complete(ctx, "generate", transcriptPrompt(transcript, info), g.maxTokens)
}

// GenerateStructured writes an SOP from structured fields.
func (g *Generator) GenerateStructured(ctx context.Context, in StructuredInput) (string, error) {
	return g.complete(ctx, "generate structured", structuredPrompt(in), structuredMaxTokens)
}

// Refine rewrites an existing SOP according to feedback.
func (g *Generator) Refine(ctx context.Context, content, feedback string) (string, error) {
	return g.complete(ctx, "refine", refinePrompt(content, feedback), g.maxTokens)
}

func (g *Generator) complete(ctx context.Context, op, userPrompt string, maxTokens int) (string, error) {
	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextContent{Text: systemPrompt}}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextContent{Text: userPrompt}}},
	}

	resp, err := g.model.GenerateContent(ctx, messages,
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return "", upstream.Wrap(upstream.ServiceGeneration, op, err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", upstream.Wrap(upstream.ServiceGeneration, op, errors.New("empty response from model"))
	}
	return resp.Choices[0].Content, nil
}
