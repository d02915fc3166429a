package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-pro"

// Gemini calls the Gemini API through the genai SDK.
type Gemini struct {
	client *genai.Client
	model  string
	price  price
	retry  int
}

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, opts Options) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	model := opts.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{
		client: client,
		model:  model,
		price:  lookupPrice(geminiPricing, model, price{1.25, 5.00}),
		retry:  opts.MaxRetries,
	}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// EstimateCost prices token counts for the configured model.
func (g *Gemini) EstimateCost(inputTokens, outputTokens int) float64 {
	return g.price.cost(inputTokens, outputTokens)
}

// Chat sends the conversation.
func (g *Gemini) Chat(ctx context.Context, req Request) (Response, error) {
	system, messages := splitSystem(req.Messages)

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	var result *genai.GenerateContentResponse
	err := retryWithBackoff(ctx, g.retry, func() error {
		var err error
		result, err = g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
		return classifyGeminiError(err)
	})
	if err != nil {
		return Response{}, fmt.Errorf("gemini: %w", err)
	}

	resp := Response{Content: result.Text(), Model: g.model}
	if result.UsageMetadata != nil {
		resp.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		resp.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}
	resp.Cost = g.EstimateCost(resp.InputTokens, resp.OutputTokens)
	return resp, nil
}

func classifyGeminiError(err error) error {
	if err == nil {
		return nil
	}
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return NewTransientError(err)
	}
	if code == 429 || code >= 500 {
		return NewTransientError(err)
	}
	return NewFatalError(err)
}
