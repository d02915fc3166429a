package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicAPIURL       = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion   = "2023-06-01"
	defaultAnthropicModel = "claude-3-5-sonnet-20241022"
)

// Anthropic calls the Messages API.
type Anthropic struct {
	apiKey     string
	model      string
	url        string
	maxRetries int
	client     *http.Client
	price      price
}

// NewAnthropic creates an Anthropic client.
func NewAnthropic(opts Options) (*Anthropic, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is not set")
	}
	model := opts.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	url := anthropicAPIURL
	if opts.BaseURL != "" {
		url = strings.TrimRight(opts.BaseURL, "/") + "/v1/messages"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Anthropic{
		apiKey:     opts.APIKey,
		model:      model,
		url:        url,
		maxRetries: opts.MaxRetries,
		client:     &http.Client{Timeout: timeout},
		price:      lookupPrice(anthropicPricing, model, price{3.00, 15.00}),
	}, nil
}

// Model returns the configured model name.
func (a *Anthropic) Model() string { return a.model }

// EstimateCost prices token counts for the configured model.
func (a *Anthropic) EstimateCost(inputTokens, outputTokens int) float64 {
	return a.price.cost(inputTokens, outputTokens)
}

// Chat sends the conversation. JSON mode is expressed through the system prompt
// since the Messages API has no response-format switch.
func (a *Anthropic) Chat(ctx context.Context, req Request) (Response, error) {
	system, messages := splitSystem(req.Messages)
	if req.JSONMode {
		if system != "" {
			system += "\n\n"
		}
		system += "Respond with a single valid JSON object and nothing else."
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	body := anthropicRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		System:      system,
		Temperature: req.Temperature,
	}
	for _, m := range messages {
		body.Messages = append(body.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}
	var result anthropicResponse
	err = retryWithBackoff(ctx, a.maxRetries, func() error {
		return postJSON(ctx, a.client, a.url, headers, payload, &result)
	})
	if err != nil {
		return Response{}, fmt.Errorf("anthropic: %w", err)
	}

	var content strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return Response{
		Content:      content.String(),
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		Cost:         a.EstimateCost(result.Usage.InputTokens, result.Usage.OutputTokens),
		Model:        a.model,
	}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
	Usage   anthropicUsage   `json:"usage"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
