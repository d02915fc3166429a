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
	openAIAPIURL       = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-4o"
)

// OpenAI calls the Chat Completions API. BaseURL makes it usable with any
// compatible endpoint.
type OpenAI struct {
	apiKey     string
	model      string
	url        string
	maxRetries int
	client     *http.Client
	price      price
}

// NewOpenAI creates an OpenAI client.
func NewOpenAI(opts Options) (*OpenAI, error) {
	if opts.APIKey == "" && opts.BaseURL == "" {
		return nil, fmt.Errorf("openai: API key is not set")
	}
	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	url := openAIAPIURL
	if opts.BaseURL != "" {
		url = strings.TrimRight(opts.BaseURL, "/") + "/chat/completions"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAI{
		apiKey:     opts.APIKey,
		model:      model,
		url:        url,
		maxRetries: opts.MaxRetries,
		client:     &http.Client{Timeout: timeout},
		price:      lookupPrice(openAIPricing, model, price{5.00, 15.00}),
	}, nil
}

// Model returns the configured model name.
func (o *OpenAI) Model() string { return o.model }

// EstimateCost prices token counts for the configured model.
func (o *OpenAI) EstimateCost(inputTokens, outputTokens int) float64 {
	return o.price.cost(inputTokens, outputTokens)
}

// Chat sends the conversation.
func (o *OpenAI) Chat(ctx context.Context, req Request) (Response, error) {
	body := openAIRequest{
		Model:       o.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openAIMessage{Role: m.Role, Content: m.Content})
	}
	if req.JSONMode {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	headers := map[string]string{}
	if o.apiKey != "" {
		headers["Authorization"] = "Bearer " + o.apiKey
	}
	var result openAIResponse
	err = retryWithBackoff(ctx, o.maxRetries, func() error {
		return postJSON(ctx, o.client, o.url, headers, payload, &result)
	})
	if err != nil {
		return Response{}, fmt.Errorf("openai: %w", err)
	}
	if len(result.Choices) == 0 {
		return Response{}, fmt.Errorf("openai: no choices in response")
	}

	return Response{
		Content:      result.Choices[0].Message.Content,
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
		Cost:         o.EstimateCost(result.Usage.PromptTokens, result.Usage.CompletionTokens),
		Model:        o.model,
	}, nil
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
