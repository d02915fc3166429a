package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNoClient is returned when an LLM call is needed but no provider is configured.
var ErrNoClient = errors.New("no LLM client configured")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat-completion call.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Response is the provider-neutral completion result.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Cost         float64
	Model        string
}

// ChatClient is the chat-completion boundary used by the detector and assessor.
type ChatClient interface {
	Chat(ctx context.Context, req Request) (Response, error)
	Model() string
	EstimateCost(inputTokens, outputTokens int) float64
}

// Options configures a provider client.
type Options struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// New builds the client for opts.Provider. Provider "none" or "" yields (nil, nil).
func New(ctx context.Context, opts Options) (ChatClient, error) {
	switch strings.ToLower(opts.Provider) {
	case "", "none":
		return nil, nil
	case "anthropic":
		if opts.APIKey == "" {
			opts.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return NewAnthropic(opts)
	case "openai":
		if opts.APIKey == "" {
			opts.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		return NewOpenAI(opts)
	case "gemini", "google":
		if opts.APIKey == "" {
			opts.APIKey = os.Getenv("GEMINI_API_KEY")
		}
		return NewGemini(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", opts.Provider)
	}
}

// splitSystem separates system messages from the conversation for providers that
// take the system prompt as a distinct field.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
