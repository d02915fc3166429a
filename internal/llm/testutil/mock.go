// Package testutil provides a scripted chat client for tests.
package testutil

import (
	"context"
	"sync"

	"github.com/miradorstack/mirador-rob/internal/llm"
)

// MockClient replays Responses in order. Once they run out the last one repeats.
type MockClient struct {
	mu sync.Mutex

	Responses []llm.Response
	Err       error
	ModelName string
	// PricePerToken is applied to both input and output tokens by EstimateCost.
	PricePerToken float64

	requests  []llm.Request
	callCount int
}

// NewMockClient returns a client that answers with the given contents.
func NewMockClient(contents ...string) *MockClient {
	m := &MockClient{ModelName: "mock-model"}
	for _, c := range contents {
		m.Responses = append(m.Responses, llm.Response{Content: c, InputTokens: 1000, OutputTokens: 200, Model: "mock-model"})
	}
	return m
}

// Chat implements llm.ChatClient.
func (m *MockClient) Chat(_ context.Context, req llm.Request) (llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	idx := m.callCount
	m.callCount++
	if m.Err != nil {
		return llm.Response{}, m.Err
	}
	if len(m.Responses) == 0 {
		return llm.Response{Content: "{}", Model: m.Model()}, nil
	}
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	resp := m.Responses[idx]
	if resp.Model == "" {
		resp.Model = m.Model()
	}
	if resp.Cost == 0 {
		resp.Cost = m.estimate(resp.InputTokens, resp.OutputTokens)
	}
	return resp, nil
}

// Model implements llm.ChatClient.
func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// EstimateCost implements llm.ChatClient.
func (m *MockClient) EstimateCost(inputTokens, outputTokens int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimate(inputTokens, outputTokens)
}

func (m *MockClient) estimate(in, out int) float64 {
	return float64(in+out) * m.PricePerToken
}

// CallCount returns how many times Chat was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns a copy of every request received.
func (m *MockClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}
