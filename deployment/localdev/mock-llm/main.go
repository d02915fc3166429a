// Command mock-llm serves a Chat Completions compatible endpoint with canned
// answers so rob-engine can run locally with llm.provider=openai and
// llm.baseURL=http://localhost:8090/v1.
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"
)

var (
	domainHeading = regexp.MustCompile(`(?m)^## (.+)$`)
	questionID    = regexp.MustCompile(`\[([A-Za-z0-9_.\-]+)\]`)
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.String("component", "mock-llm"))
	srv := &http.Server{
		Addr:              *addr,
		Handler:           logRequests(logger, newMux()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", slog.String("addr", *addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, complete(req))
	})
	return mux
}

// complete answers design detection prompts with an RCT classification and
// assessment prompts with a low-risk judgment for every listed domain.
func complete(req chatRequest) chatResponse {
	var prompt strings.Builder
	for _, m := range req.Messages {
		prompt.WriteString(m.Content)
		prompt.WriteByte('\n')
	}
	text := prompt.String()

	var answer any
	if strings.Contains(text, `"study_design"`) {
		answer = map[string]any{
			"study_design":     "RCT",
			"confidence":       0.8,
			"reasoning":        "mock: participants were randomly allocated",
			"recommended_tool": "rob_2",
		}
	} else {
		answer = assessmentAnswer(text)
	}
	content, _ := json.Marshal(answer)

	var resp chatResponse
	resp.Choices = append(resp.Choices, struct {
		Message chatMessage `json:"message"`
	}{Message: chatMessage{Role: "assistant", Content: string(content)}})
	resp.Usage.PromptTokens = len(text) / 4
	resp.Usage.CompletionTokens = len(content) / 4
	return resp
}

func assessmentAnswer(prompt string) map[string]any {
	domains := map[string]any{}
	sections := domainHeading.FindAllStringSubmatchIndex(prompt, -1)
	for i, loc := range sections {
		name := strings.TrimSpace(prompt[loc[2]:loc[3]])
		end := len(prompt)
		if i+1 < len(sections) {
			end = sections[i+1][0]
		}
		var responses []map[string]any
		for _, m := range questionID.FindAllStringSubmatch(prompt[loc[1]:end], -1) {
			responses = append(responses, map[string]any{
				"question_id":      m[1],
				"response":         "Yes",
				"supporting_quote": nil,
			})
		}
		confidence := 0.85
		judgment := "Low"
		if i == len(sections)-1 {
			confidence = 0.6
			judgment = "Some concerns"
		}
		domains[name] = map[string]any{
			"signaling_responses": responses,
			"judgment":            judgment,
			"confidence":          confidence,
			"rationale":           "mock judgment for " + name,
			"supporting_quotes":   []string{},
		}
	}
	return map[string]any{
		"domain_assessments": domains,
		"overall_judgment":   "Some concerns",
		"overall_rationale":  "mock overall rationale",
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode error", slog.Any("error", err))
	}
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
