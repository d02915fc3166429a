package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// postJSON sends payload and decodes a 200 response into out. Status codes are
// classified so retryWithBackoff only retries rate limits and server errors.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return NewFatalError(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewTransientError(fmt.Errorf("sending request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewTransientError(fmt.Errorf("reading response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return NewTransientError(fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(body, 512)))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewFatalError(fmt.Errorf("authentication failed (status %d): %s", resp.StatusCode, truncate(body, 512)))
	case resp.StatusCode != http.StatusOK:
		return NewFatalError(fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(body, 512)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return NewFatalError(fmt.Errorf("parsing response: %w", err))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
