// Package llm talks to an OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion call.
type Request struct {
	System      string
	User        []string
	JSON        bool
	Temperature float32
}

// APIError is a non-2xx reply from the completion service.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("completion service returned status %d: %s", e.Status, strings.TrimSpace(e.Body))
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Temperature    float32         `json:"temperature"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client calls POST {BaseURL}/chat/completions.
type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Log        zerolog.Logger
}

// NewHTTPClient returns the tuned client used for every outbound call.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Complete returns the content of the first choice.
func (c *Client) Complete(ctx context.Context, r Request) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("missing OPENAI_API_KEY")
	}
	start := time.Now()

	msgs := make([]Message, 0, len(r.User)+1)
	if r.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: r.System})
	}
	for _, u := range r.User {
		msgs = append(msgs, Message{Role: "user", Content: u})
	}
	body := chatRequest{Model: c.Model, Temperature: r.Temperature, Messages: msgs}
	if r.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	c.Log.Debug().
		Str("model", c.Model).
		Bool("json", r.JSON).
		Int("prompt_chars", promptChars(msgs)).
		Msg("calling completion service")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return "", &APIError{Status: resp.StatusCode, Body: string(errBody)}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	out := parsed.Choices[0].Message.Content

	c.Log.Debug().
		Int("reply_chars", len(out)).
		Dur("took", time.Since(start)).
		Msg("completion received")
	return out, nil
}

func promptChars(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Content)
	}
	return n
}
