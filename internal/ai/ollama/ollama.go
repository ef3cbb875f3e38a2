// Package ollama talks to a local Ollama server's chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultHost         = "http://localhost:11434"
	defaultSystemPrompt = "You are a friendly tutor for young learners. Keep answers short, clear and encouraging."
)

type Client struct {
	Host        string
	Temperature float64
	// NumCtx overrides the model's context window when non-zero.
	NumCtx int
	http   *http.Client
}

func New(host string) *Client {
	if host == "" {
		host = DefaultHost
	}
	return &Client{
		Host:        strings.TrimRight(host, "/"),
		Temperature: 0.7,
		http:        &http.Client{Timeout: 90 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error"`
}

func (c *Client) Complete(ctx context.Context, model string, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, model, "", prompt)
}

func (c *Client) CompleteWithSystem(ctx context.Context, model string, systemPrompt string, prompt string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Options: map[string]any{"temperature": c.Temperature},
	}
	if c.NumCtx > 0 {
		body.Options["num_ctx"] = c.NumCtx
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/api/chat", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("ollama read: %w", err)
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode/100 == 2 {
		return "", fmt.Errorf("ollama decode: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		if out.Error != "" {
			return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, out.Error)
		}
		return "", fmt.Errorf("ollama status %d", resp.StatusCode)
	}
	return strings.TrimSpace(out.Message.Content), nil
}
