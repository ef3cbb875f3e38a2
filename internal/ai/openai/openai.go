package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultSystemPrompt = "You are a friendly tutor for young learners. Keep answers short, clear and encouraging."

type Client struct {
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	http        *http.Client
}

func New(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &Client{
		APIKey:      apiKey,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		MaxTokens:   2048,
		Temperature: 0.7,
		http:        &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Complete(ctx context.Context, model string, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, model, "", prompt)
}

func (c *Client) CompleteWithSystem(ctx context.Context, model string, systemPrompt string, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", errors.New("missing OPENAI_API_KEY")
	}
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	if strings.Contains(model, "gpt") {
		return c.chatCompleteWithSystem(ctx, model, systemPrompt, prompt)
	}
	return c.textComplete(ctx, model, systemPrompt+"\n\n"+prompt)
}

func (c *Client) chatCompleteWithSystem(ctx context.Context, model string, systemPrompt string, prompt string) (string, error) {
	payload := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": c.Temperature,
		"max_tokens":  c.MaxTokens,
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/v1/chat/completions", payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *Client) textComplete(ctx context.Context, model string, prompt string) (string, error) {
	payload := map[string]any{
		"model":       model,
		"prompt":      prompt,
		"temperature": c.Temperature,
		"max_tokens":  c.MaxTokens,
	}
	var out struct {
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/v1/completions", payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no choices")
	}
	return strings.TrimSpace(out.Choices[0].Text), nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("openai status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
