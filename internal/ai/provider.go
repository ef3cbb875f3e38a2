package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Provider is a text completion backend.
type Provider interface {
	Complete(ctx context.Context, model string, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, model string, systemPrompt string, prompt string) (string, error)
}

// Generator produces either free text or a JSON object decoded into out.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateObject(ctx context.Context, prompt string, out any) error
}

var ErrNoJSON = errors.New("no json object in completion")

const objectSystemPrompt = "You are a precise generator of structured data. Reply with a single JSON object and nothing else. Do not wrap it in markdown."

// ProviderGenerator adapts a Provider and a model name to Generator.
type ProviderGenerator struct {
	Provider     Provider
	Model        string
	SystemPrompt string
}

func NewGenerator(p Provider, model string, systemPrompt string) *ProviderGenerator {
	return &ProviderGenerator{Provider: p, Model: model, SystemPrompt: systemPrompt}
}

func (g *ProviderGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	if g.SystemPrompt != "" {
		return g.Provider.CompleteWithSystem(ctx, g.Model, g.SystemPrompt, prompt)
	}
	return g.Provider.Complete(ctx, g.Model, prompt)
}

func (g *ProviderGenerator) GenerateObject(ctx context.Context, prompt string, out any) error {
	text, err := g.Provider.CompleteWithSystem(ctx, g.Model, objectSystemPrompt, prompt)
	if err != nil {
		return err
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode completion: %w", err)
	}
	return nil
}

// ExtractJSON returns the outermost JSON object in a completion, tolerating
// markdown fences and chatter around it.
func ExtractJSON(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrNoJSON
	}
	raw := []byte(text[start : end+1])
	if !json.Valid(raw) {
		return nil, ErrNoJSON
	}
	return raw, nil
}
