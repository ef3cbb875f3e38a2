package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatCompletionSendsSystemPrompt(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  hello  "}}]}`))
	}))
	defer srv.Close()

	c := New("key", srv.URL+"/")
	text, err := c.CompleteWithSystem(context.Background(), "gpt-4o-mini", "sys", "hi")
	if err != nil {
		t.Fatalf("CompleteWithSystem: %v", err)
	}
	if text != "hello" {
		t.Fatalf("expected trimmed text, got %q", text)
	}
	if got.Model != "gpt-4o-mini" || len(got.Messages) != 2 || got.Messages[0].Content != "sys" {
		t.Fatalf("unexpected request body: %+v", got)
	}
}

func TestMissingKey(t *testing.T) {
	if _, err := New("", "").Complete(context.Background(), "gpt-4o-mini", "hi"); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	if _, err := New("key", srv.URL).Complete(context.Background(), "gpt-4o-mini", "hi"); err == nil {
		t.Fatal("expected error on 429")
	}
}
