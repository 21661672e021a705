package nl2sql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicCompleterReadsFirstTextBlock(t *testing.T) {
	var captured struct {
		Model     string `json:"model"`
		System    string `json:"system"`
		MaxTokens int    `json:"max_tokens"`
	}
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		apiKey = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[{"type":"text","text":"SELECT count(*) FROM t"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer srv.Close()

	completer, err := NewAnthropicCompleter(AnthropicConfig{
		BaseURL: srv.URL + "/v1",
		APIKey:  "anthropic-key",
		Model:   "claude-sonnet-4-5",
	})
	if err != nil {
		t.Fatalf("NewAnthropicCompleter() error = %v", err)
	}

	got, err := completer.Complete(context.Background(), Prompt{System: "sys", User: "count t"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "SELECT count(*) FROM t" {
		t.Fatalf("Complete() = %q", got)
	}
	if apiKey != "anthropic-key" {
		t.Fatalf("X-Api-Key = %q", apiKey)
	}
	if captured.Model != "claude-sonnet-4-5" || captured.System != "sys" || captured.MaxTokens != 2048 {
		t.Fatalf("request = %+v", captured)
	}
}

func TestAnthropicCompleterReturnsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`))
	}))
	defer srv.Close()

	completer, err := NewAnthropicCompleter(AnthropicConfig{BaseURL: srv.URL + "/v1", Model: "claude"})
	if err != nil {
		t.Fatalf("NewAnthropicCompleter() error = %v", err)
	}
	if _, err := completer.Complete(context.Background(), Prompt{User: "q"}); err == nil {
		t.Fatal("expected provider error")
	}
}

func TestNewAnthropicCompleterRequiresModel(t *testing.T) {
	if _, err := NewAnthropicCompleter(AnthropicConfig{}); err == nil {
		t.Fatal("expected error without model")
	}
}
