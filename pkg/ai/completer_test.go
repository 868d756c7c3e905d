package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var sampleRequest = CompletionRequest{
	Messages: []Message{
		{Role: RoleSystem, Content: "You are a tutor."},
		{Role: RoleUser, Content: "What is inertia?"},
		{Role: RoleAssistant, Content: "What do you think happens when a bus brakes?"},
		{Role: RoleUser, Content: "I lean forward."},
	},
	MaxTokens:   1500,
	Temperature: 0.7,
}

func TestOpenAICompatCompleterSendsChatCompletion(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer key")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Right, that is inertia.  "}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAICompatCompleter(srv.URL+"/v1/", "sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("new completer: %v", err)
	}
	text, err := c.Complete(context.Background(), sampleRequest)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Right, that is inertia." {
		t.Fatalf("unexpected text %q", text)
	}
	if got["model"] != "gpt-4o-mini" || got["max_tokens"] != float64(1500) || got["temperature"] != 0.7 {
		t.Fatalf("unexpected request body: %v", got)
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Fatalf("system prompt must lead, got %v", first)
	}
}

func TestOpenAICompatCompleterErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-Case") {
		case "empty":
			_, _ = w.Write([]byte(`{"choices":[]}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
		}
	}))
	defer srv.Close()

	c, _ := NewOpenAICompatCompleter(srv.URL, "", "m")
	c.httpClient.Transport = headerTransport{"X-Case": "quota"}
	if _, err := c.Complete(context.Background(), sampleRequest); err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected provider error message, got %v", err)
	}
	c.httpClient.Transport = headerTransport{"X-Case": "empty"}
	if _, err := c.Complete(context.Background(), sampleRequest); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestOpenAICompatCompleterHonorsDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, _ := NewOpenAICompatCompleter(srv.URL, "", "m")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := c.Complete(ctx, sampleRequest); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("completion did not stop at the deadline")
	}
}

func TestGeminiCompleterMapsRoles(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.0-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Good. "},{"text":"Why?"}]}}]}`))
	}))
	defer srv.Close()

	c, err := NewGeminiCompleter(srv.URL, "g-key", "models/gemini-2.0-flash")
	if err != nil {
		t.Fatalf("new gemini: %v", err)
	}
	text, err := c.Complete(context.Background(), sampleRequest)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Good. Why?" {
		t.Fatalf("unexpected text %q", text)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "You are a tutor." {
		t.Fatalf("system prompt must move to systemInstruction: %+v", got.SystemInstruction)
	}
	if len(got.Contents) != 3 || got.Contents[1].Role != "model" || got.Contents[2].Role != "user" {
		t.Fatalf("unexpected contents: %+v", got.Contents)
	}
	if got.GenerationConfig == nil || got.GenerationConfig.MaxOutputTokens != 1500 {
		t.Fatalf("generation config not forwarded: %+v", got.GenerationConfig)
	}
}

func TestAnthropicCompleterUsesSystemField(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[{"type":"text","text":"Exactly."}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":2}}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicCompleter(srv.URL+"/", "a-key", "claude-test")
	if err != nil {
		t.Fatalf("new anthropic: %v", err)
	}
	text, err := c.Complete(context.Background(), sampleRequest)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Exactly." {
		t.Fatalf("unexpected text %q", text)
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("system message must not be sent as a turn, got %d messages", len(msgs))
	}
	system, _ := got["system"].([]any)
	if len(system) != 1 {
		t.Fatalf("expected system block, got %v", got["system"])
	}
}

func TestCompletersDoNotRetryServerErrors(t *testing.T) {
	cases := []struct {
		name string
		new  func(baseURL string) (ChatCompleter, error)
	}{
		{"openai", func(u string) (ChatCompleter, error) { return NewOpenAICompatCompleter(u, "sk-test", "m") }},
		{"gemini", func(u string) (ChatCompleter, error) { return NewGeminiCompleter(u, "g-key", "m") }},
		{"anthropic", func(u string) (ChatCompleter, error) { return NewAnthropicCompleter(u+"/", "a-key", "m") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"upstream down"}}`))
			}))
			defer srv.Close()

			c, err := tc.new(srv.URL)
			if err != nil {
				t.Fatalf("new completer: %v", err)
			}
			if _, err := c.Complete(context.Background(), sampleRequest); err == nil {
				t.Fatalf("expected an error on 500")
			}
			if n := hits.Load(); n != 1 {
				t.Fatalf("expected exactly one upstream request, got %d", n)
			}
		})
	}
}

func TestNewCompleterRejectsUnknownProvider(t *testing.T) {
	if _, err := NewCompleter(ProviderConfig{Provider: "llama-local"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if _, err := NewCompleter(ProviderConfig{Provider: "gemini", Model: "m"}); err == nil {
		t.Fatalf("gemini without key must fail")
	}
	c, err := NewCompleter(ProviderConfig{BaseURL: "http://localhost:1/v1", Model: "m"})
	if err != nil {
		t.Fatalf("default provider: %v", err)
	}
	if _, ok := c.(*OpenAICompatCompleter); !ok {
		t.Fatalf("expected openai-compat default, got %T", c)
	}
}

type headerTransport map[string]string

func (h headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for k, v := range h {
		r.Header.Set(k, v)
	}
	return http.DefaultTransport.RoundTrip(r)
}
