package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantType string
	}{
		{"openai", "*llm.openAIProvider"},
		{"ollama", "*llm.presetProvider"},
		{"lmstudio", "*llm.presetProvider"},
		{"openrouter", "*llm.presetProvider"},
		{"groq", "*llm.presetProvider"},
		{"xai", "*llm.presetProvider"},
		{"gemini", "*llm.presetProvider"},
		{"zhipu", "*llm.presetProvider"},
		{"custom", "*llm.openAICompatProvider"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, Model: "test-model"})
			if err != nil {
				t.Fatalf("NewProvider(%q) returned error: %v", tt.provider, err)
			}
			if got := fmt.Sprintf("%T", p); got != tt.wantType {
				t.Errorf("NewProvider(%q) type = %s, want %s", tt.provider, got, tt.wantType)
			}
		})
	}
}

func TestNewProviderErrors(t *testing.T) {
	if _, err := NewProvider(Config{Provider: ""}); err == nil || err.Error() != "llm provider not specified" {
		t.Errorf("empty provider error = %v", err)
	}
	if _, err := NewProvider(Config{Provider: "doesnotexist"}); err == nil || err.Error() != "unknown llm provider: doesnotexist" {
		t.Errorf("unknown provider error = %v", err)
	}
}

// TestPresetDefaults verifies that empty BaseURL and Model pick up the
// preset values while explicit ones are preserved.
func TestPresetDefaults(t *testing.T) {
	tests := []struct {
		provider  string
		wantURL   string
		wantModel string
	}{
		{"ollama", "http://localhost:11434", ""},
		{"groq", "https://api.groq.com/openai", "llama-3.3-70b-versatile"},
		{"gemini", "https://generativelanguage.googleapis.com/v1beta/openai", "gemini-2.0-flash"},
		{"zhipu", "https://open.bigmodel.cn", "glm-4"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, _ := NewProvider(Config{Provider: tt.provider})
			pp := p.(*presetProvider)
			if pp.ep.cfg.BaseURL != tt.wantURL {
				t.Errorf("BaseURL = %q, want %q", pp.ep.cfg.BaseURL, tt.wantURL)
			}
			if pp.ep.cfg.Model != tt.wantModel {
				t.Errorf("Model = %q, want %q", pp.ep.cfg.Model, tt.wantModel)
			}

			p, _ = NewProvider(Config{Provider: tt.provider, BaseURL: "http://my-server:9999", Model: "m"})
			pp = p.(*presetProvider)
			if pp.ep.cfg.BaseURL != "http://my-server:9999" || pp.ep.cfg.Model != "m" {
				t.Errorf("explicit values overwritten: %+v", pp.ep.cfg)
			}
		})
	}
}

func TestRequiresAPIKey(t *testing.T) {
	for provider, want := range map[string]bool{
		"openai": true, "groq": true, "zhipu": true, "gemini": true,
		"ollama": false, "lmstudio": false, "custom": false, "nope": false,
	} {
		if got := RequiresAPIKey(provider); got != want {
			t.Errorf("RequiresAPIKey(%q) = %v, want %v", provider, got, want)
		}
	}
}

func chatServer(t *testing.T, handler func(w http.ResponseWriter, req completionRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompatChat(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, req completionRequest) {
		if req.Model != "GLM-4" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "抽取" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if req.ResponseFormat != nil {
			t.Errorf("unexpected response format %+v", req.ResponseFormat)
		}
		fmt.Fprint(w, `{"model":"GLM-4","choices":[{"message":{"content":"{\"entities\":[]}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`)
	})

	p := NewOpenAICompat(Config{BaseURL: srv.URL, Model: "GLM-4"})
	resp, err := Complete(context.Background(), p, ChatRequest{Temperature: 0.3}, "system", "抽取")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"entities":[]}` || resp.TotalTokens != 13 || resp.FinishReason != "stop" {
		t.Errorf("response = %+v", resp)
	}
}

func TestCompatChatNonRetryableError(t *testing.T) {
	var calls int32
	srv := chatServer(t, func(w http.ResponseWriter, req completionRequest) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	p := NewOpenAICompat(Config{BaseURL: srv.URL})
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized || se.Temporary() {
		t.Fatalf("expected permanent 401 StatusError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCompatChatRetriesUnavailable(t *testing.T) {
	var calls int32
	srv := chatServer(t, func(w http.ResponseWriter, req completionRequest) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	})

	p := NewOpenAICompat(Config{BaseURL: srv.URL}).(*openAICompatProvider)
	p.ep.backoff = backoff{attempts: 2, step: time.Millisecond, throttled: time.Millisecond}

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" || calls != 2 {
		t.Errorf("content = %q, calls = %d", resp.Content, calls)
	}
}

func TestCompatChatNoChoices(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, req completionRequest) {
		fmt.Fprint(w, `{"choices":[]}`)
	})
	p := NewOpenAICompat(Config{BaseURL: srv.URL})
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestCompatChatGivesUp(t *testing.T) {
	var calls int32
	srv := chatServer(t, func(w http.ResponseWriter, req completionRequest) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	p := NewOpenAICompat(Config{BaseURL: srv.URL}).(*openAICompatProvider)
	p.ep.backoff = backoff{attempts: 2, step: time.Millisecond, throttled: time.Millisecond}

	_, err := p.Chat(context.Background(), ChatRequest{})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Fatalf("expected wrapped 502, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestBackoffWait(t *testing.T) {
	b := backoff{attempts: 3, step: time.Second, throttled: 5 * time.Second}
	tests := []struct {
		name string
		try  int
		err  error
		want time.Duration
	}{
		{"transport first", 0, &transportError{errors.New("reset")}, time.Second},
		{"unavailable third", 2, &StatusError{Code: 503}, 4 * time.Second},
		{"throttled", 1, &StatusError{Code: 429}, 10 * time.Second},
		{"throttled retry-after wins", 0, &StatusError{Code: 429, RetryAfter: 30 * time.Second}, 30 * time.Second},
		{"throttled retry-after shorter", 1, &StatusError{Code: 429, RetryAfter: time.Second}, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.wait(tt.try, tt.err); got != tt.want {
				t.Errorf("wait = %v, want %v", got, tt.want)
			}
		})
	}
	if retryAfter("12") != 12*time.Second || retryAfter("soon") != 0 || retryAfter("") != 0 {
		t.Error("retryAfter parsing")
	}
}

type countingProvider struct{ n int32 }

func (c *countingProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	atomic.AddInt32(&c.n, 1)
	return &ChatResponse{Content: "ok"}, nil
}

func TestRateLimited(t *testing.T) {
	inner := &countingProvider{}
	if RateLimited(inner, 0, 1) != Provider(inner) {
		t.Fatal("rps 0 should return the provider unchanged")
	}

	p := RateLimited(inner, 1000, 1)
	for i := 0; i < 3; i++ {
		if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
			t.Fatalf("Chat: %v", err)
		}
	}
	if inner.n != 3 {
		t.Errorf("calls = %d, want 3", inner.n)
	}

	slow := RateLimited(inner, 0.001, 1)
	slow.Chat(context.Background(), ChatRequest{}) // consumes the burst
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := slow.Chat(ctx, ChatRequest{}); err == nil {
		t.Fatal("expected limiter wait to fail on context deadline")
	}
}
