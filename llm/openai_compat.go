package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// StatusError is a non-200 answer from an OpenAI-compatible endpoint.
type StatusError struct {
	Code int
	Body string
	// RetryAfter is the server's requested pause, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: status %d: %s", e.Code, e.Body)
}

// Temporary reports whether the request may succeed if sent again.
func (e *StatusError) Temporary() bool {
	switch e.Code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// transportError marks failures below HTTP (dial, timeout, short read).
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var te *transportError
	return errors.As(err, &te)
}

// backoff doubles the pause after every failed try. Throttled answers
// (429) start from a longer pause and honour Retry-After when it is longer.
type backoff struct {
	attempts  int
	step      time.Duration
	throttled time.Duration
}

var defaultBackoff = backoff{attempts: 6, step: 2 * time.Second, throttled: 5 * time.Second}

func (b backoff) wait(try int, err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
		d := b.throttled << try
		if se.RetryAfter > d {
			d = se.RetryAfter
		}
		return d
	}
	return b.step << try
}

// endpoint posts JSON to one OpenAI-compatible base URL.
type endpoint struct {
	cfg     Config
	prefix  string // path prefix before /chat/completions
	http    *http.Client
	backoff backoff
}

func newEndpoint(cfg Config, prefix string) *endpoint {
	// Whole documents go out and long JSON answers come back.
	return &endpoint{
		cfg:     cfg,
		prefix:  prefix,
		http:    &http.Client{Timeout: 3 * time.Minute},
		backoff: defaultBackoff,
	}
}

// NewOpenAICompat creates a provider for any OpenAI-compatible server at
// cfg.BaseURL, using the /v1 prefix.
func NewOpenAICompat(cfg Config) Provider {
	return &openAICompatProvider{ep: newEndpoint(cfg, "/v1")}
}

type openAICompatProvider struct{ ep *endpoint }

func (p *openAICompatProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.ep.chat(ctx, req)
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionReply struct {
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   completionUsage    `json:"usage"`
}

func (e *endpoint) chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	in := completionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if in.Model == "" {
		in.Model = e.cfg.Model
	}
	if req.ResponseFormat == "json_object" {
		in.ResponseFormat = &responseFormat{Type: req.ResponseFormat}
	}

	raw, err := e.post(ctx, "/chat/completions", in)
	if err != nil {
		return nil, err
	}
	var out completionReply
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("llm: decoding chat reply: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("llm: chat reply has no choices")
	}
	first := out.Choices[0]
	return &ChatResponse{
		Content:          first.Message.Content,
		Model:            out.Model,
		FinishReason:     first.FinishReason,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.TotalTokens,
	}, nil
}

// post sends payload, retrying temporary failures with backoff.
func (e *endpoint) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm: encoding request: %w", err)
	}
	url := e.cfg.BaseURL + e.prefix + path

	for try := 0; ; try++ {
		raw, err := e.send(ctx, url, body)
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
		if try >= e.backoff.attempts {
			return nil, fmt.Errorf("llm: giving up after %d tries: %w", try+1, err)
		}
		d := e.backoff.wait(try, err)
		slog.Warn("llm: retrying request", "url", url, "try", try+1, "delay", d, "error", err)
		if err := sleep(ctx, d); err != nil {
			return nil, err
		}
	}
}

// send makes a single attempt.
func (e *endpoint) send(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, &transportError{fmt.Errorf("llm: posting to %s: %w", url, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{fmt.Errorf("llm: reading reply: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			Code:       resp.StatusCode,
			Body:       string(raw),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return raw, nil
}

// retryAfter parses a delay-seconds Retry-After value.
func retryAfter(v string) time.Duration {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
