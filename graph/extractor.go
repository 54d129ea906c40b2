package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/herbex/llm"
	"github.com/brunobiangulo/herbex/vocabulary"
)

const (
	defaultSystemPrompt = "你是一个专业的实体关系抽取助手。"
	defaultTemperature  = 0.3
	defaultMaxTokens    = 4096
)

// Extractor runs the extraction and validation stages against a model.
type Extractor struct {
	chat        llm.Provider
	model       string
	system      string
	temperature float64
	maxTokens   int
	jsonMode    bool
	now         func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(e *Extractor) { e.model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(e *Extractor) { e.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithSystemPrompt replaces the system message.
func WithSystemPrompt(s string) Option {
	return func(e *Extractor) { e.system = s }
}

// WithJSONMode asks the backend for a JSON object response.
func WithJSONMode(on bool) Option {
	return func(e *Extractor) { e.jsonMode = on }
}

// NewExtractor creates an Extractor over chat.
func NewExtractor(chat llm.Provider, opts ...Option) *Extractor {
	e := &Extractor{
		chat:        chat,
		system:      defaultSystemPrompt,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		now:         time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract produces the raw graph of text. In ModeOpen the model may propose
// new labels; in ModeStrict it is told vocab is closed. The returned
// Exchange is non-nil whenever the model answered, even if the answer
// could not be parsed.
func (e *Extractor) Extract(ctx context.Context, text string, vocab vocabulary.Vocabulary, mode Mode) (*ExtractionResult, *Exchange, error) {
	var prompt string
	if mode == ModeStrict {
		p, err := StrictPrompt(text, vocab.EntityLabels(), vocab.RelationLabels())
		if err != nil {
			return nil, nil, err
		}
		prompt = p
	} else {
		prompt = OpenPrompt(text, vocab.EntityLabels(), vocab.RelationLabels())
	}

	ex, data, err := e.roundTrip(ctx, StageExtraction, prompt)
	if err != nil {
		return nil, ex, err
	}
	res, err := DecodeResult(data, mode)
	if err != nil {
		return nil, ex, err
	}
	return res, ex, nil
}

// Validate asks the model to correct the labels of prior against vocab.
// New labels it introduces are kept; they become merge candidates.
func (e *Extractor) Validate(ctx context.Context, text string, prior *ExtractionResult, vocab vocabulary.Vocabulary) (*ExtractionResult, *Exchange, error) {
	prompt, err := ValidationPrompt(text, prior, vocab.EntityLabels(), vocab.RelationLabels())
	if err != nil {
		return nil, nil, err
	}

	ex, data, err := e.roundTrip(ctx, StageValidation, prompt)
	if err != nil {
		return nil, ex, err
	}
	res, err := decodeValidation(data, prior)
	if err != nil {
		return nil, ex, err
	}
	return res, ex, nil
}

// roundTrip sends prompt and repairs the answer into JSON.
func (e *Extractor) roundTrip(ctx context.Context, stage, prompt string) (*Exchange, []byte, error) {
	req := llm.ChatRequest{
		Model:       e.model,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	}
	if e.jsonMode {
		req.ResponseFormat = "json_object"
	}

	start := e.now()
	resp, err := llm.Complete(ctx, e.chat, req, e.system, prompt)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrAdapter, err)
	}

	ex := &Exchange{
		Stage:    stage,
		Prompt:   prompt,
		Response: strings.TrimSpace(resp.Content),
		At:       e.now(),
		Model:    resp.Model,
		Tokens:   resp.TotalTokens,
	}
	slog.Debug("graph: model answered",
		"stage", stage,
		"model", resp.Model,
		"tokens", resp.TotalTokens,
		"elapsed", ex.At.Sub(start).Round(time.Millisecond))

	data, err := Repair(ex.Response)
	if err != nil {
		return ex, nil, err
	}
	return ex, data, nil
}
