// Package herbex extracts medicinal-plant entities and relations from text
// with a language model while growing a controlled vocabulary of type
// labels, and stops self-correcting once that vocabulary has converged.
package herbex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/herbex/convergence"
	"github.com/brunobiangulo/herbex/graph"
	"github.com/brunobiangulo/herbex/llm"
	"github.com/brunobiangulo/herbex/output"
	"github.com/brunobiangulo/herbex/parser"
	"github.com/brunobiangulo/herbex/pipeline"
	"github.com/brunobiangulo/herbex/store"
	"github.com/brunobiangulo/herbex/vocabulary"
)

// PassInfo describes a pass about to start.
type PassInfo struct {
	Pass      int
	Passes    int
	RunID     string
	Documents int
	// Strict is true when the pass opens with closed-vocabulary extraction.
	Strict    bool
	Converged bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithProvider replaces the configured chat backend. Credentials are not
// checked when a provider is supplied.
func WithProvider(p llm.Provider) Option {
	return func(e *Engine) { e.chat = p }
}

// WithClock sets the time source for output stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPassStart registers a callback run before each pass.
func WithPassStart(fn func(PassInfo)) Option {
	return func(e *Engine) { e.onPass = fn }
}

// WithDocumentDone registers a callback run after each document.
func WithDocumentDone(fn func(pipeline.DocumentOutcome)) Option {
	return func(e *Engine) { e.onDocument = fn }
}

// Engine wires the stages of a run together. The convergence tracker
// lives as long as the Engine, so it carries over between passes.
type Engine struct {
	cfg        Config
	mode       pipeline.Mode
	chat       llm.Provider
	extractor  *graph.Extractor
	vocab      *vocabulary.Store
	reader     *parser.Registry
	tracker    *convergence.Tracker
	journal    *store.Store
	now        func() time.Time
	onPass     func(PassInfo)
	onDocument func(pipeline.DocumentOutcome)
}

// New validates cfg and builds an Engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(e)
	}

	if err := cfg.validateFields(); err != nil {
		return nil, err
	}
	if e.chat == nil {
		if err := cfg.validateCredentials(); err != nil {
			return nil, err
		}
		p, err := llm.NewProvider(cfg.Chat.provider())
		if err != nil {
			return nil, fmt.Errorf("%w: creating chat provider: %v", ErrInvalidConfig, err)
		}
		e.chat = p
	}
	e.chat = llm.RateLimited(e.chat, cfg.Chat.RequestsPerSecond, cfg.Chat.Burst)
	e.mode, _ = pipeline.ParseMode(cfg.Mode)

	e.extractor = graph.NewExtractor(e.chat,
		graph.WithModel(cfg.Chat.Model),
		graph.WithTemperature(cfg.Chat.Temperature),
		graph.WithMaxTokens(cfg.Chat.MaxTokens),
		graph.WithJSONMode(cfg.Chat.JSONMode),
	)
	e.vocab = vocabulary.NewStore(cfg.EntityTypesPath, cfg.RelationTypesPath)
	e.reader = parser.NewRegistry()

	window, threshold := cfg.Convergence.Resolve()
	e.tracker = convergence.NewTracker(window, threshold)

	if cfg.DBPath != "" {
		s, err := store.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		e.journal = s
	}

	slog.Info("herbex: engine ready",
		"provider", cfg.Chat.Provider,
		"model", cfg.Chat.Model,
		"mode", string(e.mode),
		"validation", cfg.Validation,
		"window", window,
		"threshold", threshold,
		"journal", cfg.DBPath)
	return e, nil
}

// Tracker returns the engine's convergence tracker.
func (e *Engine) Tracker() *convergence.Tracker { return e.tracker }

// Journal returns the run journal, or nil when it is disabled.
func (e *Engine) Journal() *store.Store { return e.journal }

// Discover lists the documents a pass would process.
func (e *Engine) Discover() ([]string, error) {
	return parser.Discover(e.cfg.Input, e.cfg.Range.indexRange(), e.cfg.Extensions...)
}

// Run processes the configured input once per pass. Setup failures (bad
// input, bad range, unwritable summary) are returned before documents are
// touched; per-document failures are only reported. Cancelling ctx ends
// the run after the document in flight.
func (e *Engine) Run(ctx context.Context) ([]*pipeline.BatchReport, error) {
	paths, err := e.Discover()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		slog.Warn("herbex: no documents found", "input", e.cfg.Input, "extensions", e.cfg.Extensions)
	}

	passes := e.cfg.Passes
	if passes < 1 {
		passes = 1
	}
	stamp := e.now().Format(output.StampLayout)

	var reports []*pipeline.BatchReport
	for pass := 1; pass <= passes; pass++ {
		if ctx.Err() != nil {
			break
		}
		passStamp := stamp
		if passes > 1 {
			passStamp = fmt.Sprintf("%s_pass%d", stamp, pass)
		}
		report, err := e.runPass(ctx, pass, passes, passStamp, paths)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
		if report.Interrupted {
			break
		}
	}
	return reports, nil
}

func (e *Engine) runPass(ctx context.Context, pass, passes int, stamp string, paths []string) (*pipeline.BatchReport, error) {
	summary, err := output.NewSummary(e.cfg.Output.Dir, stamp, e.cfg.Output.Summaries...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := summary.Close(); err != nil {
			slog.Error("herbex: closing summary failed", "error", err)
		}
	}()

	deps := pipeline.Deps{
		Stage:      e.extractor,
		Vocabulary: e.vocab,
		Reader:     e.reader,
		Results:    output.NewWriter(e.cfg.Output.Dir, stamp),
		Summary:    summary,
		Tracker:    e.tracker,
	}
	if e.journal != nil {
		deps.Journal = e.journal
	}
	runID := uuid.NewString()
	orch := pipeline.New(deps, pipeline.Options{
		Mode:       e.mode,
		Validation: e.cfg.Validation,
		RunID:      runID,
		Pass:       pass,
		OnDocument: e.onDocument,
		Now:        e.now,
	})

	extraction, _ := orch.Plan()
	strict := extraction == graph.ModeStrict
	label := "normal"
	if strict {
		label = "strict"
	}

	bg := context.WithoutCancel(ctx)
	if e.journal != nil {
		if _, err := e.journal.BeginRun(bg, store.Run{ID: runID, Pass: pass, Mode: label, Input: e.cfg.Input}); err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
	}

	if e.onPass != nil {
		e.onPass(PassInfo{
			Pass:      pass,
			Passes:    passes,
			RunID:     runID,
			Documents: len(paths),
			Strict:    strict,
			Converged: e.tracker.Converged(),
		})
	}

	report := orch.Run(ctx, paths)

	if e.journal != nil {
		totals := store.RunTotals{
			Total:     report.Total(),
			Merged:    report.Merged(),
			Aborted:   report.Aborted(),
			Converged: report.ConvergedEnd,
		}
		if err := e.journal.FinishRun(bg, runID, totals); err != nil {
			slog.Error("herbex: journal finish failed", "run_id", runID, "error", err)
		}
	}
	slog.Info("herbex: pass complete",
		"pass", pass,
		"run_id", runID,
		"persisted", report.Persisted(),
		"aborted", report.Aborted(),
		"tracker", e.tracker.Snapshot().String())
	return report, nil
}

// Close releases the journal.
func (e *Engine) Close() error {
	if e.journal == nil {
		return nil
	}
	return e.journal.Close()
}
