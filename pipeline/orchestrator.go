// Package pipeline runs documents through extraction, optional
// validation, vocabulary merge and persistence, choosing per document
// whether the vocabulary is still open.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/brunobiangulo/herbex/convergence"
	"github.com/brunobiangulo/herbex/graph"
	"github.com/brunobiangulo/herbex/output"
	"github.com/brunobiangulo/herbex/store"
	"github.com/brunobiangulo/herbex/vocabulary"
)

// Stage is the model-facing half of the pipeline.
type Stage interface {
	Extract(ctx context.Context, text string, vocab vocabulary.Vocabulary, mode graph.Mode) (*graph.ExtractionResult, *graph.Exchange, error)
	Validate(ctx context.Context, text string, prior *graph.ExtractionResult, vocab vocabulary.Vocabulary) (*graph.ExtractionResult, *graph.Exchange, error)
}

// Vocabulary is the persisted type vocabulary.
type Vocabulary interface {
	Load() (vocabulary.Vocabulary, error)
	Merge(discovered vocabulary.Vocabulary) (vocabulary.MergeResult, error)
}

// DocumentReader turns a path into document text.
type DocumentReader interface {
	ReadText(ctx context.Context, path string) (string, error)
}

// ResultSink stores results and conversation logs.
type ResultSink interface {
	WriteResult(source string, res *graph.ExtractionResult) (string, error)
	WriteConversation(source string, ex *graph.Exchange) (string, error)
}

// SummarySink receives one row per persisted document.
type SummarySink interface {
	Append(r output.Row) error
}

// Journal records every document outcome.
type Journal interface {
	RecordDocument(ctx context.Context, d store.DocumentRecord) (int64, error)
}

// Deps are the collaborators of an Orchestrator. Summary and Journal are
// optional. A nil Tracker gets a default one.
type Deps struct {
	Stage      Stage
	Vocabulary Vocabulary
	Reader     DocumentReader
	Results    ResultSink
	Summary    SummarySink
	Journal    Journal
	Tracker    *convergence.Tracker
}

// Options tune a batch.
type Options struct {
	Mode       Mode
	Validation bool
	RunID      string
	Pass       int
	// OnDocument, if set, is called after each document finishes.
	OnDocument func(DocumentOutcome)
	Now        func() time.Time
}

// Orchestrator processes documents one at a time.
type Orchestrator struct {
	deps Deps
	opts Options

	// mu makes the vocabulary merge and the tracker update one step.
	mu  sync.Mutex
	seq int
}

// New creates an Orchestrator.
func New(d Deps, o Options) *Orchestrator {
	if d.Tracker == nil {
		d.Tracker = convergence.NewTracker(convergence.DefaultWindow, convergence.DefaultThreshold)
	}
	if o.Mode == "" {
		o.Mode = ModeAuto
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Pass == 0 {
		o.Pass = 1
	}
	return &Orchestrator{deps: d, opts: o}
}

// Tracker returns the convergence tracker the orchestrator feeds.
func (o *Orchestrator) Tracker() *convergence.Tracker { return o.deps.Tracker }

// Plan reports the extraction mode and validation decision the next
// document would get from the current tracker verdict.
func (o *Orchestrator) Plan() (graph.Mode, bool) {
	return o.plan(o.deps.Tracker.Converged())
}

// plan picks the extraction mode and whether to validate, given the
// tracker verdict.
func (o *Orchestrator) plan(converged bool) (graph.Mode, bool) {
	switch o.opts.Mode {
	case ModeStrict:
		return graph.ModeStrict, false
	case ModeNormal:
		return graph.ModeOpen, o.opts.Validation && !converged
	default:
		if converged {
			return graph.ModeStrict, false
		}
		return graph.ModeOpen, o.opts.Validation
	}
}

// Run processes paths in order. A per-document failure never stops the
// batch. Cancelling ctx stops the batch before the next document; the
// document in flight runs to completion.
func (o *Orchestrator) Run(ctx context.Context, paths []string) *BatchReport {
	converged := o.deps.Tracker.Converged()
	mode, _ := o.plan(converged)
	// An auto batch that opens converged stays strict to the end, even if
	// its own merges pull the tracker back under the threshold.
	locked := o.opts.Mode == ModeAuto && converged
	report := &BatchReport{
		RunID:         o.opts.RunID,
		Pass:          o.opts.Pass,
		Mode:          o.opts.Mode,
		StrictAtStart: mode == graph.ModeStrict,
		Started:       o.opts.Now(),
		Outcomes:      make([]DocumentOutcome, 0, len(paths)),
	}
	slog.Info("pipeline: batch started",
		"run_id", o.opts.RunID,
		"pass", o.opts.Pass,
		"documents", len(paths),
		"policy", string(o.opts.Mode),
		"extraction", mode.String(),
		"converged", converged,
		"locked", locked)

	docCtx := context.WithoutCancel(ctx)
	for _, p := range paths {
		if ctx.Err() != nil {
			report.Interrupted = true
			slog.Warn("pipeline: batch interrupted", "processed", len(report.Outcomes), "remaining", len(paths)-len(report.Outcomes))
			break
		}
		out := o.processDocument(docCtx, p, locked)
		report.Outcomes = append(report.Outcomes, out)
		if o.opts.OnDocument != nil {
			o.opts.OnDocument(out)
		}
	}

	report.Finished = o.opts.Now()
	report.ConvergedEnd = o.deps.Tracker.Converged()
	slog.Info("pipeline: batch finished",
		"run_id", o.opts.RunID,
		"pass", o.opts.Pass,
		"total", report.Total(),
		"persisted", report.Persisted(),
		"aborted", report.Aborted(),
		"converged", report.ConvergedEnd,
		"elapsed", report.Finished.Sub(report.Started).Round(time.Millisecond))
	return report
}

// docRun carries one document through the state machine.
type docRun struct {
	out  DocumentOutcome
	hash string
}

func (d *docRun) state() State { return d.out.Final() }

func (d *docRun) advance(to State) {
	from := d.state()
	if !from.CanTransition(to) {
		// Unreachable unless the orchestrator itself is wrong.
		panic("pipeline: illegal transition " + string(from) + " -> " + string(to))
	}
	d.out.States = append(d.out.States, to)
	slog.Debug("pipeline: transition", "file", d.out.Filename, "from", string(from), "to", string(to))
}

func (d *docRun) abort(stage string, err error) DocumentOutcome {
	derr := &DocumentError{Filename: d.out.Filename, State: d.state(), Stage: stage, Err: err}
	d.out.Err = derr
	d.advance(StateAborted)
	slog.Error("pipeline: document aborted",
		"file", d.out.Filename,
		"state", string(derr.State),
		"stage", stage,
		"error", err)
	return d.out
}

// ProcessDocument runs one document to PERSISTED or ABORTED. The tracker
// verdict is read fresh, so the extraction mode can change between two
// documents of a batch that started unconverged.
func (o *Orchestrator) ProcessDocument(ctx context.Context, path string) DocumentOutcome {
	return o.processDocument(ctx, path, false)
}

// processDocument runs one document; strict forces closed-vocabulary
// extraction without validation regardless of the tracker.
func (o *Orchestrator) processDocument(ctx context.Context, path string, strict bool) DocumentOutcome {
	o.mu.Lock()
	seq := o.seq
	o.seq++
	o.mu.Unlock()

	d := &docRun{out: DocumentOutcome{
		Seq:      seq,
		Path:     path,
		Filename: filepath.Base(path),
		States:   []State{StatePending},
	}}
	out := o.process(ctx, d, strict)
	o.journal(ctx, d, out)
	return out
}

func (o *Orchestrator) process(ctx context.Context, d *docRun, strict bool) DocumentOutcome {
	name := d.out.Filename
	path := d.out.Path

	text, err := o.deps.Reader.ReadText(ctx, path)
	if err != nil {
		return d.abort(StageRead, err)
	}
	sum := sha256.Sum256([]byte(text))
	d.hash = hex.EncodeToString(sum[:])

	vocab, err := o.deps.Vocabulary.Load()
	if err != nil {
		return d.abort(StageVocabulary, err)
	}

	mode, validate := graph.ModeStrict, false
	if !strict {
		mode, validate = o.plan(o.deps.Tracker.Converged())
	}
	d.out.Mode = mode
	slog.Info("pipeline: processing document", "file", name, "seq", d.out.Seq, "extraction", mode.String(), "validate", validate)

	res, ex, err := o.deps.Stage.Extract(ctx, text, vocab, mode)
	o.logExchange(path, ex, &d.out)
	if err != nil {
		return d.abort(StageExtraction, err)
	}
	d.advance(StateExtracted)

	if validate {
		validated, vex, err := o.deps.Stage.Validate(ctx, text, res, vocab)
		o.logExchange(path, vex, &d.out)
		if err != nil {
			return d.abort(StageValidation, err)
		}
		res = validated
		d.advance(StateValidated)
	} else {
		d.out.ValidationSkipped = true
		slog.Info("pipeline: skipping validation", "file", name)
		d.advance(StateSkippedValidation)
	}
	d.out.Result = res
	o.reportAnomalies(name, res, vocab, mode)

	mr, err := o.merge(res.Discovered())
	if err != nil {
		return d.abort(StageMerge, err)
	}
	d.out.Merged = true
	d.out.EntitySimilarity = mr.EntitySimilarity
	d.out.RelationSimilarity = mr.RelationSimilarity
	d.out.AddedEntities = mr.AddedEntities
	d.out.AddedRelations = mr.AddedRelations
	d.advance(StateMerged)

	resultPath, err := o.deps.Results.WriteResult(path, res)
	if err != nil {
		return d.abort(StagePersist, err)
	}
	d.out.ResultPath = resultPath
	d.advance(StatePersisted)

	if o.deps.Summary != nil {
		row := output.Row{
			Filename:           name,
			At:                 o.opts.Now(),
			EntityTypes:        res.EntityTypes().Sorted(),
			EntitySimilarity:   mr.EntitySimilarity,
			RelationTypes:      res.RelationTypes().Sorted(),
			RelationSimilarity: mr.RelationSimilarity,
		}
		if err := o.deps.Summary.Append(row); err != nil {
			slog.Error("pipeline: summary append failed", "file", name, "error", err)
		}
	}

	slog.Info("pipeline: document persisted",
		"file", name,
		"entities", len(res.Entities),
		"relationships", len(res.Relationships),
		"entity_similarity", mr.EntitySimilarity,
		"relation_similarity", mr.RelationSimilarity,
		"added_entity_types", mr.AddedEntities,
		"added_relation_types", mr.AddedRelations,
		"result", resultPath)
	return d.out
}

// merge folds discovered into the vocabulary and records the scores. Both
// happen under one lock so a score always belongs to the vocabulary
// snapshot that produced it.
func (o *Orchestrator) merge(discovered vocabulary.Vocabulary) (vocabulary.MergeResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	mr, err := o.deps.Vocabulary.Merge(discovered)
	if err != nil {
		return vocabulary.MergeResult{}, err
	}
	o.deps.Tracker.Record(mr.EntitySimilarity, mr.RelationSimilarity)
	return mr, nil
}

// logExchange writes the conversation log. Failures are logged only.
func (o *Orchestrator) logExchange(path string, ex *graph.Exchange, out *DocumentOutcome) {
	if ex == nil {
		return
	}
	out.Tokens += ex.Tokens
	if _, err := o.deps.Results.WriteConversation(path, ex); err != nil {
		slog.Error("pipeline: conversation log failed", "file", filepath.Base(path), "stage", ex.Stage, "error", err)
	}
}

func (o *Orchestrator) reportAnomalies(name string, res *graph.ExtractionResult, vocab vocabulary.Vocabulary, mode graph.Mode) {
	if dangling := res.DanglingRelations(); len(dangling) > 0 {
		slog.Debug("pipeline: relations reference unlisted entities", "file", name, "count", len(dangling))
	}
	ents, rels := res.OutsideVocabulary(vocab)
	if len(ents) == 0 && len(rels) == 0 {
		return
	}
	msg := "pipeline: new type labels proposed"
	if mode == graph.ModeStrict {
		msg = "pipeline: strict extraction used labels outside the vocabulary"
	}
	slog.Debug(msg, "file", name, "entity_types", ents, "relation_types", rels)
}

// journal records the outcome. Failures are logged only.
func (o *Orchestrator) journal(ctx context.Context, d *docRun, out DocumentOutcome) {
	if o.deps.Journal == nil {
		return
	}
	rec := store.DocumentRecord{
		RunID:             o.opts.RunID,
		Seq:               out.Seq,
		Path:              out.Path,
		Filename:          out.Filename,
		Mode:              out.Mode.String(),
		FinalState:        string(out.Final()),
		ValidationSkipped: out.ValidationSkipped,
		ContentHash:       d.hash,
		TotalTokens:       out.Tokens,
		Result:            out.Result,
	}
	for _, s := range out.States {
		rec.Trail = append(rec.Trail, string(s))
	}
	if out.Merged {
		es, rs := out.EntitySimilarity, out.RelationSimilarity
		rec.EntitySimilarity, rec.RelationSimilarity = &es, &rs
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	if _, err := o.deps.Journal.RecordDocument(ctx, rec); err != nil {
		level := slog.LevelError
		if errors.Is(err, context.Canceled) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "pipeline: journal write failed", "file", out.Filename, "error", err)
	}
}
