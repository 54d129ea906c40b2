package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/brunobiangulo/herbex/graph"
	"github.com/brunobiangulo/herbex/output"
	"github.com/brunobiangulo/herbex/store"
	"github.com/brunobiangulo/herbex/vocabulary"
)

// fakeStage answers by document text.
type fakeStage struct {
	results     map[string]*graph.ExtractionResult
	extractErr  map[string]error
	validateErr error
	// onExtract runs inside Extract, before it returns.
	onExtract func()

	mu            sync.Mutex
	modes         []graph.Mode
	validateCalls int
	validateCtx   []error
}

func (f *fakeStage) Extract(ctx context.Context, text string, _ vocabulary.Vocabulary, mode graph.Mode) (*graph.ExtractionResult, *graph.Exchange, error) {
	f.mu.Lock()
	f.modes = append(f.modes, mode)
	f.mu.Unlock()
	if f.onExtract != nil {
		f.onExtract()
	}
	ex := &graph.Exchange{Stage: graph.StageExtraction, Prompt: text, Response: "{}", Tokens: 10}
	if err := f.extractErr[text]; err != nil {
		if errors.Is(err, graph.ErrAdapter) {
			return nil, nil, err
		}
		return nil, ex, err
	}
	res, ok := f.results[text]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no scripted answer for %q", graph.ErrAdapter, text)
	}
	return cloneResult(res), ex, nil
}

func (f *fakeStage) Validate(ctx context.Context, text string, prior *graph.ExtractionResult, _ vocabulary.Vocabulary) (*graph.ExtractionResult, *graph.Exchange, error) {
	f.mu.Lock()
	f.validateCalls++
	f.validateCtx = append(f.validateCtx, ctx.Err())
	f.mu.Unlock()
	ex := &graph.Exchange{Stage: graph.StageValidation, Prompt: text, Response: "{}", Tokens: 5}
	if f.validateErr != nil {
		return nil, ex, f.validateErr
	}
	return cloneResult(prior), ex, nil
}

func cloneResult(r *graph.ExtractionResult) *graph.ExtractionResult {
	return &graph.ExtractionResult{
		Entities:      append([]graph.Entity{}, r.Entities...),
		Relationships: append([]graph.Relation{}, r.Relationships...),
	}
}

// mapReader serves document text from memory, keyed by path.
type mapReader map[string]string

func (m mapReader) ReadText(_ context.Context, path string) (string, error) {
	text, ok := m[path]
	if !ok {
		return "", fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	return text, nil
}

// memSink keeps results and conversation logs in memory.
type memSink struct {
	mu            sync.Mutex
	results       map[string]*graph.ExtractionResult
	conversations []string
	resultErr     error
}

func newMemSink() *memSink {
	return &memSink{results: make(map[string]*graph.ExtractionResult)}
}

func (m *memSink) WriteResult(source string, res *graph.ExtractionResult) (string, error) {
	if m.resultErr != nil {
		return "", m.resultErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[filepath.Base(source)] = res
	return "mem://" + filepath.Base(source), nil
}

func (m *memSink) WriteConversation(source string, ex *graph.Exchange) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations = append(m.conversations, filepath.Base(source)+":"+ex.Stage)
	return "", nil
}

type memSummary struct{ rows []output.Row }

func (m *memSummary) Append(r output.Row) error {
	m.rows = append(m.rows, r)
	return nil
}

type memJournal struct{ records []store.DocumentRecord }

func (m *memJournal) RecordDocument(_ context.Context, d store.DocumentRecord) (int64, error) {
	m.records = append(m.records, d)
	return int64(len(m.records)), nil
}

type brokenVocabulary struct {
	loadErr, mergeErr error
}

func (b brokenVocabulary) Load() (vocabulary.Vocabulary, error) {
	if b.loadErr != nil {
		return vocabulary.Vocabulary{}, b.loadErr
	}
	return vocabulary.Vocabulary{Entities: vocabulary.New("A"), Relations: vocabulary.New("r")}, nil
}

func (b brokenVocabulary) Merge(vocabulary.Vocabulary) (vocabulary.MergeResult, error) {
	return vocabulary.MergeResult{}, b.mergeErr
}

// vocabFiles creates the two label files and returns a store over them.
func vocabFiles(t *testing.T, entities, relations string) (*vocabulary.Store, string, string) {
	t.Helper()
	dir := t.TempDir()
	ep := filepath.Join(dir, "entity_types.txt")
	rp := filepath.Join(dir, "relation_types.txt")
	if err := os.WriteFile(ep, []byte(entities), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(rp, []byte(relations), 0o644); err != nil {
		t.Fatal(err)
	}
	return vocabulary.NewStore(ep, rp), ep, rp
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// herb is the canonical single-plant answer: one known entity type and
// one known relation type.
func herb() *graph.ExtractionResult {
	return &graph.ExtractionResult{
		Entities:      []graph.Entity{{Name: "一叶萩", Type: "药用植物"}, {Name: "咳嗽", Type: "药用植物"}},
		Relationships: []graph.Relation{{Head: "一叶萩", Predicate: "主治症状", Tail: "咳嗽"}},
	}
}
