package pipeline

import (
	"time"

	"github.com/brunobiangulo/herbex/graph"
)

// DocumentOutcome is what happened to one document.
type DocumentOutcome struct {
	Seq      int
	Path     string
	Filename string
	Mode     graph.Mode
	// States is the full trail, starting at PENDING.
	States            []State
	ValidationSkipped bool
	// Merged is true once the vocabulary merge happened; the similarity
	// fields are meaningful only then.
	Merged             bool
	EntitySimilarity   float64
	RelationSimilarity float64
	AddedEntities      []string
	AddedRelations     []string
	Result             *graph.ExtractionResult
	ResultPath         string
	Tokens             int
	Err                error
}

// Final returns the last state reached.
func (o DocumentOutcome) Final() State {
	if len(o.States) == 0 {
		return StatePending
	}
	return o.States[len(o.States)-1]
}

func (o DocumentOutcome) Persisted() bool { return o.Final() == StatePersisted }
func (o DocumentOutcome) Aborted() bool   { return o.Final() == StateAborted }

// BatchReport summarises one pass over a document list.
type BatchReport struct {
	RunID string
	Pass  int
	// Mode is the configured policy; StrictAtStart is the tracker verdict
	// taken once before the first document.
	Mode          Mode
	StrictAtStart bool
	ConvergedEnd  bool
	Started       time.Time
	Finished      time.Time
	Interrupted   bool
	Outcomes      []DocumentOutcome
}

func (r *BatchReport) Total() int { return len(r.Outcomes) }

// Persisted counts documents that reached PERSISTED.
func (r *BatchReport) Persisted() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Persisted() {
			n++
		}
	}
	return n
}

// Merged counts documents whose discoveries entered the vocabulary, even
// if writing their result failed afterwards.
func (r *BatchReport) Merged() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Merged {
			n++
		}
	}
	return n
}

// Aborted counts documents that ended ABORTED.
func (r *BatchReport) Aborted() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Aborted() {
			n++
		}
	}
	return n
}

// Skipped counts documents that were not validated.
func (r *BatchReport) Skipped() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.ValidationSkipped {
			n++
		}
	}
	return n
}
