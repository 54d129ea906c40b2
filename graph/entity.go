package graph

import (
	"strings"
	"time"

	"github.com/brunobiangulo/herbex/vocabulary"
)

// Mode selects how much freedom the model has over type labels.
type Mode int

const (
	// ModeOpen lets the model propose labels outside the current
	// vocabulary. Those labels are how the vocabulary grows.
	ModeOpen Mode = iota
	// ModeStrict tells the model the vocabulary is closed.
	ModeStrict
)

func (m Mode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "open"
}

// Stage names used in conversation logs.
const (
	StageExtraction = "extraction"
	StageValidation = "validation"
)

// Entity is one extracted entity mention and its type label.
type Entity struct {
	Name string `json:"entity"`
	Type string `json:"type"`
}

// Relation is a typed edge between two entity names. Whatever field name
// the model used for the label, it is carried here as Predicate.
type Relation struct {
	Head      string `json:"head"`
	Predicate string `json:"predicate"`
	Tail      string `json:"tail"`
}

// ExtractionResult is the entity/relationship graph of one document.
// Duplicates are kept as the model returned them.
type ExtractionResult struct {
	Entities      []Entity   `json:"entities"`
	Relationships []Relation `json:"relationships"`
}

// EntityTypes returns the distinct non-empty entity type labels.
func (r *ExtractionResult) EntityTypes() vocabulary.TypeSet {
	s := vocabulary.New()
	for _, e := range r.Entities {
		s.Add(e.Type)
	}
	return s
}

// RelationTypes returns the distinct non-empty relation labels.
func (r *ExtractionResult) RelationTypes() vocabulary.TypeSet {
	s := vocabulary.New()
	for _, rel := range r.Relationships {
		s.Add(rel.Predicate)
	}
	return s
}

// Discovered returns the labels this result contributes to a merge.
func (r *ExtractionResult) Discovered() vocabulary.Vocabulary {
	return vocabulary.Vocabulary{Entities: r.EntityTypes(), Relations: r.RelationTypes()}
}

// DanglingRelations returns relations whose head or tail is missing from
// the entity list. They are tolerated, only reported.
func (r *ExtractionResult) DanglingRelations() []Relation {
	names := make(map[string]bool, len(r.Entities))
	for _, e := range r.Entities {
		names[strings.TrimSpace(e.Name)] = true
	}
	var out []Relation
	for _, rel := range r.Relationships {
		if !names[strings.TrimSpace(rel.Head)] || !names[strings.TrimSpace(rel.Tail)] {
			out = append(out, rel)
		}
	}
	return out
}

// OutsideVocabulary returns the labels of r not present in v.
func (r *ExtractionResult) OutsideVocabulary(v vocabulary.Vocabulary) (entityTypes, relationTypes []string) {
	ents, rels := v.Entities, v.Relations
	if ents == nil {
		ents = vocabulary.New()
	}
	if rels == nil {
		rels = vocabulary.New()
	}
	return r.EntityTypes().Difference(ents), r.RelationTypes().Difference(rels)
}

// Exchange is one prompt/response round-trip with the model.
type Exchange struct {
	Stage    string
	Prompt   string
	Response string
	At       time.Time
	Model    string
	Tokens   int
}
