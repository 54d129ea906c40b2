package graph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The model answers in one of two shapes. Open prompts ask for
// "relationships" with a "predicate" label; strict prompts ask for
// "relations" with a "relation" label. Both are folded into Relation here
// so nothing past this file looks at field names.

type wireEntity struct {
	Entity string `json:"entity"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

type wireRelation struct {
	Head      string `json:"head"`
	Predicate string `json:"predicate"`
	Relation  string `json:"relation"`
	Tail      string `json:"tail"`
}

type wireResult struct {
	Entities      *[]wireEntity   `json:"entities"`
	Relationships *[]wireRelation `json:"relationships"`
	Relations     *[]wireRelation `json:"relations"`
}

type wireValidation struct {
	wireResult
	EntityTypeMapping   map[string]string `json:"merged entity type mapping"`
	RelationTypeMapping map[string]string `json:"merged relation mapping"`
}

func (w wireRelation) normalize(mode Mode) Relation {
	label := w.Predicate
	alt := w.Relation
	if mode == ModeStrict {
		label, alt = alt, label
	}
	if strings.TrimSpace(label) == "" {
		label = alt
	}
	return Relation{
		Head:      strings.TrimSpace(w.Head),
		Predicate: strings.TrimSpace(label),
		Tail:      strings.TrimSpace(w.Tail),
	}
}

func (w wireResult) present() bool {
	return w.Entities != nil || w.Relationships != nil || w.Relations != nil
}

func (w wireResult) normalize(mode Mode) *ExtractionResult {
	res := &ExtractionResult{
		Entities:      []Entity{},
		Relationships: []Relation{},
	}
	if w.Entities != nil {
		for _, e := range *w.Entities {
			name := strings.TrimSpace(e.Entity)
			if name == "" {
				name = strings.TrimSpace(e.Name)
			}
			typ := strings.TrimSpace(e.Type)
			if name == "" && typ == "" {
				continue
			}
			res.Entities = append(res.Entities, Entity{Name: name, Type: typ})
		}
	}

	primary, secondary := w.Relationships, w.Relations
	if mode == ModeStrict {
		primary, secondary = secondary, primary
	}
	edges := primary
	if edges == nil || len(*edges) == 0 {
		if secondary != nil {
			edges = secondary
		}
	}
	if edges != nil {
		for _, r := range *edges {
			rel := r.normalize(mode)
			if rel.Head == "" && rel.Tail == "" && rel.Predicate == "" {
				continue
			}
			res.Relationships = append(res.Relationships, rel)
		}
	}
	return res
}

// DecodeResult parses a JSON object into an ExtractionResult, accepting
// both relation shapes and preferring the one mode asks for.
func DecodeResult(data []byte, mode Mode) (*ExtractionResult, error) {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return w.normalize(mode), nil
}

// decodeValidation turns a validation answer into the corrected result. A
// full entities/relationships answer replaces prior. A type-mapping answer
// is applied to a copy of prior. An answer with neither leaves prior as is.
func decodeValidation(data []byte, prior *ExtractionResult) (*ExtractionResult, error) {
	var w wireValidation
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if w.present() {
		return w.normalize(ModeOpen), nil
	}
	return applyMappings(prior, w.EntityTypeMapping, w.RelationTypeMapping), nil
}

// applyMappings relabels a copy of r. Empty targets are ignored.
func applyMappings(r *ExtractionResult, entityTypes, relationTypes map[string]string) *ExtractionResult {
	out := &ExtractionResult{
		Entities:      make([]Entity, len(r.Entities)),
		Relationships: make([]Relation, len(r.Relationships)),
	}
	copy(out.Entities, r.Entities)
	copy(out.Relationships, r.Relationships)

	for i, e := range out.Entities {
		if to := strings.TrimSpace(entityTypes[e.Type]); to != "" {
			out.Entities[i].Type = to
		}
	}
	for i, rel := range out.Relationships {
		if to := strings.TrimSpace(relationTypes[rel.Predicate]); to != "" {
			out.Relationships[i].Predicate = to
		}
	}
	return out
}
