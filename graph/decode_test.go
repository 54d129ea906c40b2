package graph

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeResultOpenShape(t *testing.T) {
	data := []byte(`{
		"entities": [
			{"entity": " 一叶萩 ", "type": "药用植物"},
			{"entity": "大戟科", "type": "科"},
			{"entity": "", "type": ""}
		],
		"relationships": [
			{"head": "一叶萩", "predicate": "属于科", "tail": "大戟科"}
		]
	}`)

	res, err := DecodeResult(data, ModeOpen)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	wantEntities := []Entity{{Name: "一叶萩", Type: "药用植物"}, {Name: "大戟科", Type: "科"}}
	if !reflect.DeepEqual(res.Entities, wantEntities) {
		t.Errorf("entities = %+v, want %+v", res.Entities, wantEntities)
	}
	wantRels := []Relation{{Head: "一叶萩", Predicate: "属于科", Tail: "大戟科"}}
	if !reflect.DeepEqual(res.Relationships, wantRels) {
		t.Errorf("relationships = %+v, want %+v", res.Relationships, wantRels)
	}
}

func TestDecodeResultStrictShape(t *testing.T) {
	data := []byte(`{
		"entities": [{"entity": "甘草", "type": "药用植物"}],
		"relations": [{"head": "甘草", "relation": "主治", "tail": "咳嗽"}]
	}`)

	res, err := DecodeResult(data, ModeStrict)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if len(res.Relationships) != 1 || res.Relationships[0].Predicate != "主治" {
		t.Errorf("relationships = %+v, want one 主治 edge", res.Relationships)
	}
}

func TestDecodeResultShapeFallback(t *testing.T) {
	// Open mode, but the model answered in the strict shape.
	data := []byte(`{
		"entities": [{"name": "黄芪", "type": "药用植物"}],
		"relations": [{"head": "黄芪", "relation": "功效", "tail": "补气"}]
	}`)

	res, err := DecodeResult(data, ModeOpen)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if len(res.Entities) != 1 || res.Entities[0].Name != "黄芪" {
		t.Errorf("entities = %+v, want 黄芪 from name field", res.Entities)
	}
	if len(res.Relationships) != 1 || res.Relationships[0].Predicate != "功效" {
		t.Errorf("relationships = %+v, want one 功效 edge", res.Relationships)
	}
}

func TestDecodeResultEmptyObject(t *testing.T) {
	res, err := DecodeResult([]byte(`{}`), ModeOpen)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if res.Entities == nil || res.Relationships == nil {
		t.Error("empty answer should decode to empty, non-nil slices")
	}
	if len(res.Entities) != 0 || len(res.Relationships) != 0 {
		t.Errorf("got %+v, want empty result", res)
	}
}

func TestDecodeResultWrongTypes(t *testing.T) {
	_, err := DecodeResult([]byte(`{"entities": "none"}`), ModeOpen)
	if !errors.Is(err, ErrUnparseable) {
		t.Errorf("error = %v, want ErrUnparseable", err)
	}
}

func samplePrior() *ExtractionResult {
	return &ExtractionResult{
		Entities: []Entity{
			{Name: "一叶萩", Type: "植物"},
			{Name: "大戟科", Type: "科"},
		},
		Relationships: []Relation{
			{Head: "一叶萩", Predicate: "属", Tail: "大戟科"},
		},
	}
}

func TestDecodeValidationFullAnswer(t *testing.T) {
	data := []byte(`{
		"entities": [{"entity": "一叶萩", "type": "药用植物"}],
		"relationships": []
	}`)

	res, err := decodeValidation(data, samplePrior())
	if err != nil {
		t.Fatalf("decodeValidation: %v", err)
	}
	if len(res.Entities) != 1 || res.Entities[0].Type != "药用植物" {
		t.Errorf("entities = %+v, want corrected list", res.Entities)
	}
	if len(res.Relationships) != 0 {
		t.Errorf("relationships = %+v, want none", res.Relationships)
	}
}

func TestDecodeValidationMappingAnswer(t *testing.T) {
	prior := samplePrior()
	data := []byte(`{
		"standard entity type list": ["药用植物", "科"],
		"merged entity type mapping": {"植物": "药用植物"},
		"merged relation mapping": {"属": "属于科", "无关": ""}
	}`)

	res, err := decodeValidation(data, prior)
	if err != nil {
		t.Fatalf("decodeValidation: %v", err)
	}
	if res.Entities[0].Type != "药用植物" || res.Entities[1].Type != "科" {
		t.Errorf("entities = %+v, want 植物 relabelled", res.Entities)
	}
	if res.Relationships[0].Predicate != "属于科" {
		t.Errorf("predicate = %q, want 属于科", res.Relationships[0].Predicate)
	}
	if prior.Entities[0].Type != "植物" {
		t.Error("prior was modified in place")
	}
}

func TestDecodeValidationEmptyAnswerKeepsPrior(t *testing.T) {
	prior := samplePrior()
	res, err := decodeValidation([]byte(`{}`), prior)
	if err != nil {
		t.Fatalf("decodeValidation: %v", err)
	}
	if !reflect.DeepEqual(res, prior) {
		t.Errorf("got %+v, want prior unchanged", res)
	}
}

func TestExtractionResultHelpers(t *testing.T) {
	res := &ExtractionResult{
		Entities: []Entity{
			{Name: "甘草", Type: "药用植物"},
			{Name: "咳嗽", Type: "主治症状"},
			{Name: "甘草", Type: "药用植物"},
		},
		Relationships: []Relation{
			{Head: "甘草", Predicate: "主治", Tail: "咳嗽"},
			{Head: "甘草", Predicate: "产地", Tail: "内蒙古"},
		},
	}

	if got := res.EntityTypes().Sorted(); !reflect.DeepEqual(got, []string{"主治症状", "药用植物"}) {
		t.Errorf("EntityTypes = %v", got)
	}
	if got := res.RelationTypes().Sorted(); !reflect.DeepEqual(got, []string{"主治", "产地"}) {
		t.Errorf("RelationTypes = %v", got)
	}
	dangling := res.DanglingRelations()
	if len(dangling) != 1 || dangling[0].Tail != "内蒙古" {
		t.Errorf("DanglingRelations = %+v, want the 内蒙古 edge", dangling)
	}
}
