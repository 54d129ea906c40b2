package pipeline

import "fmt"

// Stage names for DocumentError.
const (
	StageRead       = "read"
	StageVocabulary = "vocabulary"
	StageExtraction = "extraction"
	StageValidation = "validation"
	StageMerge      = "merge"
	StagePersist    = "persist"
)

// DocumentError is the cause of an aborted document. State is where the
// document stood when the failing step began.
type DocumentError struct {
	Filename string
	State    State
	Stage    string
	Err      error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s: %s failed (state %s): %v", e.Filename, e.Stage, e.State, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }
