package pipeline

import (
	"fmt"
	"strings"
)

// State is a document's position in the processing state machine.
type State string

const (
	StatePending           State = "PENDING"
	StateExtracted         State = "EXTRACTED"
	StateValidated         State = "VALIDATED"
	StateSkippedValidation State = "SKIPPED_VALIDATION"
	StateMerged            State = "MERGED"
	StatePersisted         State = "PERSISTED"
	StateAborted           State = "ABORTED"
)

// transitions lists the forward edges. ABORTED is reachable from every
// non-terminal state and is handled in CanTransition.
var transitions = map[State][]State{
	StatePending:           {StateExtracted},
	StateExtracted:         {StateValidated, StateSkippedValidation},
	StateValidated:         {StateMerged},
	StateSkippedValidation: {StateMerged},
	StateMerged:            {StatePersisted},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StatePersisted || s == StateAborted
}

// CanTransition reports whether s -> to is a legal edge.
func (s State) CanTransition(to State) bool {
	if s.Terminal() {
		return false
	}
	if to == StateAborted {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Mode is the batch-level extraction policy.
type Mode string

const (
	// ModeAuto extracts strictly without validation once converged, and
	// openly with validation before that. Re-evaluated per document.
	ModeAuto Mode = "auto"
	// ModeNormal always extracts openly; validation stops once converged.
	ModeNormal Mode = "normal"
	// ModeStrict always extracts against the closed vocabulary, unvalidated.
	ModeStrict Mode = "strict"
)

// ParseMode accepts auto, normal or strict, case-insensitively. Empty
// means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeNormal, ModeStrict:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}
