package graph

import "errors"

var (
	// ErrAdapter is returned when the model call itself fails.
	ErrAdapter = errors.New("graph: model call failed")

	// ErrEmptyResponse is returned when the model answers with no text.
	ErrEmptyResponse = errors.New("graph: empty model response")

	// ErrUnparseable is returned when the response is not JSON even after
	// one repair pass.
	ErrUnparseable = errors.New("graph: response is not valid JSON")

	// ErrPrompt is returned when an instruction cannot be built.
	ErrPrompt = errors.New("graph: cannot build prompt")

	// ErrEmptyVocabulary is returned when a strict prompt is requested
	// with no labels to restrict to.
	ErrEmptyVocabulary = errors.New("graph: strict extraction needs a non-empty vocabulary")
)
