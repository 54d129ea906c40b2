// Package parser reads source documents as plain text and selects which
// documents a batch processes.
package parser

import "context"

// Parser can read a specific document format as plain text.
type Parser interface {
	Parse(ctx context.Context, path string) (string, error)
	SupportedFormats() []string
}
