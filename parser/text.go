package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// TextParser handles plain text (.txt) files. Content must be UTF-8; a
// leading byte-order mark is dropped.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt"} }

func (p *TextParser) Parse(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading text file: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s", ErrNotUTF8, path)
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}
