package parser

import "errors"

var (
	ErrUnsupportedFormat = errors.New("parser: unsupported format")
	ErrNotUTF8           = errors.New("parser: text is not valid UTF-8")
	ErrEmptyDocument     = errors.New("parser: document has no text")
	ErrInputNotFound     = errors.New("parser: input not found")
	ErrInvalidRange      = errors.New("parser: invalid index range")
)
