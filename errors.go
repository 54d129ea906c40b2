package herbex

import (
	"errors"

	"github.com/brunobiangulo/herbex/parser"
)

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("herbex: invalid configuration")

	// ErrMissingCredentials is returned when a hosted provider has no API key.
	ErrMissingCredentials = errors.New("herbex: missing API credentials")

	// ErrInputNotFound is returned when the input path does not exist.
	ErrInputNotFound = parser.ErrInputNotFound

	// ErrInvalidRange is returned when the index range does not fit the
	// input directory.
	ErrInvalidRange = parser.ErrInvalidRange
)
