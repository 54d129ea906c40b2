package parser

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IndexRange selects the half-open slice [Start, End) of a sorted file
// list. A nil bound means "from the beginning" or "to the end".
type IndexRange struct {
	Start *int `json:"start,omitempty" yaml:"start,omitempty"`
	End   *int `json:"end,omitempty" yaml:"end,omitempty"`
}

// Bounds resolves the range against n files.
func (r IndexRange) Bounds(n int) (start, end int, err error) {
	start, end = 0, n
	if r.Start != nil {
		start = *r.Start
	}
	if r.End != nil {
		end = *r.End
	}
	if start < 0 || end > n || start >= end {
		return 0, 0, fmt.Errorf("%w: [%d, %d) over %d files", ErrInvalidRange, start, end, n)
	}
	return start, end, nil
}

// Discover lists the documents a batch processes. A file input yields just
// that file and ignores the range. A directory input yields its regular
// files whose extension is in exts (default "txt"), sorted by name and
// sliced to r. An empty directory with no range gives an empty list.
func Discover(input string, r IndexRange, exts ...string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, input)
		}
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if !info.IsDir() {
		return []string{input}, nil
	}

	if len(exts) == 0 {
		exts = []string{"txt"}
	}
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, fmt.Errorf("reading input directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !want[formatOf(e.Name())] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if len(names) == 0 && r.Start == nil && r.End == nil {
		return nil, nil
	}
	start, end, err := r.Bounds(len(names))
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, end-start)
	for _, n := range names[start:end] {
		paths = append(paths, filepath.Join(input, n))
	}
	return paths, nil
}

// Int returns a pointer to v, for building an IndexRange literal.
func Int(v int) *int { return &v }
