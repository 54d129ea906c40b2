package graph

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// codeBlockRe strips markdown code fences from LLM output.
	codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")
	// objectRe spans from the first '{' to the last '}'.
	objectRe = regexp.MustCompile(`\{[\s\S]*\}`)
	// bareKeyRe finds unquoted object keys.
	bareKeyRe = regexp.MustCompile(`([{,])\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
	// trailingCommaRe finds a comma directly before a closing bracket.
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// Repair turns near-JSON model output into a JSON object. Valid input is
// returned as-is. Otherwise a single repair pass strips code fences, cuts
// the outermost {...}, converts single quotes, quotes bare keys and drops
// trailing commas. If the result still does not parse, the error wraps
// ErrUnparseable.
func Repair(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, ErrEmptyResponse
	}
	if isObject(s) {
		return []byte(s), nil
	}

	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		s = strings.TrimSpace(m[1])
		if isObject(s) {
			return []byte(s), nil
		}
	}

	obj := objectRe.FindString(s)
	if obj == "" {
		return nil, fmt.Errorf("%w: no JSON object found", ErrUnparseable)
	}
	if isObject(obj) {
		return []byte(obj), nil
	}

	fixed := strings.ReplaceAll(obj, "'", `"`)
	fixed = bareKeyRe.ReplaceAllString(fixed, `$1"$2":`)
	fixed = trailingCommaRe.ReplaceAllString(fixed, "$1")

	if !isObject(fixed) {
		var probe map[string]any
		err := json.Unmarshal([]byte(fixed), &probe)
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return []byte(fixed), nil
}

// isObject reports whether s is a syntactically valid JSON object.
func isObject(s string) bool {
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}
