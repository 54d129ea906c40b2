// Package output writes the per-document artifacts of a batch: extraction
// results, model conversation logs, and the tabular similarity summary.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brunobiangulo/herbex/graph"
)

// Timestamp layouts. StampLayout names a batch's output directories;
// RecordLayout stamps individual records.
const (
	StampLayout  = "20060102_150405"
	RecordLayout = "2006-01-02 15:04:05"
)

// Writer places results under <dir>/results_<stamp> and conversation logs
// under <dir>/conversation_logs_<stamp>. Directories are created on first
// write.
type Writer struct {
	resultDir string
	logDir    string
	now       func() time.Time
}

// NewWriter creates a Writer rooted at dir for one batch.
func NewWriter(dir, stamp string) *Writer {
	return &Writer{
		resultDir: filepath.Join(dir, "results_"+stamp),
		logDir:    filepath.Join(dir, "conversation_logs_"+stamp),
		now:       time.Now,
	}
}

func (w *Writer) ResultDir() string { return w.resultDir }
func (w *Writer) LogDir() string    { return w.logDir }

// conversation is the on-disk form of one model exchange.
type conversation struct {
	Timestamp string `json:"timestamp"`
	InputFile string `json:"input_file"`
	Stage     string `json:"stage"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
}

// WriteResult stores res as <base>_result.json and returns the path.
func (w *Writer) WriteResult(source string, res *graph.ExtractionResult) (string, error) {
	if res == nil {
		return "", fmt.Errorf("output: nil result for %s", source)
	}
	path := filepath.Join(w.resultDir, baseName(source)+"_result.json")
	if err := writeJSON(path, res); err != nil {
		return "", fmt.Errorf("writing result: %w", err)
	}
	return path, nil
}

// WriteConversation stores ex as <base>_<stage>_conversation.json and
// returns the path.
func (w *Writer) WriteConversation(source string, ex *graph.Exchange) (string, error) {
	if ex == nil {
		return "", fmt.Errorf("output: nil exchange for %s", source)
	}
	at := ex.At
	if at.IsZero() {
		at = w.now()
	}
	rec := conversation{
		Timestamp: at.Format(RecordLayout),
		InputFile: filepath.Base(source),
		Stage:     ex.Stage,
		Prompt:    ex.Prompt,
		Response:  ex.Response,
	}
	path := filepath.Join(w.logDir, fmt.Sprintf("%s_%s_conversation.json", baseName(source), ex.Stage))
	if err := writeJSON(path, rec); err != nil {
		return "", fmt.Errorf("writing conversation log: %w", err)
	}
	return path, nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// writeJSON writes v indented, without escaping non-ASCII or HTML.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
