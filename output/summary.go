package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
)

// ErrUnknownFormat is returned for a summary format other than csv or xlsx.
var ErrUnknownFormat = errors.New("output: unknown summary format")

// Summary formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const summarySheet = "summary"

var summaryHeader = []string{
	"文件名",
	"时间戳",
	"实体类型",
	"实体类型Jaccard系数",
	"关系类型",
	"关系类型Jaccard系数",
}

// Row is one merged document in the summary.
type Row struct {
	Filename           string
	At                 time.Time
	EntityTypes        []string
	EntitySimilarity   float64
	RelationTypes      []string
	RelationSimilarity float64
}

func (r Row) cells() []string {
	return []string{
		r.Filename,
		r.At.Format(RecordLayout),
		joinSorted(r.EntityTypes),
		strconv.FormatFloat(r.EntitySimilarity, 'f', -1, 64),
		joinSorted(r.RelationTypes),
		strconv.FormatFloat(r.RelationSimilarity, 'f', -1, 64),
	}
}

// Summary accumulates one row per merged document. The CSV file is written
// row by row with a UTF-8 byte-order mark; the spreadsheet is saved on
// Close. It is safe for concurrent use.
type Summary struct {
	mu       sync.Mutex
	csvFile  *os.File
	csv      *csv.Writer
	xlsx     *excelize.File
	xlsxPath string
	next     int
	paths    []string
	closed   bool
}

// NewSummary creates extraction_results_<stamp>.<format> files under dir
// for each requested format. With no formats it records nothing.
func NewSummary(dir, stamp string, formats ...string) (*Summary, error) {
	s := &Summary{next: 2}
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case FormatCSV:
			if s.csvFile != nil {
				continue
			}
			if err := s.openCSV(filepath.Join(dir, "extraction_results_"+stamp+".csv")); err != nil {
				s.Close()
				return nil, err
			}
		case FormatXLSX:
			if s.xlsx != nil {
				continue
			}
			if err := s.openXLSX(filepath.Join(dir, "extraction_results_"+stamp+".xlsx")); err != nil {
				s.Close()
				return nil, err
			}
		default:
			s.Close()
			return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
		}
	}
	return s, nil
}

func (s *Summary) openCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating summary dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating csv summary: %w", err)
	}
	if _, err := f.WriteString("\ufeff"); err != nil {
		f.Close()
		return fmt.Errorf("writing csv summary: %w", err)
	}
	s.csvFile = f
	s.csv = csv.NewWriter(f)
	s.paths = append(s.paths, path)
	return s.writeCSV(summaryHeader)
}

func (s *Summary) openXLSX(path string) error {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		f.Close()
		return fmt.Errorf("creating xlsx summary: %w", err)
	}
	header := make([]any, len(summaryHeader))
	for i, h := range summaryHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		f.Close()
		return fmt.Errorf("creating xlsx summary: %w", err)
	}
	s.xlsx = f
	s.xlsxPath = path
	s.paths = append(s.paths, path)
	return nil
}

func (s *Summary) writeCSV(cells []string) error {
	if err := s.csv.Write(cells); err != nil {
		return fmt.Errorf("writing csv summary: %w", err)
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return fmt.Errorf("writing csv summary: %w", err)
	}
	return nil
}

// Append adds r to every open format.
func (s *Summary) Append(r Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("output: summary is closed")
	}

	if s.csv != nil {
		if err := s.writeCSV(r.cells()); err != nil {
			return err
		}
	}
	if s.xlsx != nil {
		cell, err := excelize.CoordinatesToCellName(1, s.next)
		if err != nil {
			return fmt.Errorf("writing xlsx summary: %w", err)
		}
		values := []any{
			r.Filename,
			r.At.Format(RecordLayout),
			joinSorted(r.EntityTypes),
			r.EntitySimilarity,
			joinSorted(r.RelationTypes),
			r.RelationSimilarity,
		}
		if err := s.xlsx.SetSheetRow(summarySheet, cell, &values); err != nil {
			return fmt.Errorf("writing xlsx summary: %w", err)
		}
	}
	s.next++
	return nil
}

// Paths returns the files this summary writes.
func (s *Summary) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Rows reports how many records were appended.
func (s *Summary) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next - 2
}

// Close flushes and closes every format. Calling it twice is a no-op.
func (s *Summary) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.csvFile != nil {
		s.csv.Flush()
		errs = append(errs, s.csv.Error(), s.csvFile.Close())
	}
	if s.xlsx != nil {
		if err := os.MkdirAll(filepath.Dir(s.xlsxPath), 0o755); err != nil {
			errs = append(errs, err)
		} else if err := s.xlsx.SaveAs(s.xlsxPath); err != nil {
			errs = append(errs, fmt.Errorf("saving xlsx summary: %w", err))
		}
		errs = append(errs, s.xlsx.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	slog.Info("output: summary saved", "files", s.paths, "rows", s.next-2)
	return nil
}

func joinSorted(labels []string) string {
	out := append([]string(nil), labels...)
	sort.Strings(out)
	return strings.Join(out, "、")
}
