// Package table holds the in-memory tabular data shared between the data
// loader and the query tools.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "order-analyst/errors"
)

const DateLayout = "2006-01-02"

// Table is a column-ordered set of string cells. Every row has len(Columns)
// cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Head returns a table with at most n rows sharing t's columns.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// Markdown renders t as a pipe table.
func (t *Table) Markdown() string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(escapeCells(t.Columns), " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(t.Columns)) + "\n")
	for _, row := range t.Rows {
		b.WriteString("| " + strings.Join(escapeCells(row), " | ") + " |\n")
	}
	return b.String()
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(strings.ReplaceAll(c, "|", `\|`), "\n", " ")
	}
	return out
}

// WriteCSV writes a header row followed by every data row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// ReadCSV parses a headed CSV stream. Short rows are padded.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Table{}, nil
	}
	t := &Table{Columns: records[0]}
	for _, rec := range records[1:] {
		row := make([]string, len(t.Columns))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Concat appends tables vertically. The result's columns are the union of
// all input columns in first-seen order; missing cells are empty.
func Concat(tables ...*Table) *Table {
	out := &Table{}
	index := map[string]int{}
	for _, t := range tables {
		for _, c := range t.Columns {
			if _, ok := index[c]; !ok {
				index[c] = len(out.Columns)
				out.Columns = append(out.Columns, c)
			}
		}
	}
	for _, t := range tables {
		for _, src := range t.Rows {
			row := make([]string, len(out.Columns))
			for i, c := range t.Columns {
				if i < len(src) {
					row[index[c]] = src[i]
				}
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// LoadRange loads every <date>.csv file under dir whose stem parses as a date
// within [start, end] and concatenates them in date order. No matching file,
// including an inverted range, yields an empty table.
func LoadRange(dir string, start, end time.Time) (*Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	type dated struct {
		day  time.Time
		path string
	}
	var files []dated
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".csv" {
			continue
		}
		day, err := time.Parse(DateLayout, strings.TrimSuffix(e.Name(), ".csv"))
		if err != nil {
			continue
		}
		if day.Before(start) || day.After(end) {
			continue
		}
		files = append(files, dated{day: day, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].day.Before(files[j].day) })

	parts := make([]*Table, 0, len(files))
	for _, f := range files {
		fh, err := os.Open(f.path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.path, err)
		}
		t, err := ReadCSV(fh)
		fh.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.path, err)
		}
		parts = append(parts, t)
	}
	return Concat(parts...), nil
}

// ParseRange parses "YYYY-MM-DD, YYYY-MM-DD".
func ParseRange(input string) (time.Time, time.Time, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(input), `"'`), ",")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, apperrors.WrapErrorf(apperrors.ErrInvalidInput,
			"expected 'YYYY-MM-DD, YYYY-MM-DD', got %q", input)
	}
	start, err := time.Parse(DateLayout, strings.TrimSpace(parts[0]))
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "start date: %v", err)
	}
	end, err := time.Parse(DateLayout, strings.TrimSpace(parts[1]))
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "end date: %v", err)
	}
	return start, end, nil
}

// Store is the current table of one orchestrator. The loader replaces it
// wholesale; readers get the latest snapshot.
type Store struct {
	mu  sync.RWMutex
	cur *Table
}

func NewStore() *Store { return &Store{} }

func (s *Store) Set(t *Table) {
	s.mu.Lock()
	s.cur = t
	s.mu.Unlock()
}

// Get returns the current table, or nil if nothing was loaded.
func (s *Store) Get() *Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}
