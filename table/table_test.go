package table

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "order-analyst/errors"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func day(s string) time.Time {
	d, _ := time.Parse(DateLayout, s)
	return d
}

func TestLoadRange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "2024-12-01.csv", "order_id,vendor\n1,acme\n2,globex\n")
	writeFile(t, dir, "2024-12-02.csv", "order_id,vendor,quantity\n3,acme,10\n")
	writeFile(t, dir, "2024-12-05.csv", "order_id,vendor\n4,initech\n")
	writeFile(t, dir, "notes.csv", "x\n1\n")
	writeFile(t, dir, "2024-12-03.txt", "ignored")

	tests := []struct {
		name     string
		start    string
		end      string
		wantRows int
		wantCols []string
	}{
		{"inclusive_both_ends", "2024-12-01", "2024-12-02", 3, []string{"order_id", "vendor", "quantity"}},
		{"single_day", "2024-12-05", "2024-12-05", 1, []string{"order_id", "vendor"}},
		{"no_match", "2025-01-01", "2025-01-31", 0, nil},
		{"all", "2024-11-01", "2025-01-01", 4, []string{"order_id", "vendor", "quantity"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadRange(dir, day(tt.start), day(tt.end))
			if err != nil {
				t.Fatalf("LoadRange: %v", err)
			}
			if got.Len() != tt.wantRows {
				t.Errorf("rows = %d, want %d", got.Len(), tt.wantRows)
			}
			if strings.Join(got.Columns, ",") != strings.Join(tt.wantCols, ",") {
				t.Errorf("columns = %v, want %v", got.Columns, tt.wantCols)
			}
		})
	}
}

func TestLoadRangeOrdersByDateAndPads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "2024-12-02.csv", "order_id,quantity\n2,5\n")
	writeFile(t, dir, "2024-12-01.csv", "order_id\n1\n")

	got, err := LoadRange(dir, day("2024-12-01"), day("2024-12-02"))
	if err != nil {
		t.Fatalf("LoadRange: %v", err)
	}
	if got.Rows[0][0] != "1" || got.Rows[1][0] != "2" {
		t.Errorf("rows not in date order: %v", got.Rows)
	}
	if got.Rows[0][1] != "" || got.Rows[1][1] != "5" {
		t.Errorf("union padding wrong: %v", got.Rows)
	}
}

func TestLoadRangeInvertedRangeIsEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "2024-12-03.csv", "order_id\n1\n")
	got, err := LoadRange(dir, day("2024-12-05"), day("2024-12-01"))
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if got == nil || got.Len() != 0 {
		t.Errorf("table = %+v, want empty", got)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"2024-12-01, 2025-05-20", false},
		{"'2024-12-01,2024-12-31'", false},
		{"2024-12-01", true},
		{"yesterday, today", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, _, err := ParseRange(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseRange(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !apperrors.IsInvalidInput(err) {
				t.Errorf("ParseRange(%q) err = %v, want ErrInvalidInput", tt.in, err)
			}
		})
	}
}

func TestMarkdownAndCSV(t *testing.T) {
	tbl := &Table{Columns: []string{"vendor", "note"}, Rows: [][]string{{"acme", "a|b"}}}
	md := tbl.Markdown()
	if !strings.Contains(md, `| acme | a\|b |`) {
		t.Errorf("Markdown() = %q", md)
	}

	var buf bytes.Buffer
	if err := tbl.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	back, err := ReadCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if back.Len() != 1 || back.Rows[0][1] != "a|b" {
		t.Errorf("ReadCSV = %+v", back)
	}
}

func TestStore(t *testing.T) {
	s := NewStore()
	if s.Get() != nil {
		t.Fatal("new store should be empty")
	}
	tbl := &Table{Columns: []string{"a"}}
	s.Set(tbl)
	if s.Get() != tbl {
		t.Error("Get should return the last Set table")
	}
}
