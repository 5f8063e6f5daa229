package engine

import (
	"context"
	"strings"
	"testing"

	apperrors "order-analyst/errors"
	"order-analyst/table"

	"go.uber.org/zap"
)

func ordersTable() *table.Table {
	return &table.Table{
		Columns: []string{"order_id", "vendor", "quantity"},
		Rows: [][]string{
			{"1", "acme", "10"},
			{"2", "globex", "2.5"},
			{"3", "acme", ""},
		},
	}
}

func TestSQLiteQueries(t *testing.T) {
	ctx := context.Background()
	s := NewSQLite(zap.NewNop())
	if err := s.Load(ctx, "s1", ordersTable()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer s.Release("s1")

	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"sum_numeric", "SELECT SUM(quantity) AS total FROM df", []string{"| total |", "| 12.5 |"}},
		{"group_text", "SELECT vendor, COUNT(*) AS n FROM df GROUP BY vendor ORDER BY n DESC", []string{"| acme | 2 |", "| globex | 1 |"}},
		{"null_for_empty", "SELECT COUNT(quantity) AS n FROM df", []string{"| 2 |"}},
		{"no_rows", "SELECT * FROM df WHERE vendor = 'initech'", []string{"Query returned no rows."}},
		{"bad_sql", "SELECT nope FROM df", []string{"Error:"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Execute(ctx, "s1", tt.sql)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output %q missing %q", out, w)
				}
			}
		})
	}
}

func TestSQLiteSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewSQLite(zap.NewNop())
	if err := s.Load(ctx, "a", ordersTable()); err != nil {
		t.Fatal(err)
	}
	if err := s.Load(ctx, "b", &table.Table{Columns: []string{"order_id"}, Rows: [][]string{{"9"}}}); err != nil {
		t.Fatal(err)
	}
	out, _ := s.Execute(ctx, "b", "SELECT COUNT(*) AS n FROM df")
	if !strings.Contains(out, "| 1 |") {
		t.Errorf("session b sees %q", out)
	}

	s.Release("a")
	if _, err := s.Execute(ctx, "a", "SELECT 1"); !apperrors.Is(err, apperrors.ErrNoData) {
		t.Errorf("released session err = %v, want ErrNoData", err)
	}
}

func TestInferNumeric(t *testing.T) {
	got := inferNumeric(&table.Table{
		Columns: []string{"n", "s", "empty"},
		Rows:    [][]string{{"1", "x", ""}, {"-2e3", "2", ""}},
	})
	want := []bool{true, false, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d numeric = %v, want %v", i, got[i], want[i])
		}
	}
}
