package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	apperrors "order-analyst/errors"
	"order-analyst/table"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const sqliteMaxRows = 50

// SQLite answers queries from a private in-memory database per session. The
// loaded table is always named df.
type SQLite struct {
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*sql.DB
}

func NewSQLite(logger *zap.Logger) *SQLite {
	return &SQLite{logger: logger, sessions: make(map[string]*sql.DB)}
}

func (s *SQLite) Language() string { return LanguageSQL }

func (s *SQLite) Load(ctx context.Context, session string, t *table.Table) error {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "open session database: %v", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if err := createTable(ctx, db, t); err != nil {
		db.Close()
		return err
	}

	s.mu.Lock()
	if old, ok := s.sessions[session]; ok {
		old.Close()
	}
	s.sessions[session] = db
	s.mu.Unlock()
	s.logger.Debug("Loaded table into sqlite session", zap.String("session_id", session), zap.Int("rows", t.Len()))
	return nil
}

func createTable(ctx context.Context, db *sql.DB, t *table.Table) error {
	numeric := inferNumeric(t)
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		affinity := "TEXT"
		if numeric[i] {
			affinity = "REAL"
		}
		defs[i] = quoteIdent(c) + " " + affinity
	}
	if len(defs) == 0 {
		defs = []string{`"_empty" TEXT`}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "begin load: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE df ("+strings.Join(defs, ", ")+")"); err != nil {
		return apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "create table: %v", err)
	}
	if len(t.Columns) > 0 && len(t.Rows) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO df VALUES ("+placeholders+")")
		if err != nil {
			return apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "prepare insert: %v", err)
		}
		defer stmt.Close()
		args := make([]any, len(t.Columns))
		for _, row := range t.Rows {
			for i := range t.Columns {
				args[i] = cellValue(row[i], numeric[i])
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "insert row: %v", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "commit load: %v", err)
	}
	return nil
}

// inferNumeric marks columns whose non-empty cells all parse as numbers.
// Columns with no values stay TEXT.
func inferNumeric(t *table.Table) []bool {
	numeric := make([]bool, len(t.Columns))
	for i := range t.Columns {
		seen := false
		numeric[i] = true
		for _, row := range t.Rows {
			v := strings.TrimSpace(row[i])
			if v == "" {
				continue
			}
			seen = true
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric[i] = false
				break
			}
		}
		numeric[i] = numeric[i] && seen
	}
	return numeric
}

func cellValue(v string, numeric bool) any {
	if !numeric {
		return v
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	f, _ := strconv.ParseFloat(v, 64)
	return f
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Execute runs one statement and renders its rows as a markdown table.
func (s *SQLite) Execute(ctx context.Context, session, code string) (string, error) {
	s.mu.Lock()
	db, ok := s.sessions[session]
	s.mu.Unlock()
	if !ok {
		return "", apperrors.WrapErrorf(apperrors.ErrNoData, "session %s", session)
	}

	rows, err := db.QueryContext(ctx, code)
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	result := &table.Table{Columns: cols}
	extra := 0
	for rows.Next() {
		if len(result.Rows) >= sqliteMaxRows {
			extra++
			continue
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "Error: " + err.Error(), nil
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = formatValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return "Error: " + err.Error(), nil
	}
	if len(cols) == 0 {
		return "Statement executed.", nil
	}
	if result.Len() == 0 {
		return "Query returned no rows.", nil
	}
	out := result.Markdown()
	if extra > 0 {
		out += fmt.Sprintf("... (%d more rows)\n", extra)
	}
	return out, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}

func (s *SQLite) Release(session string) {
	s.mu.Lock()
	db, ok := s.sessions[session]
	delete(s.sessions, session)
	s.mu.Unlock()
	if ok {
		db.Close()
	}
}
