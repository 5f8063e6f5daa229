// Package bench runs the evaluation dataset through the assistant, merges the
// answers with traced run metadata and scores them with the answer judge.
package bench

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	apperrors "order-analyst/errors"

	"github.com/go-viper/mapstructure/v2"
)

// TypeOutOfScope marks questions the assistant is expected to decline.
const TypeOutOfScope = "OOS"

// DatasetRow is one evaluation question with its reference answer.
type DatasetRow struct {
	Questions  string `mapstructure:"questions"`
	Answers    string `mapstructure:"answers"`
	Code       string `mapstructure:"code"`
	Type       string `mapstructure:"type"`
	Difficulty string `mapstructure:"difficulty"`
}

var datasetColumns = []string{"questions", "answers", "code", "type", "difficulty"}

func ReadDataset(path string) ([]DatasetRow, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	return decodeRows[DatasetRow](rows)
}

func WriteDataset(path string, rows []DatasetRow) error {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{r.Questions, r.Answers, r.Code, r.Type, r.Difficulty})
	}
	return writeRows(path, datasetColumns, out)
}

// readRows reads a headed CSV into one map per data row.
func readRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.WrapErrorf(apperrors.ErrNotFound, "csv %s", path)
		}
		return nil, apperrors.WrapErrorf(apperrors.ErrFileOperation, "open %s: %v", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrFileOperation, "parse %s: %v", path, err)
	}
	if len(records) == 0 {
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "%s has no header row", path)
	}

	headers := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(headers))
		for j, h := range headers {
			if j < len(record) {
				row[h] = record[j]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeRows[T any](rows []map[string]string) ([]T, error) {
	out := make([]T, len(rows))
	for i, row := range rows {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &out[i],
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(row); err != nil {
			return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "row %d: %v", i+2, err)
		}
	}
	return out, nil
}

func writeRows(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.WrapErrorf(apperrors.ErrFileOperation, "create %s: %v", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return apperrors.WrapErrorf(apperrors.ErrFileOperation, "create %s: %v", path, err)
	}
	return writeCSV(f, path, header, rows)
}

// writeCSV writes header and rows to wc and closes it. A failed close is
// reported since buffered data may not have reached the file.
func writeCSV(wc io.WriteCloser, name string, header []string, rows [][]string) error {
	w := csv.NewWriter(wc)
	if err := w.Write(header); err != nil {
		wc.Close()
		return apperrors.WrapErrorf(apperrors.ErrFileOperation, "write %s: %v", name, err)
	}
	if err := w.WriteAll(rows); err != nil {
		wc.Close()
		return apperrors.WrapErrorf(apperrors.ErrFileOperation, "write %s: %v", name, err)
	}
	if err := wc.Close(); err != nil {
		return apperrors.WrapErrorf(apperrors.ErrFileOperation, "close %s: %v", name, err)
	}
	return nil
}
