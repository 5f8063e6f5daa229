// Package runlog persists one JSON document per orchestrated run.
package runlog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "order-analyst/errors"
	"order-analyst/progress"
)

type Log struct {
	Input  string          `json:"input"`
	Output any             `json:"output"`
	Steps  []progress.Step `json:"steps"`
}

func Path(dir, runID string) string {
	return filepath.Join(dir, runID+".json")
}

// Write stores log as {dir}/{runID}.json, replacing any previous file.
func Write(dir, runID string, log Log) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.WrapError(apperrors.ErrFileOperation, err.Error())
	}
	if log.Steps == nil {
		log.Steps = []progress.Step{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(log); err != nil {
		return apperrors.WrapErrorf(apperrors.ErrFileOperation, "encode run log %s: %v", runID, err)
	}
	if err := os.WriteFile(Path(dir, runID), buf.Bytes(), 0o644); err != nil {
		return apperrors.WrapError(apperrors.ErrFileOperation, err.Error())
	}
	return nil
}

func Read(dir, runID string) (*Log, error) {
	data, err := os.ReadFile(Path(dir, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.WrapErrorf(apperrors.ErrNotFound, "run log %s", runID)
		}
		return nil, apperrors.WrapError(apperrors.ErrFileOperation, err.Error())
	}
	var log Log
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrFileOperation, "decode run log %s: %v", runID, err)
	}
	return &log, nil
}

// List returns the run ids found in dir, newest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.WrapError(apperrors.ErrFileOperation, err.Error())
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}
