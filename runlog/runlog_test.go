package runlog

import (
	"os"
	"strings"
	"testing"

	apperrors "order-analyst/errors"
	"order-analyst/progress"
)

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir() + "/logs"
	log := Log{
		Input:  "Which vendor had the most orders in <May>?",
		Output: map[string]any{"output": "**Acme** with 12 orders", "plan": "1. load"},
		Steps: []progress.Step{
			{Action: "data_loader(2025-05-01, 2025-05-31)", Message: "Loading data"},
			{Marker: true, Text: progress.FinishedMessage},
		},
	}
	if err := Write(dir, "20250520_101500", log); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := os.ReadFile(Path(dir, "20250520_101500"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "<May>") {
		t.Errorf("html characters escaped: %s", raw)
	}
	if !strings.Contains(string(raw), "\n  \"steps\": [") {
		t.Errorf("log not indented: %s", raw)
	}

	back, err := Read(dir, "20250520_101500")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if back.Input != log.Input || len(back.Steps) != 2 || !back.Steps[1].Marker {
		t.Errorf("Read() = %+v", back)
	}
	out, ok := back.Output.(map[string]any)
	if !ok || out["plan"] != "1. load" {
		t.Errorf("output = %#v", back.Output)
	}
}

func TestReadMissing(t *testing.T) {
	if _, err := Read(t.TempDir(), "nope"); !apperrors.IsNotFound(err) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"20250101_000000", "20250301_120000", "20250201_093000"} {
		if err := Write(dir, id, Log{Input: id}); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := List(dir)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(ids, ",") != "20250301_120000,20250201_093000,20250101_000000" {
		t.Errorf("List() = %v", ids)
	}
	if ids, err := List(dir + "/missing"); err != nil || ids != nil {
		t.Errorf("List(missing) = %v, %v", ids, err)
	}
}
