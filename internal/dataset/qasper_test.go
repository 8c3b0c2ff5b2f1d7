package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeQasperFile(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "qasper.jsonl")
	content := strings.Join([]string{
		`{"question": "What model do they use?", "answer": "BERT", "paper_id": "1705.0001", "title": "Paper One", "abstract": "About BERT."}`,
		`{"question": "  ", "answer": "skipped", "paper_id": "x"}`,
		`{"question": "What is the dataset size?", "answer": "10k examples", "paper_id": "1705.0002", "title": "Paper Two", "abstract": "About data."}`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestQasper_Load(t *testing.T) {
	d := &Qasper{Path: writeQasperFile(t)}
	got, err := d.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Load: got %d elements, want 2 (blank question skipped)", len(got))
	}

	el := got[0]
	if el.ID != "0-1705.0001" {
		t.Fatalf("ID: got %q", el.ID)
	}
	if !strings.Contains(el.Prompt, "<question>\nWhat model do they use?\n</question>") {
		t.Fatalf("Prompt: got %q", el.Prompt)
	}
	if el.Answer != "BERT" {
		t.Fatalf("Answer: got %q", el.Answer)
	}

	if len(el.Messages) != 2 {
		t.Fatalf("Messages: got %d, want 2", len(el.Messages))
	}
	if el.Messages[1].Role != "assistant" || el.Messages[1].Content != "<answer>\nBERT\n</answer>" {
		t.Fatalf("assistant message: got %+v", el.Messages[1])
	}

	if el.Metadata["paper_id"] != "1705.0001" || el.Metadata["title"] != "Paper One" {
		t.Fatalf("Metadata: got %+v", el.Metadata)
	}
}

func TestQasper_LoadMissingFile(t *testing.T) {
	d := &Qasper{Path: filepath.Join(t.TempDir(), "missing.jsonl")}
	if _, err := d.Load(context.Background()); err == nil {
		t.Fatalf("Load: expected error")
	}
}

func TestQasper_Score(t *testing.T) {
	d := &Qasper{}

	got, err := d.Score("<answer>\nBERT\n</answer>", "BERT")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got != 1 {
		t.Fatalf("Score: got %v, want 1", got)
	}

	got, err = d.Score("completely wrong", "BERT")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got != 0 {
		t.Fatalf("Score: got %v, want 0", got)
	}
}
