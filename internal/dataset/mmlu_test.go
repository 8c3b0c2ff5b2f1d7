package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeMMLUFile(t *testing.T, rows int) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "mmlu.jsonl")

	var sb strings.Builder
	for i := 0; i < rows; i++ {
		prompt := fmt.Sprintf(
			"<|start_header_id|>user<|end_header_id|>\n\nQuestion %d?\n\nA. one\nB. two<|eot_id|><|start_header_id|>assistant<|end_header_id|>\n\nThe best answer is",
			i,
		)
		fmt.Fprintf(&sb, `{"input_final_prompts": [%q], "input_correct_responses": ["A"]}`+"\n", prompt)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestMMLU_Load(t *testing.T) {
	t.Setenv("CARTRIDGES_MMLU_PATH", "")
	path := writeMMLUFile(t, 10)

	d := &MMLU{Path: path, NumProblems: 4, Seed: 47}
	got, err := d.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Load: got %d elements, want 4", len(got))
	}

	el := got[0]
	if el.Answer != "A" {
		t.Fatalf("Answer: got %q", el.Answer)
	}
	if el.MaxNewTokens != 1 {
		t.Fatalf("MaxNewTokens: got %d", el.MaxNewTokens)
	}
	if len(el.Messages) != 1 || el.Messages[0].Role != "user" {
		t.Fatalf("Messages: got %+v", el.Messages)
	}
	if strings.Contains(el.Messages[0].Content, "The best answer is") {
		t.Fatalf("Messages: scoring stub not stripped: %q", el.Messages[0].Content)
	}
}

func TestMMLU_LoadDeterministicSubsample(t *testing.T) {
	t.Setenv("CARTRIDGES_MMLU_PATH", "")
	path := writeMMLUFile(t, 20)

	d := &MMLU{Path: path, NumProblems: 5, Seed: 47}
	a, err := d.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := d.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("Load: subsample not deterministic")
	}
}

func TestMMLU_LoadMissingFileFallsBackToSample(t *testing.T) {
	t.Setenv("CARTRIDGES_MMLU_PATH", "")

	d := &MMLU{Path: filepath.Join(t.TempDir(), "missing.jsonl"), NumProblems: 2}
	got, err := d.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Load: got %d elements, want 2", len(got))
	}
	if !strings.HasPrefix(got[0].ID, "mmlu-sample-") {
		t.Fatalf("ID: got %q", got[0].ID)
	}
}

func TestMMLU_Score(t *testing.T) {
	d := &MMLU{}

	cases := []struct {
		pred   string
		answer string
		want   float64
	}{
		{"A", "A", 1},
		{"A. one", "A", 1},
		{"The best answer is B", "B", 1},
		{"The best answer is B.", "A", 0},
		{"  ", "A", 0},
		{"C", "A", 0},
	}
	for _, tc := range cases {
		got, err := d.Score(tc.pred, tc.answer)
		if err != nil {
			t.Fatalf("Score(%q): %v", tc.pred, err)
		}
		if got != tc.want {
			t.Fatalf("Score(%q, %q): got %v, want %v", tc.pred, tc.answer, got, tc.want)
		}
	}
}

func TestParseChatMessages(t *testing.T) {
	text := "<|start_header_id|>system<|end_header_id|>\n\nBe brief.<|eot_id|>" +
		"<|start_header_id|>user<|end_header_id|>\n\nWhat is 2+2?<|eot_id|>" +
		"<|start_header_id|>assistant<|end_header_id|>\n\n   <|eot_id|>"

	got := ParseChatMessages(text)
	want := []Message{
		{Role: "system", Content: "Be brief."},
		{Role: "user", Content: "What is 2+2?"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseChatMessages: got %+v, want %+v", got, want)
	}
}

func TestParseChatMessages_NoMatches(t *testing.T) {
	if got := ParseChatMessages("plain text"); len(got) != 0 {
		t.Fatalf("ParseChatMessages: got %+v, want empty", got)
	}
}
