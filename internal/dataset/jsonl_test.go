package dataset

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

type jsonlItem struct {
	Name string `json:"name"`
}

func TestReadJSONL_FileWithBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.jsonl")
	content := "{\"name\": \"a\"}\n\n  \n{\"name\": \"b\"}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := readJSONL[jsonlItem](context.Background(), path)
	if err != nil {
		t.Fatalf("readJSONL: %v", err)
	}
	want := []jsonlItem{{Name: "a"}, {Name: "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("readJSONL: got %+v, want %+v", got, want)
	}
}

func TestReadJSONL_Directory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "b.jsonl"), []byte(`{"name": "second"}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.jsonl"), []byte(`{"name": "first"}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("junk"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := readJSONL[jsonlItem](context.Background(), dir)
	if err != nil {
		t.Fatalf("readJSONL: %v", err)
	}
	want := []jsonlItem{{Name: "first"}, {Name: "second"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("readJSONL: got %+v, want %+v", got, want)
	}
}

func TestReadJSONL_ParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("{not json}"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := readJSONL[jsonlItem](context.Background(), path); err == nil {
		t.Fatalf("readJSONL: expected error")
	}
}

func TestReadJSONL_EmptyPath(t *testing.T) {
	if _, err := readJSONL[jsonlItem](context.Background(), "  "); err == nil {
		t.Fatalf("readJSONL: expected error")
	}
}

func TestReadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	if err := os.WriteFile(path, []byte(`[{"name": "x"}]`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := readJSONFile[[]jsonlItem](path)
	if err != nil {
		t.Fatalf("readJSONFile: %v", err)
	}
	if len(got) != 1 || got[0].Name != "x" {
		t.Fatalf("readJSONFile: got %+v", got)
	}
}

func TestTakeFirstN(t *testing.T) {
	in := []int{1, 2, 3}
	if got := takeFirstN(in, 2); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("takeFirstN: got %v", got)
	}
	if got := takeFirstN(in, 0); !reflect.DeepEqual(got, in) {
		t.Fatalf("takeFirstN(0): got %v", got)
	}
	if got := takeFirstN(in, 10); !reflect.DeepEqual(got, in) {
		t.Fatalf("takeFirstN(10): got %v", got)
	}
}
