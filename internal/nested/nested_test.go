package nested

import (
	"math"
	"reflect"
	"testing"
)

func TestFlatten_NestedMapsAndSequences(t *testing.T) {
	in := map[string]any{
		"a": 1,
		"b": map[string]any{
			"c": 2,
			"d": map[string]any{"e": 3},
		},
		"f": []any{4, 5},
	}

	got := Flatten(in, "")
	want := map[string]any{
		"a":     1,
		"b.c":   2,
		"b.d.e": 3,
		"f.0":   4,
		"f.1":   5,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Flatten: got %v, want %v", got, want)
	}
}

func TestFlatten_ScalarRoot(t *testing.T) {
	got := Flatten(42, ".")
	want := map[string]any{"": 42}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Flatten: got %v, want %v", got, want)
	}
}

func TestFlatten_OneEntryPerLeaf(t *testing.T) {
	in := map[string]any{
		"a": []any{1, 2, 3},
		"b": map[string]any{"c": nil, "d": "x"},
		"e": true,
	}

	got := Flatten(in, ".")
	if len(got) != 6 {
		t.Fatalf("Flatten: got %d entries, want 6 (%v)", len(got), got)
	}
	if v, ok := got["b.c"]; !ok || v != nil {
		t.Fatalf("Flatten: nil leaf not preserved: %v", got)
	}
}

func TestFlatten_CustomDelimiter(t *testing.T) {
	got := Flatten(map[string]any{"a": map[string]any{"b": 1}}, "/")
	want := map[string]any{"a/b": 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Flatten: got %v, want %v", got, want)
	}
}

func TestUnflatten_RoundTrip(t *testing.T) {
	in := map[string]any{
		"a": 1,
		"b": map[string]any{
			"c": 2,
			"d": map[string]any{"e": 3},
		},
		"f": []any{4, 5},
	}

	got := Unflatten(Flatten(in, "."), ".")
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip: got %v, want %v", got, in)
	}
}

func TestUnflatten_DropsNaN(t *testing.T) {
	got := Unflatten(map[string]any{
		"a.b": 1,
		"a.c": math.NaN(),
	}, ".")
	want := map[string]any{"a": map[string]any{"b": 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Unflatten: got %v, want %v", got, want)
	}
}

func TestUnflatten_AllNaNSubtreeLeavesNoNode(t *testing.T) {
	got := Unflatten(map[string]any{
		"a":   1,
		"b.c": math.NaN(),
		"b.d": math.NaN(),
	}, ".")
	want := map[string]any{"a": 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Unflatten: got %v, want %v", got, want)
	}
}

func TestUnflatten_NonZeroStartContiguousKeysBecomeSequence(t *testing.T) {
	got := Unflatten(map[string]any{
		"x.1": "a",
		"x.2": "b",
	}, ".")
	want := map[string]any{"x": []any{"a", "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Unflatten: got %v, want %v", got, want)
	}
}

func TestUnflatten_SingleZeroKeyBecomesSequence(t *testing.T) {
	got := Unflatten(map[string]any{"x.0": "a"}, ".")
	want := map[string]any{"x": []any{"a"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Unflatten: got %v, want %v", got, want)
	}
}

func TestUnflatten_NonContiguousKeysStayMapping(t *testing.T) {
	got := Unflatten(map[string]any{
		"x.0": "a",
		"x.2": "b",
	}, ".")
	want := map[string]any{"x": map[string]any{"0": "a", "2": "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Unflatten: got %v, want %v", got, want)
	}
}

func TestUnflatten_MixedKeysStayMapping(t *testing.T) {
	got := Unflatten(map[string]any{
		"x.0":    "a",
		"x.name": "b",
	}, ".")
	want := map[string]any{"x": map[string]any{"0": "a", "name": "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Unflatten: got %v, want %v", got, want)
	}
}

func TestUnflatten_ConvertsDeepestNodesFirst(t *testing.T) {
	got := Unflatten(map[string]any{
		"x.0.0": 1,
		"x.0.1": 2,
		"x.1.0": 3,
	}, ".")
	want := map[string]any{"x": []any{[]any{1, 2}, []any{3}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Unflatten: got %v, want %v", got, want)
	}
}

func TestUnflatten_NegativeKeysContiguous(t *testing.T) {
	got := Unflatten(map[string]any{
		"x.-1": "a",
		"x.0":  "b",
	}, ".")
	want := map[string]any{"x": []any{"a", "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Unflatten: got %v, want %v", got, want)
	}
}
