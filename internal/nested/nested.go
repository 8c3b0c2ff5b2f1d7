// Package nested converts between arbitrarily nested values and flat
// key-value maps with delimiter-joined path keys, the shape used for
// tabular logging of run configs and metrics.
//
// Nested values are the dynamic structures produced by encoding/json:
// map[string]any nodes, []any nodes, and scalar leaves.
package nested

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultDelimiter separates path segments in flattened keys.
const DefaultDelimiter = "."

// Flatten collapses a nested value into a flat map whose keys are the
// delimiter-joined paths from the root to each scalar leaf. Sequence
// indices are rendered as decimal segments. A scalar at the root is
// stored under the empty key.
//
// A mapping key that itself contains the delimiter is an unchecked
// precondition violation; round-trip correctness is not guaranteed then.
func Flatten(value any, delimiter string) map[string]any {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	out := make(map[string]any)
	flattenInto(out, value, "", false, delimiter)
	return out
}

func flattenInto(out map[string]any, value any, prefix string, hasPrefix bool, delim string) {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			flattenInto(out, child, joinKey(prefix, hasPrefix, k, delim), true, delim)
		}
	case []any:
		for i, child := range v {
			flattenInto(out, child, joinKey(prefix, hasPrefix, strconv.Itoa(i), delim), true, delim)
		}
	default:
		out[prefix] = v
	}
}

func joinKey(prefix string, hasPrefix bool, segment, delim string) string {
	if !hasPrefix {
		return segment
	}
	return prefix + delim + segment
}

// Unflatten rebuilds a nested value from a flat map produced by Flatten.
//
// Entries whose value is a floating-point NaN are skipped before any node
// is created; wide-format tabular logging introduces placeholder NaNs for
// columns absent from a given row, and an all-NaN subtree must not leave
// an empty mapping behind.
//
// After reconstruction, every mapping node whose keys all parse as
// integers forming a contiguous range (from the minimum observed key, not
// necessarily zero) is converted to a sequence ordered by key, deepest
// nodes first. Keys that fail integer parsing leave the node a mapping.
func Unflatten(flat map[string]any, delimiter string) any {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}

	root := make(map[string]any)
	for key, value := range flat {
		if isNaN(value) {
			continue
		}

		parts := strings.Split(key, delimiter)
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}

	return sequencify(root)
}

func isNaN(value any) bool {
	switch v := value.(type) {
	case float64:
		return math.IsNaN(v)
	case float32:
		return math.IsNaN(float64(v))
	default:
		return false
	}
}

func sequencify(value any) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	for k, v := range m {
		m[k] = sequencify(v)
	}
	if seq, ok := toSequence(m); ok {
		return seq
	}
	return m
}

type numericKey struct {
	n int
	s string
}

func toSequence(m map[string]any) ([]any, bool) {
	if len(m) == 0 {
		return nil, false
	}

	keys := make([]numericKey, 0, len(m))
	for k := range m {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, false
		}
		keys = append(keys, numericKey{n: n, s: k})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].n < keys[j].n })

	for i := 1; i < len(keys); i++ {
		if keys[i].n != keys[i-1].n+1 {
			return nil, false
		}
	}

	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k.s])
	}
	return out, true
}
