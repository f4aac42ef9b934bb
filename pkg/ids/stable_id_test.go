package ids

import "testing"

func TestStableID_DeterministicAcrossKeyOrder(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": map[string]any{"y": 1, "x": 2}}
	b := map[string]any{"c": map[string]any{"x": 2, "y": 1}, "a": 2, "b": 1}

	idA, err := StableID(a, "")
	if err != nil {
		t.Fatalf("StableID(a): %v", err)
	}
	idB, err := StableID(b, "")
	if err != nil {
		t.Fatalf("StableID(b): %v", err)
	}
	if idA != idB {
		t.Fatalf("expected identical ids for reordered keys, got %s != %s", idA, idB)
	}
}

func TestStableID_DiffersOnContent(t *testing.T) {
	idA := MustStableID(map[string]any{"x": 1}, "sq")
	idB := MustStableID(map[string]any{"x": 2}, "sq")
	if idA == idB {
		t.Fatal("expected different ids for different content")
	}
}

func TestStableID_PrefixApplied(t *testing.T) {
	id := MustStableID(map[string]any{"x": 1}, "dag")
	if len(id) < 5 || id[:4] != "dag_" {
		t.Fatalf("expected dag_ prefix, got %s", id)
	}
}

func TestStableID_ArrayOrderSignificant(t *testing.T) {
	idA := MustStableID([]int{1, 2, 3}, "")
	idB := MustStableID([]int{3, 2, 1}, "")
	if idA == idB {
		t.Fatal("array element order should affect identity")
	}
}

func TestStableID_IdempotentOnCanonicalization(t *testing.T) {
	payload := map[string]any{"nested": map[string]any{"b": 2, "a": 1}, "list": []any{1, 2}}
	first := MustStableID(payload, "")
	second := MustStableID(payload, "")
	if first != second {
		t.Fatal("stable id must be idempotent across repeated calls")
	}
}
