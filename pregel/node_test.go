package pregel

import "testing"

func TestFanout_ConcreteSliceTypeDispatchesOnePerElement(t *testing.T) {
	writer := Fanout("out")
	writes := writer.Apply([]int{1, 2, 3})
	got := writes["out"]
	if len(got) != 3 {
		t.Fatalf("expected 3 writes, got %d: %v", len(got), got)
	}
	for i, want := range []int{1, 2, 3} {
		if got[i] != want {
			t.Fatalf("write %d: expected %v, got %v", i, want, got[i])
		}
	}
}

func TestFanout_NonSliceFallsBackToSingleWrite(t *testing.T) {
	writer := Fanout("out")
	writes := writer.Apply(42)
	got := writes["out"]
	if len(got) != 1 || got[0] != 42 {
		t.Fatalf("expected a single write [42], got %v", got)
	}
}

func TestFanout_EmptySliceProducesNoWrites(t *testing.T) {
	writer := Fanout("out")
	writes := writer.Apply([]string{})
	if len(writes["out"]) != 0 {
		t.Fatalf("expected no writes for an empty slice, got %v", writes["out"])
	}
}
