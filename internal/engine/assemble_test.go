package engine

import (
	"testing"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/model"
)

func TestAssembler_ContainmentWinsOverDuplicate(t *testing.T) {
	asm := newAssembler()
	asm.add(model.EvaluatedFeature{ID: "7", DistanceMiles: 3.2, IsContaining: false})
	asm.add(model.EvaluatedFeature{ID: "7", DistanceMiles: 0, IsContaining: true})
	asm.add(model.EvaluatedFeature{ID: "8", DistanceMiles: 1.1, IsContaining: false})
	// a later non-containing duplicate must not demote the entry
	asm.add(model.EvaluatedFeature{ID: "7", DistanceMiles: 5, IsContaining: false})

	out := asm.finalize()
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}
	if out[0].ID != "7" || !out[0].IsContaining || out[0].DistanceMiles != 0 {
		t.Fatalf("first entry = %+v, want containing id 7 at 0", out[0])
	}
}

func TestAssembler_HasContaining(t *testing.T) {
	asm := newAssembler()
	asm.add(model.EvaluatedFeature{ID: "a", IsContaining: true})
	asm.add(model.EvaluatedFeature{ID: "b", DistanceMiles: 2})

	if !asm.hasContaining("a") {
		t.Fatalf("a must be containing")
	}
	if asm.hasContaining("b") || asm.hasContaining("missing") {
		t.Fatalf("b and missing must not be containing")
	}
}

func TestAssembler_FinalizeOrdering(t *testing.T) {
	asm := newAssembler()
	asm.add(model.EvaluatedFeature{ID: "far", DistanceMiles: 9})
	asm.add(model.EvaluatedFeature{ID: "in2", IsContaining: true})
	asm.add(model.EvaluatedFeature{ID: "near", DistanceMiles: 1})
	asm.add(model.EvaluatedFeature{ID: "in1", IsContaining: true})
	asm.add(model.EvaluatedFeature{ID: "tie-a", DistanceMiles: 4})
	asm.add(model.EvaluatedFeature{ID: "tie-b", DistanceMiles: 4})

	out := asm.finalize()
	want := []string{"in2", "in1", "near", "tie-a", "tie-b", "far"}
	if len(out) != len(want) {
		t.Fatalf("got %d entries, want %d", len(out), len(want))
	}
	for i, id := range want {
		if out[i].ID != id {
			t.Fatalf("position %d = %s, want %s (full: %+v)", i, out[i].ID, id, out)
		}
	}
}
