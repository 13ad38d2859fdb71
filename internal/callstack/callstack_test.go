package callstack

import (
	"errors"
	"testing"

	"github.com/openprofiling/tracegrind/internal/errorutil"
	"github.com/openprofiling/tracegrind/internal/function"
)

type fakeResolver struct{}

func (fakeResolver) Resolve(address, entryPC uint64) string {
	return "fn"
}

func TestAttributeCostReachesInnermostFrame(t *testing.T) {
	s := New()
	reg := function.NewRegistry()

	// One unit at the top of the trace.
	if err := s.AttributeCost(reg); err != nil {
		t.Fatal(err)
	}
	s.Push(0xAA, 100, reg, fakeResolver{})
	// Two units inside the callee.
	for i := 0; i < 2; i++ {
		if err := s.AttributeCost(reg); err != nil {
			t.Fatal(err)
		}
	}

	root := reg.Root()
	if root.SelfCost != 1 {
		t.Fatalf("root self cost: got %d, want 1", root.SelfCost)
	}
	rec, ok := reg.Lookup(0xAA)
	if !ok {
		t.Fatal("0xAA not registered")
	}
	if rec.SelfCost != 2 {
		t.Fatalf("callee self cost: got %d, want 2", rec.SelfCost)
	}
}

func TestPopFoldsCostIntoParent(t *testing.T) {
	s := New()
	reg := function.NewRegistry()

	s.Push(0xAA, 100, reg, fakeResolver{})
	s.Push(0xBB, 200, reg, fakeResolver{})
	// 0xBB executes three instructions.
	for i := 0; i < 3; i++ {
		if err := s.AttributeCost(reg); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Pop(reg); err != nil {
		t.Fatal(err)
	}
	// 0xAA executes one more of its own, then finishes.
	if err := s.AttributeCost(reg); err != nil {
		t.Fatal(err)
	}
	if err := s.Pop(reg); err != nil {
		t.Fatal(err)
	}

	recA, _ := reg.Lookup(0xAA)
	if len(recA.Edges) != 1 {
		t.Fatalf("edges under 0xAA: got %d, want 1", len(recA.Edges))
	}
	if recA.Edges[0].Cost != 3 {
		t.Fatalf("inclusive cost of 0xBB call: got %d, want 3", recA.Edges[0].Cost)
	}
	// The edge from the top of the trace carries 0xAA's own instruction
	// plus the folded cost of 0xBB.
	root := reg.Root()
	if len(root.Edges) != 1 {
		t.Fatalf("edges under root: got %d, want 1", len(root.Edges))
	}
	if root.Edges[0].Cost != 4 {
		t.Fatalf("inclusive cost of 0xAA call: got %d, want 4", root.Edges[0].Cost)
	}
	if got := s.TotalCost(); got != 4 {
		t.Fatalf("total cost: got %d, want 4", got)
	}
}

func TestBackToBackCallsReachDepthBeforeAnyBodyInstruction(t *testing.T) {
	s := New()
	reg := function.NewRegistry()

	s.Push(0xAA, 100, reg, fakeResolver{})
	s.Push(0xBB, 200, reg, fakeResolver{})
	if got := s.Depth(); got != 2 {
		t.Fatalf("depth: got %d, want 2", got)
	}

	// Instructions now land on 0xBB only.
	if err := s.AttributeCost(reg); err != nil {
		t.Fatal(err)
	}
	recB, _ := reg.Lookup(0xBB)
	recA, _ := reg.Lookup(0xAA)
	if recB.SelfCost != 1 || recA.SelfCost != 0 {
		t.Fatalf("self costs: 0xBB=%d 0xAA=%d, want 1 and 0", recB.SelfCost, recA.SelfCost)
	}

	// Popping closes 0xBB before 0xAA.
	if err := s.Pop(reg); err != nil {
		t.Fatal(err)
	}
	if len(recA.Edges) != 1 || recA.Edges[0].Callee != 0xBB {
		t.Fatalf("first completed edge should close 0xBB under 0xAA: %+v", recA.Edges)
	}
}

func TestPopOnEmptyStackIsDataIntegrityError(t *testing.T) {
	s := New()
	reg := function.NewRegistry()
	if err := s.Pop(reg); !errors.Is(err, errorutil.ErrDataIntegrity) {
		t.Fatalf("expected ErrDataIntegrity, got %v", err)
	}
}

func TestUnfinishedListsOpenFramesOutermostFirst(t *testing.T) {
	s := New()
	reg := function.NewRegistry()
	s.Push(0xAA, 100, reg, fakeResolver{})
	s.Push(0xBB, 200, reg, fakeResolver{})
	open := s.Unfinished()
	if len(open) != 2 || open[0] != 0xAA || open[1] != 0xBB {
		t.Fatalf("unexpected open frames: %#v", open)
	}
}
