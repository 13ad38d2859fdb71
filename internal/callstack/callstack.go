package callstack

import (
	"fmt"

	"github.com/openprofiling/tracegrind/internal/errorutil"
	"github.com/openprofiling/tracegrind/internal/function"
)

type (
	// Frame is one in-flight invocation on the active chain. Cost is a
	// dual-purpose counter: while the frame is the innermost one it counts
	// the instructions the routine executed itself, and on every child pop
	// the child's folded total is added on top. Once the frame itself is
	// popped the field therefore holds the invocation's inclusive cost.
	Frame struct {
		Address uint64
		Caller  uint64
		Cost    uint64
	}

	// Stack is the single active nesting chain, rooted at the reserved
	// sentinel frame. Frames are stored in a slice indexed by depth rather
	// than linked by ownership, so arbitrarily deep traces cannot blow the
	// goroutine stack on teardown.
	Stack struct {
		frames []Frame
	}
)

// New returns a stack holding only the root sentinel frame. The root is
// never popped; after the whole trace its cost field is the grand total.
func New() *Stack {
	return &Stack{frames: []Frame{{Address: function.RootAddress}}}
}

// Depth returns the number of in-flight calls, excluding the root.
func (s *Stack) Depth() int {
	return len(s.frames) - 1
}

func (s *Stack) innermost() *Frame {
	return &s.frames[len(s.frames)-1]
}

// AttributeCost charges one unit to the innermost frame and to its
// function's exclusive total. The charge is double-booked on purpose: the
// frame copy feeds this invocation's inclusive cost, the registry copy feeds
// the function's aggregate self time.
func (s *Stack) AttributeCost(reg *function.Registry) error {
	leaf := s.innermost()
	leaf.Cost++
	return reg.AddSelfCost(leaf.Address)
}

// Push attaches a new innermost frame for a call to address, registering the
// target function on first sight. entryPC marks the function's entry and is
// what unifies multiple load copies of one routine in the resolver.
func (s *Stack) Push(address, entryPC uint64, reg *function.Registry, resolver function.Resolver) {
	caller := s.innermost().Address
	s.frames = append(s.frames, Frame{Address: address, Caller: caller})
	reg.ResolveOrCreate(address, entryPC, resolver)
}

// Pop finalizes the innermost frame: its cost is folded into the parent and
// a completed call edge is recorded under the parent's function. Popping
// with no call in flight means the trace closed more frames than it opened.
func (s *Stack) Pop(reg *function.Registry) error {
	if s.Depth() == 0 {
		return fmt.Errorf("%w: exit with no call in flight", errorutil.ErrDataIntegrity)
	}
	leaf := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	parent := s.innermost()
	parent.Cost += leaf.Cost
	return reg.RecordEdge(parent.Address, leaf.Address, leaf.Cost)
}

// TotalCost returns every unit attributed so far. With all calls closed this
// is exactly the root frame's folded cost; frames still open at the end of
// the trace contribute their not-yet-folded share as well.
func (s *Stack) TotalCost() uint64 {
	var total uint64
	for _, f := range s.frames {
		total += f.Cost
	}
	return total
}

// Unfinished returns the addresses of frames still open, outermost first.
// A trace that ends mid-call is accepted; the caller may want to log these.
func (s *Stack) Unfinished() []uint64 {
	if s.Depth() == 0 {
		return nil
	}
	open := make([]uint64, 0, s.Depth())
	for _, f := range s.frames[1:] {
		open = append(open, f.Address)
	}
	return open
}
