package function

import (
	"fmt"

	"github.com/openprofiling/tracegrind/internal/errorutil"
)

// RootAddress is the reserved sentinel address of the trace's top frame. It
// is never registered and never passed to a Resolver.
const RootAddress uint64 = ^uint64(0)

type (
	// Resolver maps a call target address and the program counter of the
	// routine's first instruction to a stable display name. Two addresses
	// sharing the same entry pc are copies of one logical function and
	// resolve to the same name.
	Resolver interface {
		Resolve(address, entryPC uint64) string
	}

	// Edge is one completed call recorded under the caller, in completion
	// order. Repeated calls to the same callee are kept as separate edges
	// until the serializer aggregates them.
	Edge struct {
		Callee uint64
		Cost   uint64
	}

	// Record aggregates one function's cost across all of its invocations.
	Record struct {
		Address  uint64
		Name     string
		EntryPC  uint64
		SelfCost uint64
		Edges    []Edge
	}

	// Registry holds one Record per distinct call target address, in
	// first-seen order, plus the reserved root record that swallows cost
	// and edges attributed to the top of the trace.
	Registry struct {
		records map[uint64]*Record
		order   []uint64
	}
)

func NewRegistry() *Registry {
	r := &Registry{records: make(map[uint64]*Record)}
	r.records[RootAddress] = &Record{Address: RootAddress, Name: "ROOT"}
	return r
}

// Root returns the reserved record holding the trace's top-level self cost
// and the calls made directly from the top of the trace. It is never emitted
// as a function block.
func (r *Registry) Root() *Record {
	return r.records[RootAddress]
}

// ResolveOrCreate returns the record for address, creating it through the
// resolver on first sight. It is idempotent for repeat addresses and must
// never be called with the root sentinel.
func (r *Registry) ResolveOrCreate(address, entryPC uint64, resolver Resolver) *Record {
	if address == RootAddress {
		panic("function: root sentinel cannot be registered")
	}
	if rec, ok := r.records[address]; ok {
		return rec
	}
	rec := &Record{
		Address: address,
		Name:    resolver.Resolve(address, entryPC),
		EntryPC: entryPC,
	}
	r.records[address] = rec
	r.order = append(r.order, address)
	return rec
}

// Lookup returns the record for address if it has been registered.
func (r *Registry) Lookup(address uint64) (*Record, bool) {
	rec, ok := r.records[address]
	return rec, ok
}

// AddSelfCost attributes one unit of cost to the function's exclusive total.
// The address must already be registered; a miss means the call/exit pairing
// is broken.
func (r *Registry) AddSelfCost(address uint64) error {
	rec, ok := r.records[address]
	if !ok {
		return fmt.Errorf("%w: cost attributed to unregistered address 0x%x", errorutil.ErrDataIntegrity, address)
	}
	rec.SelfCost++
	return nil
}

// RecordEdge appends a completed call under the caller. Calls made directly
// from the top of the trace land on the root record, which the serializer
// skips.
func (r *Registry) RecordEdge(caller, callee, cost uint64) error {
	rec, ok := r.records[caller]
	if !ok {
		return fmt.Errorf("%w: caller 0x%x not found in function registry", errorutil.ErrDataIntegrity, caller)
	}
	rec.Edges = append(rec.Edges, Edge{Callee: callee, Cost: cost})
	return nil
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	return len(r.order)
}

// Each calls fn for every record in first-seen order.
func (r *Registry) Each(fn func(*Record) error) error {
	for _, address := range r.order {
		if err := fn(r.records[address]); err != nil {
			return err
		}
	}
	return nil
}
