package callgrind

import (
	"bufio"
	"fmt"
	"io"

	"github.com/openprofiling/tracegrind/internal/function"
	"github.com/openprofiling/tracegrind/internal/profile"
)

const creator = "tracegrind"

// Write renders the profile in the callgrind text format understood by
// kcachegrind and friends. Output is deterministic: functions appear in
// first-seen order and repeated calls to the same callee collapse into one
// aggregated block per distinct callee, again in first-seen order.
func Write(p *profile.Profile, out io.Writer) error {
	w := bufio.NewWriter(out)
	fmt.Fprintln(w, "# callgrind format")
	fmt.Fprintln(w, "version: 1")
	fmt.Fprintln(w, "creator:", creator)
	fmt.Fprintln(w, "events: Instructions")
	fmt.Fprintln(w, "totals:", p.TotalCost())
	fmt.Fprintf(w, "fl=%s\n", p.Name())

	reg := p.Registry()
	err := reg.Each(func(rec *function.Record) error {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "fn=%s\n", rec.Name)
		fmt.Fprintf(w, "%d %d\n", rec.EntryPC, rec.SelfCost)
		for _, callee := range aggregateEdges(rec.Edges) {
			target, ok := reg.Lookup(callee.address)
			if !ok {
				return fmt.Errorf("callee 0x%x of %s not in registry", callee.address, rec.Name)
			}
			fmt.Fprintf(w, "cfn=%s\n", target.Name)
			fmt.Fprintf(w, "calls=%d %d\n", callee.calls, target.EntryPC)
			fmt.Fprintf(w, "%d %d\n", rec.EntryPC, callee.cost)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("cannot write report: %w", err)
	}
	return nil
}

type calleeStat struct {
	address uint64
	calls   uint64
	cost    uint64
}

// aggregateEdges collapses the caller's completed calls into one entry per
// distinct callee, keeping first-seen callee order.
func aggregateEdges(edges []function.Edge) []calleeStat {
	if len(edges) == 0 {
		return nil
	}
	index := make(map[uint64]int, len(edges))
	stats := make([]calleeStat, 0, len(edges))
	for _, e := range edges {
		i, ok := index[e.Callee]
		if !ok {
			i = len(stats)
			index[e.Callee] = i
			stats = append(stats, calleeStat{address: e.Callee})
		}
		stats[i].calls++
		stats[i].cost += e.Cost
	}
	return stats
}
