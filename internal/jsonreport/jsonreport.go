package jsonreport

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/openprofiling/tracegrind/internal/function"
	"github.com/openprofiling/tracegrind/internal/profile"
)

const (
	FormatVersion = "1"

	ValueUnitInstructions ValueUnit = "instructions"
)

type (
	ValueUnit string

	Callee struct {
		Name      string `json:"name"`
		EntryPC   uint64 `json:"entry_pc"`
		Calls     uint64 `json:"calls"`
		TotalCost uint64 `json:"total_cost"`
	}

	Function struct {
		Name     string   `json:"name"`
		Address  string   `json:"address"`
		EntryPC  uint64   `json:"entry_pc"`
		SelfCost uint64   `json:"self_cost"`
		Callees  []Callee `json:"callees,omitempty"`
	}

	Output struct {
		ProfileID  string     `json:"profileID"`
		Version    string     `json:"version"`
		TraceName  string     `json:"trace_name"`
		Unit       ValueUnit  `json:"unit"`
		TotalCost  uint64     `json:"total_cost"`
		Functions  []Function `json:"functions"`
		Unfinished []string   `json:"unfinished,omitempty"`
	}
)

// Build flattens the profile into the JSON report model, with the same
// per-callee aggregation the callgrind writer applies.
func Build(p *profile.Profile) (Output, error) {
	o := Output{
		ProfileID: uuid.New().String(),
		Version:   FormatVersion,
		TraceName: p.Name(),
		Unit:      ValueUnitInstructions,
		TotalCost: p.TotalCost(),
	}
	reg := p.Registry()
	err := reg.Each(func(rec *function.Record) error {
		f := Function{
			Name:     rec.Name,
			Address:  fmt.Sprintf("0x%x", rec.Address),
			EntryPC:  rec.EntryPC,
			SelfCost: rec.SelfCost,
		}
		seen := make(map[uint64]int)
		for _, e := range rec.Edges {
			i, ok := seen[e.Callee]
			if !ok {
				target, found := reg.Lookup(e.Callee)
				if !found {
					return fmt.Errorf("callee 0x%x of %s not in registry", e.Callee, rec.Name)
				}
				i = len(f.Callees)
				seen[e.Callee] = i
				f.Callees = append(f.Callees, Callee{Name: target.Name, EntryPC: target.EntryPC})
			}
			f.Callees[i].Calls++
			f.Callees[i].TotalCost += e.Cost
		}
		o.Functions = append(o.Functions, f)
		return nil
	})
	if err != nil {
		return Output{}, err
	}
	for _, address := range p.Unfinished() {
		o.Unfinished = append(o.Unfinished, fmt.Sprintf("0x%x", address))
	}
	return o, nil
}

// Write encodes the profile as JSON.
func Write(p *profile.Profile, out io.Writer) error {
	o, err := Build(p)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(out).Encode(o); err != nil {
		return fmt.Errorf("cannot write report: %w", err)
	}
	return nil
}
