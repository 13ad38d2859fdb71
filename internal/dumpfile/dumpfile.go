package dumpfile

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openprofiling/tracegrind/internal/errorutil"
	"github.com/openprofiling/tracegrind/internal/fileutil"
)

const (
	elfHeader    = "ELF Header"
	disasmHeader = "Disassembly of section .text"

	unresolvedPrefix = "function_"
)

var (
	// e.g. "00000000000001b8 <entrypoint>:"
	funcHeaderPattern = regexp.MustCompile(`[0-9a-fA-F]+\s+<(.+)>`)
	// first instruction of a function: pc followed by eight raw bytes
	funcInstructionPattern = regexp.MustCompile(`^\s+(\d+)(\s+[0-9a-fA-F]{2}){8}\s+.+`)
)

// Resolver maps call target addresses to display names collected from an
// objdump-style disassembly listing. Functions are indexed by the program
// counter of their first instruction, so multiple load copies of one routine
// unify to a single name. Addresses absent from the listing get a synthetic
// name derived from a per-run counter.
type Resolver struct {
	fromDump   bool
	names      []string
	byAddress  map[uint64]int
	byEntryPC  map[uint64]int
	unresolved int
}

func NewResolver() *Resolver {
	return &Resolver{
		byAddress: make(map[uint64]int),
		byEntryPC: make(map[uint64]int),
	}
}

// Read builds a resolver from a disassembly listing. An empty path yields a
// trivial resolver that synthesizes every name.
func Read(path string) (*Resolver, error) {
	if path == "" {
		return NewResolver(), nil
	}
	f, err := fileutil.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	resolver := NewResolver()
	if err := resolver.parse(f); err != nil {
		return nil, fmt.Errorf("reading dump %q: %w", path, err)
	}
	resolver.fromDump = true
	return resolver, nil
}

// FromDump reports whether the resolver carries names from a real listing
// or synthesizes everything.
func (r *Resolver) FromDump() bool {
	return r.fromDump
}

// Resolve returns the display name for address, creating a synthetic
// `function_<n> (0x<address>)` entry on first sight of an address whose
// entry pc is not in the listing. Within one run the same address always
// yields the same name.
func (r *Resolver) Resolve(address, entryPC uint64) string {
	if idx, ok := r.byAddress[address]; ok {
		return r.names[idx]
	}
	idx, ok := r.byEntryPC[entryPC]
	if !ok {
		// There can be multiple copies of one function with different
		// addresses; only a genuinely unknown entry pc gets a fresh name.
		name := fmt.Sprintf("%s%d (0x%x)", unresolvedPrefix, r.unresolved, address)
		r.unresolved++
		idx = r.index(name, entryPC)
	}
	r.byAddress[address] = idx
	return r.names[idx]
}

// ResolveByEntryPC returns the name of the function whose first instruction
// sits at pc, if the listing knows one.
func (r *Resolver) ResolveByEntryPC(pc uint64) (string, bool) {
	idx, ok := r.byEntryPC[pc]
	if !ok {
		return "", false
	}
	return r.names[idx], true
}

func (r *Resolver) index(name string, entryPC uint64) int {
	idx := len(r.names)
	r.names = append(r.names, name)
	r.byEntryPC[entryPC] = idx
	return idx
}

func (r *Resolver) parse(src io.Reader) error {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	// Skip ahead to the disassembly section.
	var wasHeader, wasDisasm bool
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, elfHeader) {
			wasHeader = true
			continue
		}
		if strings.HasPrefix(line, disasmHeader) {
			if !wasHeader {
				return errorutil.ErrDumpFormat
			}
			wasDisasm = true
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if !wasDisasm {
		return fmt.Errorf("%w: no disassembly section", errorutil.ErrDumpFormat)
	}

	// Index each function header by the pc of its first instruction.
	lineNumber := 0
	for scanner.Scan() {
		line := scanner.Text()
		lineNumber++
		m := funcHeaderPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[1]
		if strings.HasPrefix(name, "LBB") {
			// Compiler-local branch labels, not functions.
			continue
		}
		if !scanner.Scan() {
			break
		}
		line = scanner.Text()
		lineNumber++
		im := funcInstructionPattern.FindStringSubmatch(line)
		if im == nil {
			return fmt.Errorf("cannot parse dump line %d: %q", lineNumber, strings.TrimSpace(line))
		}
		pc, err := strconv.ParseUint(im[1], 10, 64)
		if err != nil {
			return fmt.Errorf("cannot parse dump line %d: %q", lineNumber, strings.TrimSpace(line))
		}
		if _, exists := r.byEntryPC[pc]; !exists {
			r.index(name, pc)
		} else {
			log.Debug().Str("function", name).Uint64("pc", pc).Msg("duplicate entry pc in dump")
		}
	}
	return scanner.Err()
}
