package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const (
	KindCall Kind = iota
	KindExit
	KindOther
)

// StandardHeader is the banner the reference tracer prints before the first
// instruction line. A trace that does not start with it is rejected before
// parsing begins.
const StandardHeader = "[TRACE]"

// ErrSkip marks a line that carries no instruction (blank lines, comments,
// tracer chatter). It is absorbed by the parse loop, never surfaced.
var ErrSkip = errors.New("non-instruction line skipped")

type (
	Kind int

	// Instruction is the classified form of one trace line. It lives for one
	// iteration of the parse loop and is never retained.
	Instruction struct {
		Kind           Kind
		ProgramCounter uint64
		Target         uint64
		Text           string
	}

	// Classifier turns one raw trace line into an Instruction, or returns
	// ErrSkip for lines that carry no instruction. The exact line grammar
	// belongs to the tracer, not to the converter, so callers may plug in
	// their own implementation.
	Classifier interface {
		Classify(line string, lineNumber int) (Instruction, error)
	}

	// ParseError reports a line the classifier could not make sense of.
	ParseError struct {
		Line       string
		LineNumber int
	}
)

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse trace line %d: %q", e.LineNumber, strings.TrimSpace(e.Line))
}

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindExit:
		return "exit"
	default:
		return "other"
	}
}

// instructionPattern matches the reference tracer's instruction lines:
// an optional ordinal, an optional register window in brackets, then the
// program counter, a colon and the instruction text, e.g.
//
//	12 [0000000000000000] 604: call 0xcb3fc071
var instructionPattern = regexp.MustCompile(`^\s*(?:\d+\s+)?(?:\[[^\]]*\]\s+)?(\d+):\s+(\S+)(?:\s+(.*?))?\s*$`)

// StandardClassifier implements the reference tracer's line grammar.
type StandardClassifier struct{}

func (StandardClassifier) Classify(line string, lineNumber int) (Instruction, error) {
	trimmed := strings.TrimSpace(line)
	// Blank lines, comments, the banner and tracer chatter without a
	// "pc:" marker are not instructions.
	if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, StandardHeader) {
		return Instruction{}, ErrSkip
	}
	m := instructionPattern.FindStringSubmatch(line)
	if m == nil {
		if !strings.Contains(trimmed, ":") {
			return Instruction{}, ErrSkip
		}
		return Instruction{}, &ParseError{Line: line, LineNumber: lineNumber}
	}
	pc, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return Instruction{}, &ParseError{Line: line, LineNumber: lineNumber}
	}
	ix := Instruction{ProgramCounter: pc, Text: trimmed}
	switch m[2] {
	case "call":
		target, err := parseAddress(m[3])
		if err != nil {
			return Instruction{}, &ParseError{Line: line, LineNumber: lineNumber}
		}
		ix.Kind = KindCall
		ix.Target = target
	case "exit":
		ix.Kind = KindExit
	default:
		ix.Kind = KindOther
	}
	return ix, nil
}

func parseAddress(operands string) (uint64, error) {
	fields := strings.Fields(operands)
	if len(fields) == 0 {
		return 0, errors.New("call instruction carries no target address")
	}
	return strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 64)
}

// ContainsStandardHeader reports whether the trace starts with the tracer's
// banner line. It consumes at most one line of the reader.
func ContainsStandardHeader(r io.Reader) (bool, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	return strings.Contains(line, StandardHeader), nil
}
