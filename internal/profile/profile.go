package profile

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/openprofiling/tracegrind/internal/callstack"
	"github.com/openprofiling/tracegrind/internal/errorutil"
	"github.com/openprofiling/tracegrind/internal/fileutil"
	"github.com/openprofiling/tracegrind/internal/function"
	"github.com/openprofiling/tracegrind/internal/trace"
)

// Profile is the finished result of one trace conversion. It is immutable
// once Build returns and is meant to be consumed exactly once by a report
// serializer.
type Profile struct {
	name       string
	registry   *function.Registry
	totalCost  uint64
	unfinished []uint64
}

// Name returns the trace's display name, usually the path it was read from.
func (p *Profile) Name() string {
	return p.name
}

// Registry returns the per-function cost aggregation.
func (p *Profile) Registry() *function.Registry {
	return p.registry
}

// TotalCost returns the number of cost units attributed over the whole
// trace, i.e. the count of its instruction lines.
func (p *Profile) TotalCost() uint64 {
	return p.totalCost
}

// Unfinished returns the call targets still open when the trace ended,
// outermost first. An incomplete trace is not an error.
func (p *Profile) Unfinished() []uint64 {
	return p.unfinished
}

// Build drives the classifier over the trace line by line, reconstructing
// the nesting structure on a call stack and folding completed calls into the
// function registry. The name is only used for display in the report.
func Build(name string, src io.Reader, classifier trace.Classifier, resolver function.Resolver) (*Profile, error) {
	b := builder{
		scanner:    bufio.NewScanner(src),
		classifier: classifier,
		resolver:   resolver,
		stack:      callstack.New(),
		registry:   function.NewRegistry(),
	}
	b.scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if err := b.run(); err != nil {
		return nil, err
	}
	if open := b.stack.Unfinished(); len(open) > 0 {
		log.Debug().Int("open_frames", len(open)).Msg("trace ended with calls still in flight")
	}
	return &Profile{
		name:       name,
		registry:   b.registry,
		totalCost:  b.stack.TotalCost(),
		unfinished: b.stack.Unfinished(),
	}, nil
}

// BuildFile checks the trace's structural header, then parses it with the
// standard line grammar and the given resolver.
func BuildFile(tracePath string, resolver function.Resolver) (*Profile, error) {
	header, err := fileutil.Open(tracePath)
	if err != nil {
		return nil, err
	}
	ok, err := trace.ContainsStandardHeader(header)
	header.Close()
	if err != nil {
		return nil, fmt.Errorf("cannot read %q: %w", tracePath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", errorutil.ErrTraceFormat, tracePath)
	}

	src, err := fileutil.Open(tracePath)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return Build(tracePath, src, trace.StandardClassifier{}, resolver)
}

type builder struct {
	scanner    *bufio.Scanner
	classifier trace.Classifier
	resolver   function.Resolver
	stack      *callstack.Stack
	registry   *function.Registry
	lineNumber int
}

// next returns the next classified instruction, absorbing skip lines. ok is
// false once the source is exhausted.
func (b *builder) next() (trace.Instruction, bool, error) {
	for b.scanner.Scan() {
		b.lineNumber++
		ix, err := b.classifier.Classify(b.scanner.Text(), b.lineNumber)
		if errors.Is(err, trace.ErrSkip) {
			continue
		}
		if err != nil {
			return trace.Instruction{}, false, err
		}
		return ix, true, nil
	}
	return trace.Instruction{}, false, b.scanner.Err()
}

func (b *builder) run() error {
	for {
		ix, ok, err := b.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		// Back-to-back calls arrive with no body instruction in between:
		//
		//	604: call 0xcb3fc071
		//	588: call 0x8e0001f9
		//
		// so after each push the callee's first line is read directly and,
		// if it is again a call, pushing continues. The first non-call line
		// falls through to the normal handling below and is processed once.
		for ix.Kind == trace.KindCall {
			// The call instruction itself costs one unit, charged to the
			// caller before the new frame exists.
			if err := b.stack.AttributeCost(b.registry); err != nil {
				return err
			}
			b.stack.Push(ix.Target, ix.ProgramCounter, b.registry, b.resolver)
			next, ok, err := b.next()
			if err != nil {
				return err
			}
			if !ok {
				// Trailing calls with no further instructions stay open.
				return nil
			}
			ix = next
		}

		if err := b.stack.AttributeCost(b.registry); err != nil {
			return err
		}
		if ix.Kind == trace.KindExit {
			if err := b.stack.Pop(b.registry); err != nil {
				return err
			}
		}
	}
}
