package callgrind

import (
	"bytes"
	"strings"
	"testing"

	"github.com/openprofiling/tracegrind/internal/dumpfile"
	"github.com/openprofiling/tracegrind/internal/profile"
	"github.com/openprofiling/tracegrind/internal/testutil"
	"github.com/openprofiling/tracegrind/internal/trace"
)

func build(t *testing.T, lines ...string) *profile.Profile {
	t.Helper()
	src := strings.Join(lines, "\n") + "\n"
	p, err := profile.Build("test", strings.NewReader(src), trace.StandardClassifier{}, dumpfile.NewResolver())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestWriteAggregatesRepeatedCalls(t *testing.T) {
	// 0xAA calls 0xBB twice; the report must carry one aggregated callee
	// block with calls=2, not two blocks.
	p := build(t,
		"1: call 0xAA",
		"2: call 0xBB",
		"3: exit",
		"4: call 0xBB",
		"5: exit",
		"6: exit",
	)

	var buf bytes.Buffer
	if err := Write(p, &buf); err != nil {
		t.Fatal(err)
	}

	want := strings.Join([]string{
		"# callgrind format",
		"version: 1",
		"creator: tracegrind",
		"events: Instructions",
		"totals: 6",
		"fl=test",
		"",
		"fn=function_0 (0xaa)",
		"1 3",
		"cfn=function_1 (0xbb)",
		"calls=2 2",
		"1 2",
		"",
		"fn=function_1 (0xbb)",
		"2 2",
		"",
	}, "\n")
	if diff := testutil.Diff(buf.String(), want); diff != "" {
		t.Fatalf("Report mismatch: got - want +\n%s", diff)
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	p := build(t,
		"1: call 0xAA",
		"2: call 0xBB",
		"3: exit",
		"4: call 0xCC",
		"5: exit",
		"6: exit",
	)

	var first, second bytes.Buffer
	if err := Write(p, &first); err != nil {
		t.Fatal(err)
	}
	if err := Write(p, &second); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Fatal("serializing the same profile twice must be byte-identical")
	}
}

func TestWriteSkipsRootBlock(t *testing.T) {
	p := build(t,
		"1: call 0xAA",
		"2: exit",
	)
	var buf bytes.Buffer
	if err := Write(p, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "ROOT") {
		t.Fatalf("root sentinel leaked into the report:\n%s", out)
	}
	if !strings.Contains(out, "totals: 2") {
		t.Fatalf("grand total missing from header:\n%s", out)
	}
}

func TestWriteCalleesKeepFirstSeenOrder(t *testing.T) {
	p := build(t,
		"1: call 0xAA",
		"2: call 0xCC",
		"3: exit",
		"4: call 0xBB",
		"5: exit",
		"6: call 0xCC",
		"7: exit",
		"8: exit",
	)
	var buf bytes.Buffer
	if err := Write(p, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	ccIndex := strings.Index(out, "cfn=function_1 (0xcc)")
	bbIndex := strings.Index(out, "cfn=function_2 (0xbb)")
	if ccIndex == -1 || bbIndex == -1 || ccIndex > bbIndex {
		t.Fatalf("callee blocks out of first-seen order:\n%s", out)
	}
}
