package pathexpr

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/go-memprobe/memprobe/pkg/memtypes"
	"github.com/go-memprobe/memprobe/pkg/proc"
)

type fakeSeg struct {
	start uint64
	data  []byte
	perms string
}

// fakeMem implements proc.MemoryAccess over a handful of in-process byte
// segments.
type fakeMem struct {
	segs  []fakeSeg
	bound bool
}

func (m *fakeMem) ReadMemory(buf []byte, addr uint64) (int, error) {
	for _, seg := range m.segs {
		end := seg.start + uint64(len(seg.data))
		if addr >= seg.start && addr < end {
			n := copy(buf, seg.data[addr-seg.start:])
			return n, nil
		}
	}
	return 0, fmt.Errorf("unmapped address 0x%x", addr)
}

func (m *fakeMem) MemoryRegions() ([]proc.MemRegion, error) {
	regions := make([]proc.MemRegion, 0, len(m.segs))
	for _, seg := range m.segs {
		perms := seg.perms
		if perms == "" {
			perms = "rw-p"
		}
		regions = append(regions, proc.MemRegion{
			Start: seg.start,
			End:   seg.start + uint64(len(seg.data)),
			Perms: perms,
		})
	}
	return regions, nil
}

func (m *fakeMem) ProcessBound() bool { return m.bound }

func put64(seg *fakeSeg, addr, val uint64) {
	binary.LittleEndian.PutUint64(seg.data[addr-seg.start:], val)
}

// chainMem builds a pointer chain 0x1000 -> 0x2000 -> 0x3000 -> 0x4000 with
// the value 42 stored at the end.
func chainMem() *fakeMem {
	seg := fakeSeg{start: 0x1000, data: make([]byte, 0x4000)}
	put64(&seg, 0x1000, 0x2000)
	put64(&seg, 0x2000, 0x3000)
	put64(&seg, 0x3000, 0x4000)
	put64(&seg, 0x4000, 42)
	return &fakeMem{segs: []fakeSeg{seg}, bound: true}
}

func TestDerefChain(t *testing.T) {
	e := NewExecutor(chainMem())
	res := e.Execute(context.Background(), 0x1000, []ExprNode{
		&Deref{Type: memtypes.U64, Count: 3},
	})

	if !res.Success {
		t.Fatalf("execution failed: %s", res.Err)
	}
	if res.Address != 0x4000 {
		t.Fatalf("expected final address 0x4000, got 0x%x", res.Address)
	}
	if len(res.Trace) != 3 {
		t.Fatalf("expected 3 trace entries, got %d", len(res.Trace))
	}
	for i, step := range res.Trace {
		if step.Index != i {
			t.Errorf("trace entry %d has index %d", i, step.Index)
		}
		want := fmt.Sprintf("deref %d/3", i+1)
		if step.Label != want {
			t.Errorf("trace entry %d: expected label %q, got %q", i, want, step.Label)
		}
	}
	if res.Trace[0].Before != 0x1000 || res.Trace[0].After != 0x2000 {
		t.Errorf("first dereference recorded 0x%x -> 0x%x", res.Trace[0].Before, res.Trace[0].After)
	}
	if res.MemoryValues["u64"] != "42 (0x2a)" {
		t.Errorf("expected u64 value at final address, got %q", res.MemoryValues["u64"])
	}
	if len(res.Regions) != 1 || res.Regions[0].Start != 0x1000 {
		t.Errorf("unexpected region directory %v", res.Regions)
	}
}

func TestOffsetAndArrayAccess(t *testing.T) {
	e := NewExecutor(chainMem())
	res := e.Execute(context.Background(), 0x1000, []ExprNode{
		&Offset{Delta: 0x10},
		&ArrayAccess{Index: &Constant{Value: 3}, ElemSize: 4},
		&ArrayAccess{Index: &Constant{Value: 2}}, // default element size 8
		&Offset{Delta: -4},
	})

	if !res.Success {
		t.Fatalf("execution failed: %s", res.Err)
	}
	want := uint64(0x1000 + 0x10 + 3*4 + 2*8 - 4)
	if res.Address != want {
		t.Fatalf("expected final address 0x%x, got 0x%x", want, res.Address)
	}
	if len(res.Trace) != 4 {
		t.Fatalf("expected 4 trace entries, got %d", len(res.Trace))
	}
}

func TestVarDefAndRef(t *testing.T) {
	e := NewExecutor(chainMem())
	res := e.Execute(context.Background(), 0x1000, []ExprNode{
		&VarDef{Name: "p", Body: []ExprNode{&Offset{Delta: 0x10}}},
		&Offset{Delta: 0x8},
		&VarRef{Name: "p"},
	})

	if !res.Success {
		t.Fatalf("execution failed: %s", res.Err)
	}
	if res.Address != 0x1010 {
		t.Fatalf("expected cursor back at 0x1010, got 0x%x", res.Address)
	}
	last := res.Trace[len(res.Trace)-1]
	if last.Vars["p"] != 0x1010 {
		t.Errorf("expected p bound to 0x1010 in trace snapshot, got %#x", last.Vars["p"])
	}
}

func TestVarDefRebind(t *testing.T) {
	e := NewExecutor(chainMem())
	res := e.Execute(context.Background(), 0x1000, []ExprNode{
		&VarDef{Name: "p", Body: []ExprNode{&Offset{Delta: 8}}},
		&VarDef{Name: "p", Body: []ExprNode{&Offset{Delta: 8}}},
		&Null{},
		&VarRef{Name: "p"},
	})

	if !res.Success {
		t.Fatalf("execution failed: %s", res.Err)
	}
	if res.Address != 0x1010 {
		t.Fatalf("rebinding should overwrite, expected 0x1010, got 0x%x", res.Address)
	}
}

func TestUndefinedVariable(t *testing.T) {
	e := NewExecutor(chainMem())
	res := e.Execute(context.Background(), 0x1000, []ExprNode{
		&Offset{Delta: 8},
		&VarRef{Name: "q"},
	})

	if res.Success {
		t.Fatal("expected failure on undefined variable")
	}
	if !strings.Contains(res.Err, `undefined variable "q"`) {
		t.Errorf("unexpected error message %q", res.Err)
	}
	if len(res.Trace) != 1 {
		t.Errorf("expected the trace up to the failure to be retained, got %d entries", len(res.Trace))
	}
	if res.MemoryValues != nil {
		t.Error("failure result should not carry memory values")
	}
}

func TestUnderscoreUnbound(t *testing.T) {
	e := NewExecutor(chainMem())
	res := e.Execute(context.Background(), 0x1000, []ExprNode{
		&Offset{Delta: 8},
		&VarRef{Name: "_"},
	})

	if !res.Success {
		t.Fatalf("unbound _ must not fail: %s", res.Err)
	}
	if res.Address != 0x1008 {
		t.Fatalf("unbound _ must leave the cursor unchanged, got 0x%x", res.Address)
	}
	if len(res.Trace) != 2 {
		t.Fatalf("unbound _ still records a trace entry, got %d entries", len(res.Trace))
	}
}

func TestUnderscoreBound(t *testing.T) {
	e := NewExecutor(chainMem())
	res := e.Execute(context.Background(), 0x1000, []ExprNode{
		&VarDef{Name: "_", Body: []ExprNode{&Offset{Delta: 0x20}}},
		&Offset{Delta: 0x8},
		&VarRef{Name: "_"},
	})

	if !res.Success {
		t.Fatalf("execution failed: %s", res.Err)
	}
	if res.Address != 0x1020 {
		t.Fatalf("bound _ must jump like any other name, got 0x%x", res.Address)
	}
}

func TestStopHaltsEnclosingSequences(t *testing.T) {
	e := NewExecutor(chainMem())
	res := e.Execute(context.Background(), 0x1000, []ExprNode{
		&VarDef{Name: "x", Body: []ExprNode{
			&Offset{Delta: 8},
			&Stop{},
			&Offset{Delta: 100},
		}},
		&Offset{Delta: 4},
	})

	if !res.Success {
		t.Fatalf("stop is a success, not a failure: %s", res.Err)
	}
	if res.Address != 0x1008 {
		t.Fatalf("expected halt at 0x1008, got 0x%x", res.Address)
	}
	if len(res.Trace) != 2 {
		t.Fatalf("expected 2 trace entries (offset, stop), got %d", len(res.Trace))
	}
	if res.Trace[1].Label != "stop" {
		t.Errorf("expected final trace entry to be the stop, got %q", res.Trace[1].Label)
	}
	if _, ok := res.Trace[1].Vars["x"]; ok {
		t.Error("a binding whose body halted must not be recorded")
	}
}

func TestNullResetsCursor(t *testing.T) {
	e := NewExecutor(chainMem())
	res := e.Execute(context.Background(), 0x1000, []ExprNode{
		&Offset{Delta: 8},
		&Null{},
	})

	if !res.Success {
		t.Fatalf("execution failed: %s", res.Err)
	}
	if res.Address != 0 {
		t.Fatalf("expected cursor 0 after null, got 0x%x", res.Address)
	}
	if res.MemoryValues != nil || res.Bytes != nil {
		t.Error("no value snapshot should be taken at address 0")
	}
}

func TestSkipIsNoOp(t *testing.T) {
	e := NewExecutor(chainMem())
	res := e.Execute(context.Background(), 0x1000, []ExprNode{&Skip{}})

	if !res.Success || res.Address != 0x1000 {
		t.Fatalf("skip changed the outcome: success=%v address=0x%x", res.Success, res.Address)
	}
	if len(res.Trace) != 1 {
		t.Fatalf("skip still records a trace entry, got %d", len(res.Trace))
	}
}

func TestDerefReadFault(t *testing.T) {
	e := NewExecutor(chainMem())
	res := e.Execute(context.Background(), 0x9000, []ExprNode{
		&Deref{Type: memtypes.U64, Count: 1},
	})

	if res.Success {
		t.Fatal("expected read fault failure")
	}
	if !strings.Contains(res.Err, "read fault: 8 bytes at 0x9000") {
		t.Errorf("unexpected error message %q", res.Err)
	}
	if res.Address != 0x9000 {
		t.Errorf("failure must report the faulting cursor, got 0x%x", res.Address)
	}
}

func TestConditionalBranches(t *testing.T) {
	e := NewExecutor(chainMem())

	cond := &Conditional{
		Cond: &Compare{Left: &Current{}, Op: Eq, Right: &Constant{Value: 0x1000}},
		Then: []ExprNode{&Offset{Delta: 8}},
		Else: []ExprNode{&Offset{Delta: 16}},
	}

	res := e.Execute(context.Background(), 0x1000, []ExprNode{cond})
	if !res.Success || res.Address != 0x1008 {
		t.Fatalf("expected then branch to 0x1008, got success=%v address=0x%x", res.Success, res.Address)
	}
	if res.Trace[0].Label != "cond true" {
		t.Errorf("expected 'cond true' trace entry, got %q", res.Trace[0].Label)
	}

	res = e.Execute(context.Background(), 0x1004, []ExprNode{cond})
	if !res.Success || res.Address != 0x1014 {
		t.Fatalf("expected else branch to 0x1014, got success=%v address=0x%x", res.Success, res.Address)
	}
	if res.Trace[0].Label != "cond false" {
		t.Errorf("expected 'cond false' trace entry, got %q", res.Trace[0].Label)
	}
}

func TestLogicalShortCircuit(t *testing.T) {
	e := NewExecutor(chainMem())

	// The right side references an unbound variable; it must never be
	// evaluated.
	badRight := &Compare{Left: &Variable{Name: "missing"}, Op: Eq, Right: &Constant{Value: 0}}

	res := e.Execute(context.Background(), 0x1000, []ExprNode{
		&Conditional{
			Cond: &Logical{
				Left:  &Compare{Left: &Constant{Value: 1}, Op: Eq, Right: &Constant{Value: 2}},
				Op:    LogicAnd,
				Right: badRight,
			},
			Then: []ExprNode{&Offset{Delta: 8}},
			Else: []ExprNode{&Offset{Delta: 16}},
		},
	})
	if !res.Success || res.Address != 0x1010 {
		t.Fatalf("false && X must short-circuit to the else branch, got success=%v address=0x%x", res.Success, res.Address)
	}

	res = e.Execute(context.Background(), 0x1000, []ExprNode{
		&Conditional{
			Cond: &Logical{
				Left:  &Compare{Left: &Constant{Value: 1}, Op: Eq, Right: &Constant{Value: 1}},
				Op:    LogicOr,
				Right: badRight,
			},
			Then: []ExprNode{&Offset{Delta: 8}},
			Else: []ExprNode{&Offset{Delta: 16}},
		},
	})
	if !res.Success || res.Address != 0x1008 {
		t.Fatalf("true || X must short-circuit to the then branch, got success=%v address=0x%x", res.Success, res.Address)
	}
}

func TestBitwiseAndNotConditions(t *testing.T) {
	e := NewExecutor(chainMem())
	res := e.Execute(context.Background(), 0x1001, []ExprNode{
		&Conditional{
			Cond: &Not{Cond: &Bitwise{Left: &Current{}, Op: BitAnd, Right: &Constant{Value: 1}}},
			Then: []ExprNode{&Offset{Delta: 8}},
			Else: []ExprNode{&Offset{Delta: -1}},
		},
	})
	if !res.Success || res.Address != 0x1000 {
		t.Fatalf("odd cursor must take the else branch, got success=%v address=0x%x", res.Success, res.Address)
	}
}

func TestStopInsideBranch(t *testing.T) {
	e := NewExecutor(chainMem())
	res := e.Execute(context.Background(), 0x1000, []ExprNode{
		&Conditional{
			Cond: &Compare{Left: &Constant{Value: 1}, Op: Eq, Right: &Constant{Value: 1}},
			Then: []ExprNode{&Offset{Delta: 8}, &Stop{}},
		},
		&Offset{Delta: 100},
	})

	if !res.Success {
		t.Fatalf("execution failed: %s", res.Err)
	}
	if res.Address != 0x1008 {
		t.Fatalf("stop inside a branch must halt the outer sequence, got 0x%x", res.Address)
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExecutor(chainMem())
	res := e.Execute(ctx, 0x1000, []ExprNode{&Offset{Delta: 8}})
	if res.Success {
		t.Fatal("expected failure with a cancelled context")
	}
	if !strings.Contains(res.Err, context.Canceled.Error()) {
		t.Errorf("unexpected error message %q", res.Err)
	}
}
