package pathexpr

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-memprobe/memprobe/pkg/logflags"
	"github.com/go-memprobe/memprobe/pkg/memtypes"
	"github.com/go-memprobe/memprobe/pkg/proc"
	"github.com/sirupsen/logrus"
)

// readFailureMarker is recorded in MemoryValues for a data type whose
// decode at the final address faulted.
const readFailureMarker = "<read fault>"

// regionQueryAttempts is the retry budget for the final region directory
// fetch.
const regionQueryAttempts = 3

// ExecutionStep is one immutable trace record. Indexes are contiguous
// starting at 0 and the trace is append-only during an execution.
type ExecutionStep struct {
	Index  int
	Label  string
	Before uint64
	After  uint64
	Op     string
	// Vars is a snapshot of the variable environment after the step.
	Vars map[string]int64
}

// ExecutionResult is the outcome of one pointer-path run. Bytes and
// MemoryValues are populated only when Success is true and Address is
// nonzero.
type ExecutionResult struct {
	Success bool
	Address uint64
	Trace   []ExecutionStep
	// Bytes is an 8-byte raw snapshot at Address, nil if the read faulted.
	Bytes []byte
	// MemoryValues maps each data type code to the value at Address
	// rendered as "<decimal> (0x<hex>)", or to a failure marker if that
	// type's read faulted.
	MemoryValues map[string]string
	// Regions is the region directory sorted by start address. Empty on
	// failure.
	Regions []proc.MemRegion
	Err     string
}

// Executor resolves pointer paths against a memory access port.
//
// Execute never returns an error: every failure is captured into the
// result. An executor holds no per-run state and can be reused, but a
// single run is strictly sequential.
type Executor struct {
	mem proc.MemoryAccess
	log *logrus.Entry
}

// NewExecutor returns an Executor reading through mem.
func NewExecutor(mem proc.MemoryAccess) *Executor {
	return &Executor{mem: mem, log: logflags.PathExprLogger()}
}

// execState is the mutable state of one execution. It is owned exclusively
// by the evaluation call chain; halt propagation works because every
// sequence at every nesting level checks halted before its next child.
type execState struct {
	cursor uint64
	vars   map[string]int64
	trace  []ExecutionStep
	halted bool
}

func (st *execState) step(label string, before uint64, op string) {
	vars := make(map[string]int64, len(st.vars))
	for k, v := range st.vars {
		vars[k] = v
	}
	st.trace = append(st.trace, ExecutionStep{
		Index:  len(st.trace),
		Label:  label,
		Before: before,
		After:  st.cursor,
		Op:     op,
		Vars:   vars,
	})
}

// Execute evaluates nodes starting with the cursor at base.
func (e *Executor) Execute(ctx context.Context, base uint64, nodes []ExprNode) ExecutionResult {
	st := &execState{cursor: base, vars: make(map[string]int64)}
	e.log.Debugf("execute: base=0x%x nodes=%d", base, len(nodes))

	if err := e.evalSeq(ctx, st, nodes); err != nil {
		e.log.Debugf("execute failed after %d steps: %v", len(st.trace), err)
		return ExecutionResult{
			Success: false,
			Address: st.cursor,
			Trace:   st.trace,
			Err:     err.Error(),
		}
	}

	res := ExecutionResult{
		Success: true,
		Address: st.cursor,
		Trace:   st.trace,
	}

	if st.cursor != 0 {
		buf := make([]byte, 8)
		if n, err := e.mem.ReadMemory(buf, st.cursor); err == nil && n == len(buf) {
			res.Bytes = buf
		}
		res.MemoryValues = make(map[string]string, len(memtypes.All))
		for _, dt := range memtypes.All {
			res.MemoryValues[dt.Code()] = e.decodeAt(st.cursor, dt)
		}
	}

	if regions, err := proc.QueryRegionsRetry(e.mem, regionQueryAttempts); err == nil {
		sort.Slice(regions, func(i, j int) bool { return regions[i].Start < regions[j].Start })
		res.Regions = regions
	}

	e.log.Debugf("execute: resolved 0x%x in %d steps", res.Address, len(res.Trace))
	return res
}

// decodeAt reads and renders one data type at addr. A fault affects only
// this type.
func (e *Executor) decodeAt(addr uint64, dt memtypes.DataType) string {
	buf := make([]byte, dt.Size())
	n, err := e.mem.ReadMemory(buf, addr)
	if err != nil || n < len(buf) {
		return readFailureMarker
	}
	v, err := dt.DecodeInt(buf)
	if err != nil {
		return readFailureMarker
	}
	return dt.Format(v)
}

func (e *Executor) evalSeq(ctx context.Context, st *execState, nodes []ExprNode) error {
	for _, node := range nodes {
		if st.halted {
			return nil
		}
		if err := e.evalNode(ctx, st, node); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) evalNode(ctx context.Context, st *execState, node ExprNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch n := node.(type) {
	case *Offset:
		before := st.cursor
		st.cursor += uint64(n.Delta)
		st.step("offset", before, fmt.Sprintf("cursor %+d", n.Delta))

	case *Deref:
		count := n.Count
		if count < 1 {
			count = 1
		}
		for i := 0; i < count; i++ {
			before := st.cursor
			buf := make([]byte, n.Type.Size())
			nread, err := e.mem.ReadMemory(buf, st.cursor)
			if err != nil || nread < len(buf) {
				return &ReadFaultError{Addr: st.cursor, Size: len(buf)}
			}
			v, err := n.Type.DecodeInt(buf)
			if err != nil {
				return err
			}
			st.cursor = uint64(v)
			st.step(fmt.Sprintf("deref %d/%d", i+1, count), before,
				fmt.Sprintf("cursor = [0x%x].%s", before, n.Type.Code()))
		}

	case *VarDef:
		if err := e.evalSeq(ctx, st, n.Body); err != nil {
			return err
		}
		if st.halted {
			return nil
		}
		st.vars[n.Name] = int64(st.cursor)
		st.step("var "+n.Name, st.cursor, fmt.Sprintf("%s = 0x%x", n.Name, st.cursor))

	case *VarRef:
		before := st.cursor
		if n.Name == "_" {
			// A bound "_" jumps like any other name; an unbound "_"
			// refers to the current position and moves nothing.
			if v, ok := st.vars["_"]; ok {
				st.cursor = uint64(v)
				st.step("ref _", before, fmt.Sprintf("cursor = _ (0x%x)", st.cursor))
			} else {
				st.step("ref _", before, "cursor unchanged (_ unbound)")
			}
			break
		}
		v, ok := st.vars[n.Name]
		if !ok {
			return &UndefinedVariableError{Name: n.Name}
		}
		st.cursor = uint64(v)
		st.step("ref "+n.Name, before, fmt.Sprintf("cursor = %s (0x%x)", n.Name, st.cursor))

	case *Conditional:
		taken, err := e.evalCond(st, n.Cond)
		if err != nil {
			return err
		}
		branch := n.Else
		label := "cond false"
		if taken {
			branch = n.Then
			label = "cond true"
		}
		st.step(label, st.cursor, fmt.Sprintf("branch: %d nodes", len(branch)))
		return e.evalSeq(ctx, st, branch)

	case *Skip:
		st.step("skip", st.cursor, "no-op")

	case *Null:
		before := st.cursor
		st.cursor = 0
		st.step("null", before, "cursor = 0")

	case *Stop:
		st.halted = true
		st.step("stop", st.cursor, "halt")

	case *ArrayAccess:
		idx, err := e.evalOperand(st, n.Index)
		if err != nil {
			return err
		}
		size := n.ElemSize
		if size == 0 {
			size = DefaultElemSize
		}
		before := st.cursor
		st.cursor += uint64(idx * size)
		st.step("index", before, fmt.Sprintf("cursor += %d*%d", idx, size))

	default:
		return fmt.Errorf("unknown expression node %T", node)
	}
	return nil
}

func (e *Executor) evalCond(st *execState, cond Condition) (bool, error) {
	switch c := cond.(type) {
	case *Compare:
		l, err := e.evalOperand(st, c.Left)
		if err != nil {
			return false, err
		}
		r, err := e.evalOperand(st, c.Right)
		if err != nil {
			return false, err
		}
		switch c.Op {
		case Eq:
			return l == r, nil
		case Neq:
			return l != r, nil
		case Gt:
			return l > r, nil
		case Lt:
			return l < r, nil
		case Geq:
			return l >= r, nil
		case Leq:
			return l <= r, nil
		}
		return false, fmt.Errorf("unknown compare operator %d", uint8(c.Op))

	case *Bitwise:
		l, err := e.evalOperand(st, c.Left)
		if err != nil {
			return false, err
		}
		r, err := e.evalOperand(st, c.Right)
		if err != nil {
			return false, err
		}
		var v int64
		switch c.Op {
		case BitAnd:
			v = l & r
		case BitOr:
			v = l | r
		case BitXor:
			v = l ^ r
		default:
			return false, fmt.Errorf("unknown bitwise operator %d", uint8(c.Op))
		}
		return v != 0, nil

	case *Logical:
		l, err := e.evalCond(st, c.Left)
		if err != nil {
			return false, err
		}
		// Short-circuit: the right side must not be evaluated when the
		// left side already determines the result.
		if c.Op == LogicAnd && !l {
			return false, nil
		}
		if c.Op == LogicOr && l {
			return true, nil
		}
		return e.evalCond(st, c.Right)

	case *Not:
		v, err := e.evalCond(st, c.Cond)
		if err != nil {
			return false, err
		}
		return !v, nil
	}
	return false, fmt.Errorf("unknown condition %T", cond)
}

func (e *Executor) evalOperand(st *execState, op Operand) (int64, error) {
	switch o := op.(type) {
	case *Current:
		return int64(st.cursor), nil
	case *Variable:
		v, ok := st.vars[o.Name]
		if !ok {
			return 0, &UndefinedVariableError{Name: o.Name}
		}
		return v, nil
	case *Constant:
		return o.Value, nil
	}
	return 0, fmt.Errorf("unknown operand %T", op)
}
