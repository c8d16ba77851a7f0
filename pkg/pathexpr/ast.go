// Package pathexpr evaluates pointer-path expressions against the memory of
// a target process. A pointer path is a sequence of steps (offsets,
// dereferences, bindings, conditionals) that resolves a base address to a
// final address, recording a full decision trace along the way.
//
// The package defines only the syntax tree and its evaluation; how a textual
// syntax is turned into the tree is up to the caller.
package pathexpr

import (
	"fmt"

	"github.com/go-memprobe/memprobe/pkg/memtypes"
)

// ExprNode is a single step of a pointer path. The set of implementations
// is closed; Executor.Execute switches exhaustively over them.
type ExprNode interface {
	exprNode()
}

// Offset moves the cursor by a signed delta. No memory access.
type Offset struct {
	Delta int64
}

// Deref reads Type.Size() bytes at the cursor and replaces the cursor with
// the decoded value, Count times in sequence. Count must be >= 1.
type Deref struct {
	Type  memtypes.DataType
	Count int
}

// VarDef evaluates Body against the current cursor and then binds Name to
// the resulting cursor value. Rebinding an existing name overwrites it.
type VarDef struct {
	Name string
	Body []ExprNode
}

// VarRef jumps the cursor to a previously bound value.
//
// The name "_" is special: if "_" has been bound it behaves like any other
// reference, but an unbound "_" leaves the cursor unchanged instead of
// failing.
type VarRef struct {
	Name string
}

// Conditional evaluates Cond and then one of the two branches.
type Conditional struct {
	Cond Condition
	Then []ExprNode
	Else []ExprNode
}

// Skip does nothing.
type Skip struct{}

// Null sets the cursor to address 0.
type Null struct{}

// Stop halts evaluation of the current sequence and of every enclosing
// sequence.
type Stop struct{}

// ArrayAccess advances the cursor by Index*ElemSize. An ElemSize of zero
// means the default element size of 8.
type ArrayAccess struct {
	Index    Operand
	ElemSize int64
}

// DefaultElemSize is the element size used by ArrayAccess when none is
// given.
const DefaultElemSize = 8

func (*Offset) exprNode()      {}
func (*Deref) exprNode()       {}
func (*VarDef) exprNode()      {}
func (*VarRef) exprNode()      {}
func (*Conditional) exprNode() {}
func (*Skip) exprNode()        {}
func (*Null) exprNode()        {}
func (*Stop) exprNode()        {}
func (*ArrayAccess) exprNode() {}

// Condition is the boolean part of a Conditional node.
type Condition interface {
	condition()
}

// CompareOp is a relational operator.
type CompareOp uint8

const (
	Eq CompareOp = iota
	Neq
	Gt
	Lt
	Geq
	Leq
)

func (op CompareOp) String() string {
	switch op {
	case Eq:
		return "=="
	case Neq:
		return "!="
	case Gt:
		return ">"
	case Lt:
		return "<"
	case Geq:
		return ">="
	case Leq:
		return "<="
	}
	return fmt.Sprintf("cmp(%d)", uint8(op))
}

// BitwiseOp is a bitwise operator; the condition is truthy iff the result
// is nonzero.
type BitwiseOp uint8

const (
	BitAnd BitwiseOp = iota
	BitOr
	BitXor
)

func (op BitwiseOp) String() string {
	switch op {
	case BitAnd:
		return "&"
	case BitOr:
		return "|"
	case BitXor:
		return "^"
	}
	return fmt.Sprintf("bit(%d)", uint8(op))
}

// LogicalOp combines two conditions with short-circuit evaluation.
type LogicalOp uint8

const (
	LogicAnd LogicalOp = iota
	LogicOr
)

func (op LogicalOp) String() string {
	if op == LogicAnd {
		return "&&"
	}
	return "||"
}

// Compare applies a relational operator to two operands decoded as signed
// 64-bit values.
type Compare struct {
	Left  Operand
	Op    CompareOp
	Right Operand
}

// Bitwise applies a bitwise operator to two operands and tests the result
// against zero.
type Bitwise struct {
	Left  Operand
	Op    BitwiseOp
	Right Operand
}

// Logical combines two conditions. The right side is not evaluated, and
// therefore cannot fault, when the left side already determines the result.
type Logical struct {
	Left  Condition
	Op    LogicalOp
	Right Condition
}

// Not inverts a condition.
type Not struct {
	Cond Condition
}

func (*Compare) condition() {}
func (*Bitwise) condition() {}
func (*Logical) condition() {}
func (*Not) condition()     {}

// Operand is a value source inside a condition or an ArrayAccess index.
type Operand interface {
	operand()
}

// Current evaluates to the present cursor value.
type Current struct{}

// Variable evaluates to a previously bound value and fails when the name is
// unbound.
type Variable struct {
	Name string
}

// Constant is a signed 64-bit literal.
type Constant struct {
	Value int64
}

func (*Current) operand()  {}
func (*Variable) operand() {}
func (*Constant) operand() {}
