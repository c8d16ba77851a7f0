package pathexpr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-memprobe/memprobe/pkg/memtypes"
)

// ParsePath converts the terse step syntax used by the terminal into an
// expression list. One token per step:
//
//	+N, -N          adjust the cursor by N bytes
//	*type[:count]   dereference count times reading values of type
//	[idx[:size]]    array element access, idx is a number, $name or .
//	name=( ... )    evaluate the group and bind the landing address to name
//	->name          jump to a bound variable
//	skip, null, stop
//
// The conditional form has no terse spelling; it is only reachable through
// the API.
func ParsePath(tokens []string) ([]ExprNode, error) {
	p := &pathParser{tokens: tokens}
	nodes, err := p.parseSeq(false)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("unexpected %q", p.tokens[p.pos])
	}
	return nodes, nil
}

type pathParser struct {
	tokens []string
	pos    int
}

func (p *pathParser) parseSeq(inGroup bool) ([]ExprNode, error) {
	var nodes []ExprNode
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok == ")" {
			if !inGroup {
				return nil, fmt.Errorf("unbalanced )")
			}
			p.pos++
			return nodes, nil
		}
		p.pos++
		node, err := p.parseStep(tok)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if inGroup {
		return nil, fmt.Errorf("missing )")
	}
	return nodes, nil
}

func (p *pathParser) parseStep(tok string) (ExprNode, error) {
	switch {
	case tok == "skip":
		return &Skip{}, nil
	case tok == "null":
		return &Null{}, nil
	case tok == "stop":
		return &Stop{}, nil

	case strings.HasPrefix(tok, "+") || strings.HasPrefix(tok, "-"):
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad offset %q", tok)
		}
		return &Offset{Delta: n}, nil

	case strings.HasPrefix(tok, "*"):
		spec := tok[1:]
		count := 1
		if i := strings.IndexByte(spec, ':'); i >= 0 {
			n, err := strconv.Atoi(spec[i+1:])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("bad dereference count in %q", tok)
			}
			count = n
			spec = spec[:i]
		}
		dt, ok := memtypes.FromCode(spec)
		if !ok {
			return nil, fmt.Errorf("bad dereference type in %q", tok)
		}
		return &Deref{Type: dt, Count: count}, nil

	case strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]"):
		spec := tok[1 : len(tok)-1]
		size := int64(DefaultElemSize)
		if i := strings.IndexByte(spec, ':'); i >= 0 {
			n, err := strconv.ParseInt(spec[i+1:], 10, 64)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("bad element size in %q", tok)
			}
			size = n
			spec = spec[:i]
		}
		idx, err := parseOperand(spec)
		if err != nil {
			return nil, fmt.Errorf("bad index in %q: %v", tok, err)
		}
		return &ArrayAccess{Index: idx, ElemSize: size}, nil

	case strings.HasPrefix(tok, "->"):
		name := tok[2:]
		if name == "" {
			return nil, fmt.Errorf("missing variable name in %q", tok)
		}
		return &VarRef{Name: name}, nil

	case strings.HasSuffix(tok, "=("):
		name := tok[:len(tok)-2]
		if name == "" {
			return nil, fmt.Errorf("missing variable name in %q", tok)
		}
		body, err := p.parseSeq(true)
		if err != nil {
			return nil, err
		}
		return &VarDef{Name: name, Body: body}, nil
	}
	return nil, fmt.Errorf("unrecognized step %q", tok)
}

func parseOperand(spec string) (Operand, error) {
	switch {
	case spec == ".":
		return &Current{}, nil
	case strings.HasPrefix(spec, "$"):
		if len(spec) == 1 {
			return nil, fmt.Errorf("missing variable name")
		}
		return &Variable{Name: spec[1:]}, nil
	default:
		n, err := strconv.ParseInt(spec, 0, 64)
		if err != nil {
			return nil, err
		}
		return &Constant{Value: n}, nil
	}
}
