package pathexpr

import "fmt"

// ReadFaultError reports a memory read that the port answered with a fault.
type ReadFaultError struct {
	Addr uint64
	Size int
}

func (e *ReadFaultError) Error() string {
	return fmt.Sprintf("read fault: %d bytes at 0x%x", e.Size, e.Addr)
}

// UndefinedVariableError reports a reference to a name that was never bound.
type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("undefined variable %q", e.Name)
}
