package disasm

import (
	"fmt"
	"strings"
)

// generatePseudo renders a simplified, assignment-style version of an
// instruction. It works at the mnemonic level; anything it does not
// recognize falls back to the plain listing text.
func generatePseudo(arch Arch, mnemonic, operands string) string {
	switch arch {
	case ARM64:
		return arm64Pseudo(mnemonic, operands)
	case AMD64:
		return amd64Pseudo(mnemonic, operands)
	}
	return fallback(mnemonic, operands)
}

// splitOperands splits at commas, except inside a bracketed memory operand
// such as [sp, #16].
func splitOperands(operands string) []string {
	if operands == "" {
		return nil
	}
	var parts []string
	depth := 0
	last := 0
	for i, ch := range operands {
		switch ch {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(operands[last:i]))
				last = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(operands[last:]))
	return parts
}

func fallback(mnemonic, operands string) string {
	if operands == "" {
		return mnemonic
	}
	return mnemonic + " " + operands
}

func arm64Pseudo(mnemonic, operands string) string {
	ops := splitOperands(operands)
	switch mnemonic {
	case "mov", "movz", "movk", "movn":
		if len(ops) >= 2 {
			return fmt.Sprintf("%s = %s", ops[0], ops[1])
		}
	case "ldr", "ldrb", "ldrh", "ldrsb", "ldrsh", "ldrsw":
		if len(ops) >= 2 {
			size := "qword"
			switch mnemonic {
			case "ldrb", "ldrsb":
				size = "byte"
			case "ldrh", "ldrsh":
				size = "word"
			case "ldrsw":
				size = "dword"
			}
			return fmt.Sprintf("%s = *(%s)_%s", ops[0], ops[1], size)
		}
	case "ldp":
		if len(ops) >= 3 {
			return fmt.Sprintf("%s = *%s; %s = *(%s+8)", ops[0], ops[2], ops[1], ops[2])
		}
	case "str", "strb", "strh":
		if len(ops) >= 2 {
			size := "qword"
			switch mnemonic {
			case "strb":
				size = "byte"
			case "strh":
				size = "word"
			}
			return fmt.Sprintf("*(%s)_%s = %s", ops[1], size, ops[0])
		}
	case "stp":
		if len(ops) >= 3 {
			return fmt.Sprintf("*%s = %s; *(%s+8) = %s", ops[2], ops[0], ops[2], ops[1])
		}
	case "add", "sub", "mul", "and", "orr", "eor", "lsl", "lsr":
		if len(ops) >= 3 {
			sym := map[string]string{
				"add": "+", "sub": "-", "mul": "*",
				"and": "&", "orr": "|", "eor": "^",
				"lsl": "<<", "lsr": ">>",
			}[mnemonic]
			return fmt.Sprintf("%s = %s %s %s", ops[0], ops[1], sym, ops[2])
		}
	case "cmp":
		if len(ops) >= 2 {
			return fmt.Sprintf("flags = %s - %s", ops[0], ops[1])
		}
	case "cbz":
		if len(ops) >= 2 {
			return fmt.Sprintf("if %s == 0 goto %s", ops[0], ops[1])
		}
	case "cbnz":
		if len(ops) >= 2 {
			return fmt.Sprintf("if %s != 0 goto %s", ops[0], ops[1])
		}
	case "b":
		if len(ops) >= 1 {
			return "goto " + ops[0]
		}
	case "bl":
		if len(ops) >= 1 {
			return "call " + ops[0]
		}
	case "ret":
		return "return"
	}
	return fallback(mnemonic, operands)
}

func amd64Pseudo(mnemonic, operands string) string {
	ops := splitOperands(operands)
	switch mnemonic {
	case "mov", "movzx", "movsx", "lea":
		if len(ops) >= 2 {
			return fmt.Sprintf("%s = %s", ops[0], ops[1])
		}
	case "add", "sub", "and", "or", "xor", "shl", "shr", "imul":
		if len(ops) >= 2 {
			sym := map[string]string{
				"add": "+", "sub": "-", "and": "&", "or": "|",
				"xor": "^", "shl": "<<", "shr": ">>", "imul": "*",
			}[mnemonic]
			return fmt.Sprintf("%s = %s %s %s", ops[0], ops[0], sym, ops[1])
		}
	case "cmp", "test":
		if len(ops) >= 2 {
			return fmt.Sprintf("flags = %s ? %s", ops[0], ops[1])
		}
	case "push":
		if len(ops) >= 1 {
			return "push(" + ops[0] + ")"
		}
	case "pop":
		if len(ops) >= 1 {
			return ops[0] + " = pop()"
		}
	case "call":
		if len(ops) >= 1 {
			return "call " + ops[0]
		}
	case "jmp":
		if len(ops) >= 1 {
			return "goto " + ops[0]
		}
	case "ret":
		return "return"
	}
	return fallback(mnemonic, operands)
}
