// Package disasm is a thin wrapper around the golang.org/x/arch instruction
// decoders. It turns raw bytes read from a target process into instruction
// listings and optional pseudo-code.
package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// Arch selects the instruction set. The numeric codes are stable
// identifiers shared with callers across the API boundary.
type Arch int

const (
	ARM32 Arch = 0
	Thumb Arch = 1
	ARM64 Arch = 2
	AMD64 Arch = 3
)

// ArchFromCode validates a numeric architecture code.
func ArchFromCode(code int) (Arch, error) {
	switch Arch(code) {
	case ARM32, Thumb, ARM64, AMD64:
		return Arch(code), nil
	}
	return 0, fmt.Errorf("invalid architecture code %d", code)
}

func (a Arch) String() string {
	switch a {
	case ARM32:
		return "arm32"
	case Thumb:
		return "thumb"
	case ARM64:
		return "arm64"
	case AMD64:
		return "amd64"
	}
	return fmt.Sprintf("arch(%d)", int(a))
}

// Instruction is one decoded instruction.
type Instruction struct {
	Address  uint64
	Bytes    []byte
	Mnemonic string
	Operands string
	// Pseudo is a simplified rendering, only set by DisassembleWithPseudo.
	Pseudo string
}

// decodeCache remembers recently decoded windows; the terminal tends to
// re-disassemble the same addresses while stepping through a listing.
var decodeCache, _ = lru.New(128)

type cacheKey struct {
	arch  Arch
	addr  uint64
	count int
	sum   uint64
}

func windowKey(arch Arch, mem []byte, addr uint64, count int) cacheKey {
	var sum uint64
	for i, b := range mem {
		sum = sum*131 + uint64(b) + uint64(i)
	}
	return cacheKey{arch: arch, addr: addr, count: count, sum: sum}
}

// Disassemble decodes instructions from mem, which was read starting at
// addr. count limits the number of instructions; zero means decode all of
// mem. A byte sequence that does not decode becomes a single "?" entry and
// decoding continues past it.
func Disassemble(arch Arch, mem []byte, addr uint64, count int) ([]Instruction, error) {
	key := windowKey(arch, mem, addr, count)
	if v, ok := decodeCache.Get(key); ok {
		return v.([]Instruction), nil
	}

	var out []Instruction
	var err error
	switch arch {
	case ARM64:
		out, err = disasmARM64(mem, addr, count)
	case AMD64:
		out, err = disasmAMD64(mem, addr, count)
	case ARM32, Thumb:
		return nil, fmt.Errorf("architecture %s has no decoder on this host", arch)
	default:
		return nil, fmt.Errorf("invalid architecture code %d", int(arch))
	}
	if err != nil {
		return nil, err
	}
	decodeCache.Add(key, out)
	return out, nil
}

// DisassembleWithPseudo decodes like Disassemble and additionally fills the
// Pseudo field of every instruction.
func DisassembleWithPseudo(arch Arch, mem []byte, addr uint64, count int) ([]Instruction, error) {
	out, err := Disassemble(arch, mem, addr, count)
	if err != nil {
		return nil, err
	}
	withPseudo := make([]Instruction, len(out))
	for i, inst := range out {
		inst.Pseudo = generatePseudo(arch, inst.Mnemonic, inst.Operands)
		withPseudo[i] = inst
	}
	return withPseudo, nil
}

func disasmARM64(mem []byte, addr uint64, count int) ([]Instruction, error) {
	var out []Instruction
	pc := addr
	for len(mem) >= 4 {
		if count > 0 && len(out) >= count {
			break
		}
		inst, err := arm64asm.Decode(mem[:4])
		if err != nil {
			out = append(out, undecodable(pc, mem[:4]))
		} else {
			out = append(out, splitText(pc, mem[:4], arm64asm.GNUSyntax(inst)))
		}
		mem = mem[4:]
		pc += 4
	}
	return out, nil
}

func disasmAMD64(mem []byte, addr uint64, count int) ([]Instruction, error) {
	var out []Instruction
	pc := addr
	for len(mem) > 0 {
		if count > 0 && len(out) >= count {
			break
		}
		inst, err := x86asm.Decode(mem, 64)
		size := inst.Len
		if err != nil || size == 0 {
			size = 1
			out = append(out, undecodable(pc, mem[:1]))
		} else {
			out = append(out, splitText(pc, mem[:size], x86asm.IntelSyntax(inst, pc, nil)))
		}
		mem = mem[size:]
		pc += uint64(size)
	}
	return out, nil
}

func undecodable(pc uint64, raw []byte) Instruction {
	return Instruction{
		Address:  pc,
		Bytes:    append([]byte(nil), raw...),
		Mnemonic: "?",
	}
}

func splitText(pc uint64, raw []byte, text string) Instruction {
	mnemonic, operands := text, ""
	if i := strings.IndexByte(text, ' '); i >= 0 {
		mnemonic, operands = text[:i], strings.TrimSpace(text[i+1:])
	}
	return Instruction{
		Address:  pc,
		Bytes:    append([]byte(nil), raw...),
		Mnemonic: mnemonic,
		Operands: operands,
	}
}

// Opcode returns the instruction bytes as a little-endian word, padded with
// zeros. Useful for matching fixed patterns.
func (inst *Instruction) Opcode() uint64 {
	var buf [8]byte
	copy(buf[:], inst.Bytes)
	return binary.LittleEndian.Uint64(buf[:])
}

// Text renders the instruction the way a listing shows it.
func (inst *Instruction) Text() string {
	if inst.Operands == "" {
		return inst.Mnemonic
	}
	return inst.Mnemonic + " " + inst.Operands
}
