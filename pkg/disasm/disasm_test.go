package disasm

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestArchFromCode(t *testing.T) {
	for code := 0; code <= 3; code++ {
		arch, err := ArchFromCode(code)
		if err != nil {
			t.Errorf("code %d should be valid: %v", code, err)
		}
		if int(arch) != code {
			t.Errorf("code %d mapped to %d", code, int(arch))
		}
	}
	if _, err := ArchFromCode(9); err == nil {
		t.Error("code 9 should be rejected")
	}
}

func TestDisassembleARM64(t *testing.T) {
	// mov x0, #0x1234; ret
	mem := []byte{
		0x80, 0x46, 0x82, 0xd2,
		0xc0, 0x03, 0x5f, 0xd6,
	}
	insts, err := Disassemble(ARM64, mem, 0x4000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(insts))
	}
	if insts[0].Address != 0x4000 || insts[1].Address != 0x4004 {
		t.Errorf("bad addresses 0x%x, 0x%x", insts[0].Address, insts[1].Address)
	}
	if !strings.HasPrefix(insts[0].Mnemonic, "mov") {
		t.Errorf("expected a mov, got %q", insts[0].Text())
	}
	if insts[1].Mnemonic != "ret" {
		t.Errorf("expected ret, got %q", insts[1].Text())
	}
}

func TestDisassembleAMD64(t *testing.T) {
	// mov eax, 0x2a; ret
	mem := []byte{0xb8, 0x2a, 0x00, 0x00, 0x00, 0xc3}
	insts, err := Disassemble(AMD64, mem, 0x8000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(insts))
	}
	if insts[0].Mnemonic != "mov" || len(insts[0].Bytes) != 5 {
		t.Errorf("expected a 5-byte mov, got %q (%d bytes)", insts[0].Text(), len(insts[0].Bytes))
	}
	if insts[1].Address != 0x8005 || insts[1].Mnemonic != "ret" {
		t.Errorf("expected ret at 0x8005, got %q at 0x%x", insts[1].Text(), insts[1].Address)
	}
}

func TestDisassembleCountLimit(t *testing.T) {
	mem := []byte{
		0x80, 0x46, 0x82, 0xd2,
		0xc0, 0x03, 0x5f, 0xd6,
	}
	insts, err := Disassemble(ARM64, mem, 0x4000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 1 {
		t.Fatalf("expected the count limit to hold, got %d instructions", len(insts))
	}
}

func TestDisassembleUndecodable(t *testing.T) {
	// An all-zero word is not a valid arm64 instruction; decoding continues
	// past it.
	mem := []byte{
		0x00, 0x00, 0x00, 0x00,
		0xc0, 0x03, 0x5f, 0xd6,
	}
	insts, err := Disassemble(ARM64, mem, 0x4000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(insts))
	}
	if insts[0].Mnemonic != "?" {
		t.Errorf("expected a ? placeholder, got %q", insts[0].Text())
	}
	if insts[1].Mnemonic != "ret" {
		t.Errorf("expected decoding to continue with ret, got %q", insts[1].Text())
	}
}

func TestDisassembleUnsupportedArch(t *testing.T) {
	if _, err := Disassemble(ARM32, []byte{0, 0, 0, 0}, 0, 0); err == nil {
		t.Error("arm32 has no decoder and must error")
	}
	if _, err := Disassemble(Arch(7), []byte{0}, 0, 0); err == nil {
		t.Error("an invalid arch must error")
	}
}

func TestDisassembleCached(t *testing.T) {
	mem := []byte{0xc3}
	a, err := Disassemble(AMD64, mem, 0x8000, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Disassemble(AMD64, mem, 0x8000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("cached decode differs (-first +second):\n%s", diff)
	}
}

func TestPseudoARM64(t *testing.T) {
	tests := []struct {
		mnemonic, operands, want string
	}{
		{"mov", "x0, #0x1234", "x0 = #0x1234"},
		{"ldr", "x0, [x1]", "x0 = *([x1])_qword"},
		{"ldrb", "w0, [x1]", "w0 = *([x1])_byte"},
		{"str", "x2, [sp, #16]", "*([sp, #16])_qword = x2"},
		{"add", "x0, x1, x2", "x0 = x1 + x2"},
		{"cbz", "x0, 0x4010", "if x0 == 0 goto 0x4010"},
		{"bl", "0x5000", "call 0x5000"},
		{"ret", "", "return"},
		{"svc", "#0", "svc #0"}, // unrecognized falls back to the listing
	}
	for _, tt := range tests {
		if got := arm64Pseudo(tt.mnemonic, tt.operands); got != tt.want {
			t.Errorf("%s %s: expected %q, got %q", tt.mnemonic, tt.operands, tt.want, got)
		}
	}
}

func TestPseudoAMD64(t *testing.T) {
	tests := []struct {
		mnemonic, operands, want string
	}{
		{"mov", "eax, 0x2a", "eax = 0x2a"},
		{"lea", "rax, [rbx+8]", "rax = [rbx+8]"},
		{"add", "rax, rbx", "rax = rax + rbx"},
		{"cmp", "rax, 0", "flags = rax ? 0"},
		{"push", "rbp", "push(rbp)"},
		{"pop", "rbp", "rbp = pop()"},
		{"jmp", "0x8000", "goto 0x8000"},
		{"ret", "", "return"},
		{"nop", "", "nop"},
	}
	for _, tt := range tests {
		if got := amd64Pseudo(tt.mnemonic, tt.operands); got != tt.want {
			t.Errorf("%s %s: expected %q, got %q", tt.mnemonic, tt.operands, tt.want, got)
		}
	}
}

func TestDisassembleWithPseudo(t *testing.T) {
	mem := []byte{0xc3}
	insts, err := DisassembleWithPseudo(AMD64, mem, 0x8000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if insts[0].Pseudo != "return" {
		t.Errorf("expected return pseudo, got %q", insts[0].Pseudo)
	}
}

func TestInstructionHelpers(t *testing.T) {
	inst := Instruction{Bytes: []byte{0xc3}, Mnemonic: "ret"}
	if inst.Opcode() != 0xc3 {
		t.Errorf("unexpected opcode 0x%x", inst.Opcode())
	}
	if inst.Text() != "ret" {
		t.Errorf("unexpected text %q", inst.Text())
	}
	inst = Instruction{Mnemonic: "mov", Operands: "eax, 1"}
	if inst.Text() != "mov eax, 1" {
		t.Errorf("unexpected text %q", inst.Text())
	}
}
