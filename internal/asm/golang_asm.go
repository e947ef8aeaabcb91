package asm

import (
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/arm64"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// GolangAsmAssembler emits instructions through the golang-asm library.
//
// No prologue is generated: the code must not grow the goroutine stack.
type GolangAsmAssembler struct {
	b    *goasm.Builder
	arch string
}

// NewGolangAsmAssembler returns an assembler for "amd64" or "arm64".
func NewGolangAsmAssembler(arch string) (*GolangAsmAssembler, error) {
	switch arch {
	case "amd64", "arm64":
	default:
		return nil, fmt.Errorf("unsupported architecture %q", arch)
	}
	// The cache size only sizes the Prog allocation batches.
	b, err := goasm.NewBuilder(arch, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new assembly builder: %w", err)
	}
	a := &GolangAsmAssembler{b: b, arch: arch}
	if arch == "arm64" {
		// The arm64 backend treats the first instruction as the TEXT header
		// and never encodes it, so it must be a placeholder.
		nop := b.NewProg()
		nop.As = obj.ANOP
		b.AddInstruction(nop)
	}
	return a, nil
}

// CompileConstToReturnRegister moves value into AX on amd64 or R0 on arm64.
func (a *GolangAsmAssembler) CompileConstToReturnRegister(value int64) {
	p := a.b.NewProg()
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = value
	p.To.Type = obj.TYPE_REG
	if a.arch == "amd64" {
		p.As = x86.AMOVQ
		p.To.Reg = x86.REG_AX
	} else {
		// Immediates wider than 16 bits are split into several instructions
		// by the assembler.
		p.As = arm64.AMOVD
		p.To.Reg = arm64.REG_R0
	}
	a.b.AddInstruction(p)
}

// CompileReturn returns to the caller.
func (a *GolangAsmAssembler) CompileReturn() {
	ret := a.b.NewProg()
	ret.As = obj.ARET
	if a.arch == "arm64" {
		ret.To.Type = obj.TYPE_REG
		ret.To.Reg = arm64.REGLINK
	}
	a.b.AddInstruction(ret)
}

// Assemble returns the machine code.
func (a *GolangAsmAssembler) Assemble() []byte {
	return a.b.Assemble()
}
