// Package asm emits small native functions for code segments.
package asm

import "fmt"

// ReturnConstant assembles a leaf function for arch that returns value in the
// first integer result register of the Go internal ABI, so it can be called
// as a func() int64 once mapped executable.
func ReturnConstant(arch string, value int64) ([]byte, error) {
	a, err := NewGolangAsmAssembler(arch)
	if err != nil {
		return nil, err
	}
	a.CompileConstToReturnRegister(value)
	a.CompileReturn()
	code := a.Assemble()
	if len(code) == 0 {
		return nil, fmt.Errorf("assembled no code for %s", arch)
	}
	return code, nil
}
