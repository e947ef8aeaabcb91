//go:build unix

package wxmem

import (
	"runtime"
	"unsafe"

	"github.com/tetratelabs/wxmem/internal/asm"
)

func probe(t *Tracker) (ret int64, err error) {
	code, err := asm.ReturnConstant(runtime.GOARCH, ProbeValue)
	if err != nil {
		return 0, err
	}

	region, err := t.AllocateRegion(len(code))
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := region.Close(); err == nil {
			err = closeErr
		}
	}()

	if err = region.Write(0, code); err != nil {
		return 0, err
	}
	return callReturnConstant(region.ExecutableAddress()), nil
}

// callReturnConstant calls the code at entry as a func() int64. A func value
// is a pointer to a word holding the code address.
func callReturnConstant(entry uintptr) int64 {
	fn := &entry
	return (*(*func() int64)(unsafe.Pointer(&fn)))()
}
