//go:build !unix

package platform

import (
	"fmt"
	"runtime"
)

var errUnsupported = fmt.Errorf("mmap unsupported on GOOS=%s", runtime.GOOS)

// SupportsDualMapping returns false.
func SupportsDualMapping() bool {
	return false
}

func mmapDualSegment(int) (*Segment, error) {
	panic(errUnsupported)
}

func mmapSingleSegment(int) (*Segment, error) {
	panic(errUnsupported)
}

func munmapCodeSegment(*Segment) error {
	panic(errUnsupported)
}

func protect(uintptr, uintptr, int, bool) error {
	panic(errUnsupported)
}
