// Package platform maps and protects JIT code segments.
//
// A Segment has a writable view and an executable view of the same memory.
// Where the OS allows it the views are distinct mappings of one shared file,
// so the writable view never needs to become executable. Otherwise both views
// are one mapping whose protection flips between read-write and read-execute.
package platform

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"github.com/tetratelabs/wxmem/internal/features"
)

var pageSize = os.Getpagesize()

var errDualUnsupported = fmt.Errorf("dual-mapped code segments unsupported on GOOS=%s", runtime.GOOS)

// Segment is a mapped code segment. A fresh segment is executable: Protect
// must make it writable before Writable is written to.
type Segment struct {
	// Writable is the view code is emitted through.
	Writable []byte
	// Executable is the view code runs from. It is never writable when the
	// segment is Dual.
	Executable []byte
}

// WritableAddress returns the base address of the writable view.
func (s *Segment) WritableAddress() uintptr {
	return uintptr(unsafe.Pointer(&s.Writable[0]))
}

// ExecutableAddress returns the base address of the executable view.
func (s *Segment) ExecutableAddress() uintptr {
	return uintptr(unsafe.Pointer(&s.Executable[0]))
}

// Dual returns true if the views are distinct mappings.
func (s *Segment) Dual() bool {
	return s.WritableAddress() != s.ExecutableAddress()
}

// Size returns the length of each view in bytes, a multiple of the page size.
func (s *Segment) Size() int {
	return len(s.Writable)
}

// MmapCodeSegment maps a segment of at least size bytes. It is dual-mapped
// when MmapDualSegment is supported and the features.SingleMap feature is off.
func MmapCodeSegment(size int) (*Segment, error) {
	if size <= 0 {
		panic(errors.New("BUG: MmapCodeSegment with non-positive size"))
	}
	if SupportsDualMapping() && !features.Have(features.SingleMap) {
		return mmapDualSegment(roundUpToPage(size))
	}
	return mmapSingleSegment(roundUpToPage(size))
}

// MmapDualSegment maps a segment of at least size bytes whose views are
// distinct mappings. It fails unless SupportsDualMapping.
func MmapDualSegment(size int) (*Segment, error) {
	if size <= 0 {
		panic(errors.New("BUG: MmapDualSegment with non-positive size"))
	}
	if !SupportsDualMapping() {
		return nil, errDualUnsupported
	}
	return mmapDualSegment(roundUpToPage(size))
}

// MmapSingleSegment maps a segment of at least size bytes whose views share
// one mapping.
func MmapSingleSegment(size int) (*Segment, error) {
	if size <= 0 {
		panic(errors.New("BUG: MmapSingleSegment with non-positive size"))
	}
	return mmapSingleSegment(roundUpToPage(size))
}

// MunmapCodeSegment unmaps both views of the segment.
func MunmapCodeSegment(s *Segment) error {
	if s == nil || len(s.Writable) == 0 {
		panic(errors.New("BUG: MunmapCodeSegment with zero length"))
	}
	return munmapCodeSegment(s)
}

// Protect changes the protection of the segment at the given addresses so that
// it is writable and not executable, or executable and not writable.
//
// For dual segments only the executable view changes: it loses or regains
// execute permission. For single segments the one mapping flips between
// read-write and read-execute.
func Protect(writable, executable uintptr, size int, writableOnly bool) error {
	if size <= 0 {
		panic(errors.New("BUG: Protect with non-positive size"))
	}
	return protect(writable, executable, size, writableOnly)
}

func roundUpToPage(size int) int {
	return (size + pageSize - 1) &^ (pageSize - 1)
}

// pageRange returns the page-aligned start and length covering
// [addr, addr+size).
func pageRange(addr uintptr, size int) (uintptr, int) {
	start := addr &^ uintptr(pageSize-1)
	return start, roundUpToPage(int(addr-start) + size)
}
