package wxmem

import (
	"fmt"

	"github.com/tetratelabs/wxmem/internal/platform"
)

// CodeRegion is a code segment allocated and registered by
// Tracker.AllocateRegion.
type CodeRegion struct {
	tracker *Tracker
	segment *platform.Segment
}

// WritableAddress is the base of the writable view and the region's key in the
// Tracker.
func (r *CodeRegion) WritableAddress() uintptr {
	return r.segment.WritableAddress()
}

// ExecutableAddress is the base of the executable view: the address to jump to.
func (r *CodeRegion) ExecutableAddress() uintptr {
	return r.segment.ExecutableAddress()
}

// Size is the length of the region in bytes, a multiple of the page size.
func (r *CodeRegion) Size() int {
	return r.segment.Size()
}

// Dual returns true if the writable and executable views are distinct
// mappings.
func (r *CodeRegion) Dual() bool {
	return r.segment.Dual()
}

// Writable returns the writable view. It may only be written while the region
// is held writable.
func (r *CodeRegion) Writable() []byte {
	return r.segment.Writable
}

// Executable returns the executable view, for reading back emitted code.
func (r *CodeRegion) Executable() []byte {
	return r.segment.Executable
}

// Write copies code to offset in the writable view, holding write access for
// the duration of the copy.
func (r *CodeRegion) Write(offset int, code []byte) error {
	if offset < 0 || offset > r.Size() || len(code) > r.Size()-offset {
		return fmt.Errorf("write of %d bytes at offset %d out of code region of size %d", len(code), offset, r.Size())
	}
	return r.tracker.WithWriteAccess(r.WritableAddress(), func() error {
		copy(r.segment.Writable[offset:], code)
		return nil
	})
}

// Close unregisters the region and unmaps it. The region must not be held
// writable.
func (r *CodeRegion) Close() error {
	addr := r.WritableAddress()
	r.tracker.UnregisterJITRegion(addr)
	if err := platform.MunmapCodeSegment(r.segment); err != nil {
		return fmt.Errorf("failed to unmap code region %#x: %w", addr, err)
	}
	return nil
}
