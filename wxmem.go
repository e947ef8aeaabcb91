// Package wxmem tracks JIT code regions on platforms that enforce W^X: a page
// is either writable or executable, never both.
//
// A code generator registers each region once, brackets every burst of code
// emission with Tracker.JITRegionWriteEnableExecuteDisable and
// Tracker.JITRegionWriteDisableExecuteEnable, and unregisters the region when
// the code is discarded. Brackets nest, so an inner stage never makes the
// region executable under an outer stage that is still writing.
//
// Misuse, such as an unbalanced toggle, leaves the process unable to trust its
// code memory, so Tracker panics with an error prefixed "BUG: " rather than
// returning it. The error wraps one of the Err* values below.
package wxmem

import "github.com/tetratelabs/wxmem/internal/jitmem"

type (
	// Region is the writable view, executable view and size of a JIT region.
	Region = jitmem.Region
	// RegionInfo is a point-in-time copy of a registered region.
	RegionInfo = jitmem.RegionInfo
	// Protection is the view in effect after a Protector call.
	Protection = jitmem.Protection
	// Protector performs the platform call that changes page protection.
	Protector = jitmem.Protector
	// ProtectorFunc adapts a function to Protector.
	ProtectorFunc = jitmem.ProtectorFunc
	// ProtectionError is raised when the Protector fails.
	ProtectionError = jitmem.ProtectionError
)

const (
	// ProtectionWritable means the writable view is in effect.
	ProtectionWritable = jitmem.ProtectionWritable
	// ProtectionExecutable means the executable view is in effect.
	ProtectionExecutable = jitmem.ProtectionExecutable
)

var (
	// ErrUnknownRegion means an address is outside every registered region.
	ErrUnknownRegion = jitmem.ErrUnknownRegion
	// ErrUnbalancedToggle means write access was released on an executable region.
	ErrUnbalancedToggle = jitmem.ErrUnbalancedToggle
	// ErrRegionStillHeld means a region was unregistered while held writable.
	ErrRegionStillHeld = jitmem.ErrRegionStillHeld
	// ErrDuplicateRegistration means a registration overlaps a registered region.
	ErrDuplicateRegistration = jitmem.ErrDuplicateRegistration
	// ErrInvalidRegion means a registration has a zero address, a zero size or
	// a range that wraps.
	ErrInvalidRegion = jitmem.ErrInvalidRegion
	// ErrNestingOverflow means write access was nested too deeply to count.
	ErrNestingOverflow = jitmem.ErrNestingOverflow
)
