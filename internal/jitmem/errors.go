package jitmem

import (
	"errors"
	"fmt"
)

// Usage errors. Each indicates a bug in the calling code generator and is
// returned wrapped with the offending address.
var (
	// ErrUnknownRegion is returned when an address does not resolve to any
	// registered region.
	ErrUnknownRegion = errors.New("unknown JIT region")
	// ErrUnbalancedToggle is returned when write access is released on an
	// idle region.
	ErrUnbalancedToggle = errors.New("unbalanced JIT region toggle")
	// ErrRegionStillHeld is returned when a region is unregistered while
	// write access is still held.
	ErrRegionStillHeld = errors.New("JIT region still held writable")
	// ErrDuplicateRegistration is returned when a registration collides with
	// a region that is already registered.
	ErrDuplicateRegistration = errors.New("JIT region already registered")
	// ErrInvalidRegion is returned when a registration has a zero address, a
	// zero size, or a range that wraps the address space.
	ErrInvalidRegion = errors.New("invalid JIT region")
	// ErrNestingOverflow is returned when write access to a region is
	// requested more times than its depth can count.
	ErrNestingOverflow = errors.New("JIT region nested too deep")
)

// ProtectionError is returned when the Protector fails. The region's state is
// left as it was before the call.
type ProtectionError struct {
	Region     Region
	Protection Protection
	Err        error
}

// Error implements error.
func (e *ProtectionError) Error() string {
	return fmt.Sprintf("failed to make JIT region %#x (executable %#x, size %d) %s: %v",
		e.Region.WritableAddress, e.Region.ExecutableAddress, e.Region.Size, e.Protection, e.Err)
}

// Unwrap returns the Protector's error.
func (e *ProtectionError) Unwrap() error {
	return e.Err
}

// usageErrorKind returns the metrics label for err, or "" if err is not a
// usage error.
func usageErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrUnknownRegion):
		return "unknown_region"
	case errors.Is(err, ErrUnbalancedToggle):
		return "unbalanced_toggle"
	case errors.Is(err, ErrRegionStillHeld):
		return "region_still_held"
	case errors.Is(err, ErrDuplicateRegistration):
		return "duplicate_registration"
	case errors.Is(err, ErrInvalidRegion):
		return "invalid_region"
	case errors.Is(err, ErrNestingOverflow):
		return "nesting_overflow"
	}
	return ""
}

func addressError(sentinel error, addr uintptr) error {
	return fmt.Errorf("%w: %#x", sentinel, addr)
}
