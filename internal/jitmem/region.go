package jitmem

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Protection is the view of a region that is in effect after a Protector call.
type Protection uint8

const (
	// ProtectionWritable means the writable view may be written and the
	// executable view must not be executed.
	ProtectionWritable Protection = iota + 1
	// ProtectionExecutable means the executable view may be executed and the
	// region must not be written.
	ProtectionExecutable
)

// String implements fmt.Stringer.
func (p Protection) String() string {
	switch p {
	case ProtectionWritable:
		return "writable"
	case ProtectionExecutable:
		return "executable"
	}
	return fmt.Sprintf("Protection(%d)", uint8(p))
}

// Region is the immutable part of a registered JIT region, handed to a
// Protector so it knows which pages to change.
type Region struct {
	// WritableAddress is the base of the writable view. It is the key the
	// region is registered under.
	WritableAddress uintptr
	// ExecutableAddress is the base of the executable view. Equal to
	// WritableAddress when the region is single-mapped.
	ExecutableAddress uintptr
	// Size is the length in bytes of both views.
	Size uintptr
}

// Dual returns true if the writable and executable views live at different
// addresses.
func (r Region) Dual() bool {
	return r.WritableAddress != r.ExecutableAddress
}

// contains returns true if addr is within the writable view.
func (r Region) contains(addr uintptr) bool {
	return addr >= r.WritableAddress && addr-r.WritableAddress < r.Size
}

func (r Region) fields() logrus.Fields {
	return logrus.Fields{
		"writable":   fmt.Sprintf("%#x", r.WritableAddress),
		"executable": fmt.Sprintf("%#x", r.ExecutableAddress),
		"size":       r.Size,
	}
}

// Protector performs the platform call that changes page protection. It is
// invoked only when a region moves between idle and held, with the tracker
// lock held, and must also do any instruction cache maintenance the platform
// needs when switching to ProtectionExecutable.
type Protector interface {
	Protect(region Region, protection Protection) error
}

// ProtectorFunc adapts a function to Protector.
type ProtectorFunc func(region Region, protection Protection) error

// Protect implements Protector.Protect.
func (f ProtectorFunc) Protect(region Region, protection Protection) error {
	return f(region, protection)
}

// RegionInfo is a point-in-time copy of a registered region.
type RegionInfo struct {
	Region
	// Depth is the number of outstanding write-enable requests. Zero means
	// the region is executable.
	Depth uint32
}

// Held returns true if at least one write-enable request is outstanding.
func (i RegionInfo) Held() bool {
	return i.Depth > 0
}

// regionState is the nesting state of a region: idle when depth is zero,
// otherwise held by depth writers. The unsigned depth keeps a negative
// nesting count unrepresentable.
type regionState struct {
	depth uint32
}

func (s regionState) idle() bool {
	return s.depth == 0
}

// last returns true if exactly one writer holds the region, so the next
// release returns it to idle.
func (s regionState) last() bool {
	return s.depth == 1
}

// full returns true if one more writer would overflow the depth.
func (s regionState) full() bool {
	return s.depth == math.MaxUint32
}

// acquire adds one writer. The caller checks full first.
func (s *regionState) acquire() {
	s.depth++
}

// release drops one writer. The caller checks idle first.
func (s *regionState) release() {
	s.depth--
}

// region is the registry record.
type region struct {
	Region
	state regionState
}

func (r *region) info() RegionInfo {
	return RegionInfo{Region: r.Region, Depth: r.state.depth}
}

func lessByWritableAddress(a, b *region) bool {
	return a.WritableAddress < b.WritableAddress
}
