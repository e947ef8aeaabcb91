package wxmem

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tetratelabs/wxmem/internal/jitmem"
	"github.com/tetratelabs/wxmem/internal/platform"
)

// Tracker is the registry of JIT regions. It is safe for concurrent use by
// several compiling goroutines.
//
// Addresses passed to Tracker methods may be any address inside a registered
// region's writable view, not only its base.
type Tracker struct {
	tracker *jitmem.Tracker
	logger  logrus.FieldLogger
}

// NewTracker returns a Tracker using the default configuration.
func NewTracker() *Tracker {
	t, err := NewTrackerWithConfig(NewTrackerConfig())
	if err != nil {
		// Only metrics registration can fail, and the default has none.
		panic(fmt.Errorf("BUG: %w", err))
	}
	return t
}

// NewTrackerWithConfig returns a Tracker using the given configuration. It
// fails if the metrics cannot be registered.
func NewTrackerWithConfig(config *TrackerConfig) (*Tracker, error) {
	opts := []jitmem.Option{jitmem.WithLogger(config.logger)}
	if config.registerer != nil {
		opts = append(opts, jitmem.WithRegisterer(config.registerer))
	}
	t, err := jitmem.NewTracker(config.protector, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return &Tracker{tracker: t, logger: config.logger}, nil
}

// RegisterJITRegion tracks a dual mapping whose views start at writable and
// executable. The region starts executable.
func (t *Tracker) RegisterJITRegion(writable, executable, size uintptr) {
	t.must(t.tracker.RegisterJITRegion(writable, executable, size))
}

// UnregisterJITRegion stops tracking the region containing ptr. The region
// must not be held writable. Memory protection is left as is.
func (t *Tracker) UnregisterJITRegion(ptr uintptr) {
	t.must(t.tracker.UnregisterJITRegion(ptr))
}

// JITRegionWriteEnableExecuteDisable makes the region containing ptr writable
// and not executable. Code in the region must not run until the matching
// JITRegionWriteDisableExecuteEnable.
func (t *Tracker) JITRegionWriteEnableExecuteDisable(ptr uintptr) {
	t.must(t.tracker.JITRegionWriteEnableExecuteDisable(ptr))
}

// JITRegionWriteDisableExecuteEnable ends one JITRegionWriteEnableExecuteDisable.
// The region becomes executable again when the outermost one ends.
func (t *Tracker) JITRegionWriteDisableExecuteEnable(ptr uintptr) {
	t.must(t.tracker.JITRegionWriteDisableExecuteEnable(ptr))
}

// WithWriteAccess runs fn while the region containing ptr is writable and
// returns its error. The region is released even if fn panics.
func (t *Tracker) WithWriteAccess(ptr uintptr, fn func() error) error {
	t.JITRegionWriteEnableExecuteDisable(ptr)
	defer t.JITRegionWriteDisableExecuteEnable(ptr)
	return fn()
}

// Lookup returns a copy of the region containing ptr.
func (t *Tracker) Lookup(ptr uintptr) (RegionInfo, bool) {
	return t.tracker.Lookup(ptr)
}

// Regions returns a copy of every registered region ordered by writable
// address.
func (t *Tracker) Regions() []RegionInfo {
	return t.tracker.Regions()
}

// Len returns the number of registered regions.
func (t *Tracker) Len() int {
	return t.tracker.Len()
}

// AllocateRegion maps a new code segment of at least size bytes and registers
// it. The segment is dual-mapped where the platform supports it.
func (t *Tracker) AllocateRegion(size int) (*CodeRegion, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid code region size: %d", size)
	}
	s, err := platform.MmapCodeSegment(size)
	if err != nil {
		return nil, fmt.Errorf("failed to map code region: %w", err)
	}
	if err = t.tracker.RegisterJITRegion(s.WritableAddress(), s.ExecutableAddress(), uintptr(s.Size())); err != nil {
		_ = platform.MunmapCodeSegment(s)
		// A fresh mapping overlapping a registered one means the registry
		// outlived an unmap.
		t.must(err)
	}
	return &CodeRegion{tracker: t, segment: s}, nil
}

// must enforces the fatal error policy.
func (t *Tracker) must(err error) {
	if err == nil {
		return
	}
	entry := t.logger.WithError(err)
	var protectionErr *ProtectionError
	if errors.As(err, &protectionErr) {
		entry.Error("code memory protection could not be changed")
	} else {
		entry.Error("JIT region misuse")
	}
	panic(fmt.Errorf("BUG: %w", err))
}
