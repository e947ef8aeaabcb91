// Package jitmem tracks the protection state of dual-mapped JIT code regions
// on platforms that never allow a page to be writable and executable at once.
//
// Regions are keyed by the base of their writable view. Write access nests:
// only the outermost JITRegionWriteEnableExecuteDisable and its matching
// JITRegionWriteDisableExecuteEnable reach the Protector.
package jitmem

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/btree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// btreeDegree is the branching factor of the registry. Registries hold at
// most a few thousand regions, so any small degree works.
const btreeDegree = 8

// Option configures a Tracker.
type Option func(*options)

type options struct {
	logger     logrus.FieldLogger
	registerer prometheus.Registerer
}

// WithLogger sets the logger used for region lifecycle and transition logs.
// Defaults to a logger that discards everything.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer registers the tracker's metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// Tracker is a registry of JIT regions and their nesting state. It is safe
// for concurrent use; every operation is serialized by one lock that is also
// held across the Protector call.
type Tracker struct {
	mux       sync.Mutex
	regions   *btree.BTreeG[*region]
	protector Protector
	logger    logrus.FieldLogger
	metrics   *metrics
}

// NewTracker returns an empty Tracker that changes protection through
// protector.
func NewTracker(protector Protector, opts ...Option) (*Tracker, error) {
	if protector == nil {
		panic(errors.New("BUG: NewTracker with nil Protector"))
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		o.logger = discard
	}

	m := newMetrics()
	if o.registerer != nil {
		if err := m.register(o.registerer); err != nil {
			return nil, err
		}
	}

	return &Tracker{
		regions:   btree.NewG[*region](btreeDegree, lessByWritableAddress),
		protector: protector,
		logger:    o.logger,
		metrics:   m,
	}, nil
}

// RegisterJITRegion starts tracking a freshly mapped region. The region starts
// idle, meaning its executable view is the one in effect.
func (t *Tracker) RegisterJITRegion(writable, executable, size uintptr) error {
	if writable == 0 || executable == 0 || size == 0 ||
		writable+size < writable || executable+size < executable {
		return t.metrics.observe(addressError(ErrInvalidRegion, writable))
	}

	t.mux.Lock()
	defer t.mux.Unlock()

	// Registered ranges never overlap, so only the last region starting at or
	// below the new range's last byte can overlap it.
	if prev := t.floor(writable + size - 1); prev != nil && prev.WritableAddress+prev.Size > writable {
		return t.metrics.observe(addressError(ErrDuplicateRegistration, writable))
	}

	r := &region{Region: Region{WritableAddress: writable, ExecutableAddress: executable, Size: size}}
	if _, replaced := t.regions.ReplaceOrInsert(r); replaced {
		panic(fmt.Errorf("BUG: JIT region %#x replaced a registered region", writable))
	}
	t.metrics.regions.Inc()
	t.logger.WithFields(r.fields()).Debug("registered JIT region")
	return nil
}

// UnregisterJITRegion stops tracking the region containing ptr. The region
// must be idle. Memory protection is not touched.
func (t *Tracker) UnregisterJITRegion(ptr uintptr) error {
	t.mux.Lock()
	defer t.mux.Unlock()

	r := t.find(ptr)
	if r == nil {
		return t.metrics.observe(addressError(ErrUnknownRegion, ptr))
	}
	if !r.state.idle() {
		return t.metrics.observe(addressError(ErrRegionStillHeld, ptr))
	}

	t.regions.Delete(r)
	t.metrics.regions.Dec()
	t.logger.WithFields(r.fields()).Debug("unregistered JIT region")
	return nil
}

// JITRegionWriteEnableExecuteDisable makes the region containing ptr writable
// and not executable. Calls nest: only the first one reaches the Protector.
func (t *Tracker) JITRegionWriteEnableExecuteDisable(ptr uintptr) error {
	t.mux.Lock()
	defer t.mux.Unlock()

	r := t.find(ptr)
	if r == nil {
		return t.metrics.observe(addressError(ErrUnknownRegion, ptr))
	}

	if r.state.full() {
		return t.metrics.observe(addressError(ErrNestingOverflow, ptr))
	}
	if r.state.idle() {
		if err := t.protect(r, ProtectionWritable); err != nil {
			return err
		}
	} else {
		t.metrics.nested.WithLabelValues("acquire").Inc()
	}
	r.state.acquire()
	return nil
}

// JITRegionWriteDisableExecuteEnable releases one write-enable on the region
// containing ptr. The release that returns the region to idle makes it
// executable again through the Protector.
func (t *Tracker) JITRegionWriteDisableExecuteEnable(ptr uintptr) error {
	t.mux.Lock()
	defer t.mux.Unlock()

	r := t.find(ptr)
	if r == nil {
		return t.metrics.observe(addressError(ErrUnknownRegion, ptr))
	}

	switch {
	case r.state.idle():
		return t.metrics.observe(addressError(ErrUnbalancedToggle, ptr))
	case r.state.last():
		if err := t.protect(r, ProtectionExecutable); err != nil {
			return err
		}
	default:
		t.metrics.nested.WithLabelValues("release").Inc()
	}
	r.state.release()
	return nil
}

// WithWriteAccess runs fn while holding write access to the region containing
// ptr. Write access is released even if fn fails or panics.
func (t *Tracker) WithWriteAccess(ptr uintptr, fn func() error) (err error) {
	if err = t.JITRegionWriteEnableExecuteDisable(ptr); err != nil {
		return
	}
	defer func() {
		if releaseErr := t.JITRegionWriteDisableExecuteEnable(ptr); err == nil {
			err = releaseErr
		}
	}()
	return fn()
}

// Lookup returns a copy of the region containing ptr.
func (t *Tracker) Lookup(ptr uintptr) (RegionInfo, bool) {
	t.mux.Lock()
	defer t.mux.Unlock()

	if r := t.find(ptr); r != nil {
		return r.info(), true
	}
	return RegionInfo{}, false
}

// Regions returns a copy of every registered region, ordered by writable
// address.
func (t *Tracker) Regions() []RegionInfo {
	t.mux.Lock()
	defer t.mux.Unlock()

	ret := make([]RegionInfo, 0, t.regions.Len())
	t.regions.Ascend(func(r *region) bool {
		ret = append(ret, r.info())
		return true
	})
	return ret
}

// Len returns the number of registered regions.
func (t *Tracker) Len() int {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.regions.Len()
}

// find returns the region whose writable view contains ptr, or nil.
//
// Note: t.mux must be held.
func (t *Tracker) find(ptr uintptr) *region {
	if r := t.floor(ptr); r != nil && r.contains(ptr) {
		return r
	}
	return nil
}

// floor returns the region with the highest writable address not above ptr,
// or nil.
//
// Note: t.mux must be held.
func (t *Tracker) floor(ptr uintptr) (found *region) {
	t.regions.DescendLessOrEqual(&region{Region: Region{WritableAddress: ptr}}, func(r *region) bool {
		found = r
		return false
	})
	return
}

// protect calls the Protector for r.
//
// Note: t.mux must be held.
func (t *Tracker) protect(r *region, p Protection) error {
	if err := t.protector.Protect(r.Region, p); err != nil {
		t.logger.WithFields(r.fields()).WithError(err).Errorf("failed to make JIT region %s", p)
		return &ProtectionError{Region: r.Region, Protection: p, Err: err}
	}
	t.metrics.protected(p)
	t.logger.WithFields(r.fields()).Debugf("JIT region is %s", p)
	return nil
}
