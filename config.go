package wxmem

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/tetratelabs/wxmem/internal/jitmem"
	"github.com/tetratelabs/wxmem/internal/platform"
)

// TrackerConfig controls Tracker behavior, with the default implementation as
// NewTrackerConfig.
//
// TrackerConfig is immutable: each With* call returns a copy.
type TrackerConfig struct {
	logger     logrus.FieldLogger
	registerer prometheus.Registerer
	protector  Protector
}

// defaultConfig helps avoid copy/pasting the wrong defaults.
var defaultConfig = &TrackerConfig{
	logger:    discardLogger(),
	protector: jitmem.ProtectorFunc(platformProtect),
}

// clone ensures all fields are copied even if nil.
func (c *TrackerConfig) clone() *TrackerConfig {
	return &TrackerConfig{
		logger:     c.logger,
		registerer: c.registerer,
		protector:  c.protector,
	}
}

// NewTrackerConfig returns a config that changes protection with mprotect and
// logs nothing.
func NewTrackerConfig() *TrackerConfig {
	return defaultConfig.clone()
}

// WithLogger sets the logger for region lifecycle, protection transitions and
// usage errors. Defaults to discarding if nil.
func (c *TrackerConfig) WithLogger(logger logrus.FieldLogger) *TrackerConfig {
	if logger == nil {
		logger = discardLogger()
	}
	ret := c.clone()
	ret.logger = logger
	return ret
}

// WithMetricsRegisterer exports the tracker's prometheus metrics through r.
// Metrics are not exported by default.
func (c *TrackerConfig) WithMetricsRegisterer(r prometheus.Registerer) *TrackerConfig {
	ret := c.clone()
	ret.registerer = r
	return ret
}

// WithProtector replaces the platform call that changes page protection.
// Defaults to mprotect on the executable view if nil.
//
// Note: Regions allocated with Tracker.AllocateRegion are real mappings, so a
// replacement must leave them readable.
func (c *TrackerConfig) WithProtector(p Protector) *TrackerConfig {
	if p == nil {
		p = defaultConfig.protector
	}
	ret := c.clone()
	ret.protector = p
	return ret
}

func platformProtect(r Region, p Protection) error {
	return platform.Protect(r.WritableAddress, r.ExecutableAddress, int(r.Size), p == ProtectionWritable)
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
