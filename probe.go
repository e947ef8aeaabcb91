package wxmem

import (
	"fmt"
	"runtime"
)

// ProbeValue is what the function emitted by Probe returns.
const ProbeValue = 42

// ErrProbeUnsupported is returned by Probe where emitted code cannot be run.
var ErrProbeUnsupported = fmt.Errorf("JIT probe unsupported on %s/%s", runtime.GOOS, runtime.GOARCH)

// Probe checks that the process can run JIT code under W^X: it allocates a
// region through t, emits a function returning ProbeValue, writes it through
// the writable view and calls it through the executable view.
//
// The region is released before Probe returns.
func Probe(t *Tracker) (int64, error) {
	return probe(t)
}
