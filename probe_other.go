//go:build !(unix && amd64)

package wxmem

// TODO: support arm64 once emitted code is followed by instruction cache
// maintenance (dc cvau / ic ivau) rather than relying on mprotect.
func probe(*Tracker) (int64, error) {
	return 0, ErrProbeUnsupported
}
