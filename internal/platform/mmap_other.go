//go:build unix && !linux

package platform

// SupportsDualMapping returns false as there is no portable way to map
// anonymous memory twice.
func SupportsDualMapping() bool {
	return false
}

func mmapDualSegment(int) (*Segment, error) {
	return nil, errDualUnsupported
}
