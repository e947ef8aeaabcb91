//go:build unix

package platform

import (
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

func mmapSingleSegment(size int) (*Segment, error) {
	// Anonymous as this is not an actual file, but a memory,
	// Private as this is in-process memory region.
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_EXEC, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &Segment{Writable: b, Executable: b}, nil
}

func munmapCodeSegment(s *Segment) (err error) {
	dual := s.Dual()
	err = multierr.Append(err, unix.Munmap(s.Writable))
	if dual {
		err = multierr.Append(err, unix.Munmap(s.Executable))
	}
	return
}

func protect(writable, executable uintptr, size int, writableOnly bool) error {
	var prot int
	switch {
	case writable != executable && writableOnly:
		prot = unix.PROT_READ
	case writableOnly:
		prot = unix.PROT_READ | unix.PROT_WRITE
	default:
		prot = unix.PROT_READ | unix.PROT_EXEC
	}
	start, length := pageRange(executable, size)
	return unix.Mprotect(unsafe.Slice((*byte)(unsafe.Pointer(start)), length), prot)
}
