package platform

import (
	"fmt"
	"math/bits"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/tetratelabs/wxmem/internal/features"
)

var hugePageConfigs []hugePageConfig

type hugePageConfig struct {
	size int
	flag int
}

func init() {
	dirents, err := os.ReadDir("/sys/kernel/mm/hugepages/")
	if err != nil {
		return
	}

	for _, dirent := range dirents {
		name := dirent.Name()
		if !strings.HasPrefix(name, "hugepages-") {
			continue
		}
		if !strings.HasSuffix(name, "kB") {
			continue
		}
		n, err := strconv.ParseUint(name[10:len(name)-2], 10, 64)
		if err != nil {
			continue
		}
		if bits.OnesCount64(n) != 1 {
			continue
		}
		n *= 1024
		hugePageConfigs = append(hugePageConfigs, hugePageConfig{
			size: int(n),
			flag: bits.TrailingZeros64(n)<<unix.MFD_HUGE_SHIFT | unix.MFD_HUGETLB,
		})
	}

	sort.Slice(hugePageConfigs, func(i, j int) bool {
		return hugePageConfigs[i].size > hugePageConfigs[j].size
	})
}

// SupportsDualMapping returns true as memfd_create can back two views.
func SupportsDualMapping() bool {
	return true
}

func mmapDualSegment(size int) (*Segment, error) {
	if features.Have(features.HugePages) {
		for _, hugePageConfig := range hugePageConfigs {
			if (size & (hugePageConfig.size - 1)) != 0 {
				continue
			}
			s, err := mmapMemfdSegment(size, hugePageConfig.flag)
			if err != nil {
				continue
			}
			return s, nil
		}
	}
	return mmapMemfdSegment(size, 0)
}

// mmapMemfdSegment maps an anonymous shared file twice: read-write and
// read-execute. Writes through one view are visible through the other.
//
// See https://man7.org/linux/man-pages/man2/memfd_create.2.html
func mmapMemfdSegment(size, memfdFlags int) (*Segment, error) {
	fd, err := unix.MemfdCreate("wxmem-jit", unix.MFD_CLOEXEC|memfdFlags)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	// The mappings keep the file alive.
	defer unix.Close(fd)

	if err = unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, fmt.Errorf("ftruncate memfd: %w", err)
	}
	w, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap writable view: %w", err)
	}
	x, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_EXEC, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Munmap(w)
		return nil, fmt.Errorf("mmap executable view: %w", err)
	}
	return &Segment{Writable: w, Executable: x}, nil
}
