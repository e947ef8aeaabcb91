package platform

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHugePageConfigs(t *testing.T) {
	dirents, err := os.ReadDir("/sys/kernel/mm/hugepages/")
	if err != nil {
		require.Empty(t, hugePageConfigs)
		return
	}
	expected := 0
	for _, dirent := range dirents {
		if strings.HasPrefix(dirent.Name(), "hugepages-") {
			expected++
		}
	}
	require.Equal(t, expected, len(hugePageConfigs))

	for _, hugePageConfig := range hugePageConfigs {
		require.NotEqual(t, 0, hugePageConfig.size)
		require.NotEqual(t, 0, hugePageConfig.flag)
	}

	for i := 1; i < len(hugePageConfigs); i++ {
		require.True(t, hugePageConfigs[i-1].size > hugePageConfigs[i].size)
	}
}

func TestMmapDualSegment(t *testing.T) {
	require.True(t, SupportsDualMapping())

	s, err := MmapDualSegment(len(testCode))
	require.NoError(t, err)
	defer func() { require.NoError(t, MunmapCodeSegment(s)) }()

	require.True(t, s.Dual())
	require.Equal(t, len(s.Writable), len(s.Executable))

	// The writable view stays writable whatever the executable view's
	// protection is, and writes show through the executable view.
	require.NoError(t, Protect(s.WritableAddress(), s.ExecutableAddress(), s.Size(), true))
	copy(s.Writable, testCode)
	require.Equal(t, testCode, s.Executable[:len(testCode)])

	require.NoError(t, Protect(s.WritableAddress(), s.ExecutableAddress(), s.Size(), false))
	s.Writable[0] ^= 0xff
	require.Equal(t, s.Writable[0], s.Executable[0])
}

func TestMmapCodeSegment_dualByDefault(t *testing.T) {
	s, err := MmapCodeSegment(1)
	require.NoError(t, err)
	defer func() { require.NoError(t, MunmapCodeSegment(s)) }()
	require.True(t, s.Dual())
}
