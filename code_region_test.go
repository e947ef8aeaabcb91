//go:build unix

package wxmem

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracker_AllocateRegion(t *testing.T) {
	tracker := NewTracker()

	region, err := tracker.AllocateRegion(100)
	require.NoError(t, err)
	require.Equal(t, os.Getpagesize(), region.Size())
	require.Equal(t, 1, tracker.Len())

	info, ok := tracker.Lookup(region.WritableAddress())
	require.True(t, ok)
	require.Equal(t, region.ExecutableAddress(), info.ExecutableAddress)
	require.Equal(t, uintptr(region.Size()), info.Size)
	require.Equal(t, region.Dual(), info.Dual())

	code := []byte{0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, region.Write(16, code))
	require.Equal(t, code, region.Executable()[16:20])

	info, _ = tracker.Lookup(region.WritableAddress())
	require.False(t, info.Held())

	require.NoError(t, region.Close())
	require.Zero(t, tracker.Len())
}

func TestCodeRegion_Write_outOfRange(t *testing.T) {
	tracker := NewTracker()
	region, err := tracker.AllocateRegion(1)
	require.NoError(t, err)
	defer func() { require.NoError(t, region.Close()) }()

	size := region.Size()
	for _, offset := range []int{-1, size, size - 1} {
		err = region.Write(offset, []byte{1, 2})
		require.Error(t, err, "offset %d", offset)
	}
	require.NoError(t, region.Write(size-2, []byte{1, 2}))
}

func TestCodeRegion_Close_whileHeld(t *testing.T) {
	tracker := NewTracker()
	region, err := tracker.AllocateRegion(1)
	require.NoError(t, err)

	tracker.JITRegionWriteEnableExecuteDisable(region.WritableAddress())
	err = capturePanic(func() { _ = region.Close() })
	require.ErrorIs(t, err, ErrRegionStillHeld)

	tracker.JITRegionWriteDisableExecuteEnable(region.WritableAddress())
	require.NoError(t, region.Close())
}

func TestTracker_AllocateRegion_invalidSize(t *testing.T) {
	_, err := NewTracker().AllocateRegion(0)
	require.EqualError(t, err, "invalid code region size: 0")
}
