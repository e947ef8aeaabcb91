//go:build unix

package platform

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/wxmem/internal/features"
)

var testCode, _ = io.ReadAll(io.LimitReader(rand.Reader, 8*1024))

func TestMmapSingleSegment(t *testing.T) {
	s, err := MmapSingleSegment(len(testCode))
	require.NoError(t, err)
	defer func() { require.NoError(t, MunmapCodeSegment(s)) }()

	require.False(t, s.Dual())
	require.Equal(t, roundUpToPage(len(testCode)), s.Size())
	require.Zero(t, s.WritableAddress()%uintptr(pageSize))

	// A fresh segment is executable, so make it writable before copying.
	require.NoError(t, Protect(s.WritableAddress(), s.ExecutableAddress(), s.Size(), true))
	copy(s.Writable, testCode)
	require.NoError(t, Protect(s.WritableAddress(), s.ExecutableAddress(), s.Size(), false))
	require.Equal(t, testCode, s.Executable[:len(testCode)])
}

func TestMmapCodeSegment_singleMapFeature(t *testing.T) {
	features.Enable(features.SingleMap)
	defer features.Disable(features.SingleMap)

	s, err := MmapCodeSegment(1)
	require.NoError(t, err)
	defer func() { require.NoError(t, MunmapCodeSegment(s)) }()

	require.False(t, s.Dual())
	require.Equal(t, pageSize, s.Size())
}

func TestMunmapCodeSegment(t *testing.T) {
	s, err := MmapCodeSegment(len(testCode))
	require.NoError(t, err)
	// First munmap should succeed.
	require.NoError(t, MunmapCodeSegment(s))
	// Double munmap should fail.
	require.Error(t, MunmapCodeSegment(s))
}

func TestBUG(t *testing.T) {
	tests := []struct {
		name     string
		fn       func()
		expected string
	}{
		{
			name:     "MmapCodeSegment",
			fn:       func() { _, _ = MmapCodeSegment(0) },
			expected: "BUG: MmapCodeSegment with non-positive size",
		},
		{
			name:     "MmapDualSegment",
			fn:       func() { _, _ = MmapDualSegment(-1) },
			expected: "BUG: MmapDualSegment with non-positive size",
		},
		{
			name:     "MmapSingleSegment",
			fn:       func() { _, _ = MmapSingleSegment(0) },
			expected: "BUG: MmapSingleSegment with non-positive size",
		},
		{
			name:     "MunmapCodeSegment",
			fn:       func() { _ = MunmapCodeSegment(&Segment{}) },
			expected: "BUG: MunmapCodeSegment with zero length",
		},
		{
			name:     "Protect",
			fn:       func() { _ = Protect(1, 1, 0, true) },
			expected: "BUG: Protect with non-positive size",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.PanicsWithError(t, tc.expected, tc.fn)
		})
	}
}

func TestPageRange(t *testing.T) {
	ps := uintptr(pageSize)
	tests := []struct {
		name           string
		addr           uintptr
		size           int
		expectedStart  uintptr
		expectedLength int
	}{
		{name: "aligned", addr: 4 * ps, size: pageSize, expectedStart: 4 * ps, expectedLength: pageSize},
		{name: "one byte", addr: 4*ps + 10, size: 1, expectedStart: 4 * ps, expectedLength: pageSize},
		{name: "straddles", addr: 4*ps + ps - 1, size: 2, expectedStart: 4 * ps, expectedLength: 2 * pageSize},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			start, length := pageRange(tc.addr, tc.size)
			require.Equal(t, tc.expectedStart, start)
			require.Equal(t, tc.expectedLength, length)
		})
	}
}
