package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionFromBuildInfo(t *testing.T) {
	tests := []struct {
		name     string
		info     *debug.BuildInfo
		expected string
	}{
		{
			name: "dependency",
			info: &debug.BuildInfo{
				Main: debug.Module{Path: "example.com/jit", Version: "v1.0.0"},
				Deps: []*debug.Module{{Path: "github.com/tetratelabs/wxmem", Version: "v0.3.1"}},
			},
			expected: "v0.3.1",
		},
		{
			name:     "main module",
			info:     &debug.BuildInfo{Main: debug.Module{Path: "github.com/tetratelabs/wxmem", Version: "v0.4.0"}},
			expected: "v0.4.0",
		},
		{
			name:     "devel",
			info:     &debug.BuildInfo{Main: debug.Module{Path: "github.com/tetratelabs/wxmem", Version: "(devel)"}},
			expected: Default,
		},
		{
			name:     "absent",
			info:     &debug.BuildInfo{Main: debug.Module{Path: "example.com/jit", Version: "v1.0.0"}},
			expected: Default,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, versionFromBuildInfo(tc.info))
		})
	}
}

func TestGetWxmemVersion_ldflags(t *testing.T) {
	defer func(v string) { version = v }(version)
	version = "v9.9.9"
	require.Equal(t, "v9.9.9", GetWxmemVersion())
}
