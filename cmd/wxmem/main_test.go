package main

import (
	"bytes"
	"context"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/wxmem"
	"github.com/tetratelabs/wxmem/internal/version"
)

func runMain(t *testing.T, args []string) (int, string, string) {
	t.Helper()
	stdOut := &bytes.Buffer{}
	stdErr := &bytes.Buffer{}
	exitCode := doMain(context.Background(), args, stdOut, stdErr)
	return exitCode, stdOut.String(), stdErr.String()
}

func requireJITSupported(t *testing.T) {
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
	default:
		t.Skip("code regions are not mapped on " + runtime.GOOS)
	}
}

func TestHelp(t *testing.T) {
	exitCode, stdOut, _ := runMain(t, []string{"-h"})
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdOut, "Usage:\n  wxmem [command]")
	require.Contains(t, stdOut, "WXMEMFEATURES")
}

func TestVersion(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, []string{"version"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, version.GetWxmemVersion()+"\n", stdOut)
	require.Empty(t, stdErr)

	exitCode, stdOut, _ = runMain(t, []string{"version", "--json"})
	require.Equal(t, 0, exitCode)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdOut), &got))
	require.Equal(t, map[string]string{"version": version.GetWxmemVersion()}, got)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		message string
	}{
		{
			name:    "invalid log level",
			args:    []string{"version", "--log-level", "loud"},
			message: "invalid log level: loud",
		},
		{
			name:    "no regions",
			args:    []string{"stress", "--regions", "0"},
			message: "--regions must be positive: 0",
		},
		{
			name:    "no workers",
			args:    []string{"stress", "--workers", "0"},
			message: "--workers must be positive: 0",
		},
		{
			name:    "negative iterations",
			args:    []string{"stress", "--iterations", "-1"},
			message: "--iterations must not be negative: -1",
		},
		{
			name:    "region too small",
			args:    []string{"stress", "--workers", "4", "--size", "16"},
			message: "--size must hold 8 bytes per worker: 16",
		},
		{
			name:    "unknown command",
			args:    []string{"compile"},
			message: `unknown command "compile"`,
		},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			exitCode, _, stdErr := runMain(t, tt.args)
			require.Equal(t, 1, exitCode)
			require.Contains(t, stdErr, tt.message)
		})
	}
}

func TestStress(t *testing.T) {
	requireJITSupported(t)

	exitCode, stdOut, stdErr := runMain(t, []string{
		"stress", "--json", "--regions", "3", "--workers", "4", "--iterations", "50",
	})
	require.Equal(t, 0, exitCode, stdErr)

	var report stressReport
	require.NoError(t, json.Unmarshal([]byte(stdOut), &report))
	require.Equal(t, 3, report.Regions)
	require.Equal(t, 4, report.Workers)
	require.Equal(t, 50, report.Iterations)

	values := map[string]float64{}
	for _, m := range report.Metrics {
		values[m.Name+"{"+formatLabels(m.Labels)+"}"] = m.Value
	}
	writable := values["wxmem_jit_protection_changes_total{protection=writable}"]
	require.True(t, writable > 0)
	require.Equal(t, writable, values["wxmem_jit_protection_changes_total{protection=executable}"])

	// Each iteration takes write access twice: once around the write and once
	// inside it.
	acquired := writable + values["wxmem_jit_nested_toggles_total{direction=acquire}"]
	require.Equal(t, float64(2*4*50), acquired)
	require.Equal(t, values["wxmem_jit_nested_toggles_total{direction=acquire}"],
		values["wxmem_jit_nested_toggles_total{direction=release}"])

	// The report is gathered before the regions are closed.
	require.Equal(t, 3.0, values["wxmem_jit_regions{}"])
}

func TestStress_table(t *testing.T) {
	requireJITSupported(t)

	exitCode, stdOut, stdErr := runMain(t, []string{"stress", "--regions", "1", "--workers", "2", "--iterations", "3"})
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdOut, "2 workers x 3 iterations over 1 regions in ")
	require.Contains(t, stdOut, "wxmem_jit_protection_changes_total")
	require.Contains(t, stdOut, "protection=writable")
}

func TestProbe(t *testing.T) {
	requireJITSupported(t)
	if runtime.GOARCH != "amd64" {
		t.Skip("probe runs emitted code on amd64 only")
	}

	exitCode, stdOut, stdErr := runMain(t, []string{"probe", "--json", "--log-format", "json"})
	require.Equal(t, 0, exitCode, stdErr)

	var result probeResult
	require.NoError(t, json.Unmarshal([]byte(stdOut), &result))
	require.Equal(t, int64(wxmem.ProbeValue), result.Value)
	require.Equal(t, runtime.GOOS == "linux", result.DualMapping)
	require.Contains(t, stdErr, "JIT execution completed successfully")
}
