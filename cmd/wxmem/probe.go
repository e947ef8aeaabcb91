package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tetratelabs/wxmem"
	"github.com/tetratelabs/wxmem/internal/features"
	"github.com/tetratelabs/wxmem/internal/platform"
)

type probeResult struct {
	Value       int64 `json:"value"`
	DualMapping bool  `json:"dual_mapping"`
}

func newProbeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Emit and run a function in a W^X code region",
		Long: `probe allocates one code region, writes a function returning ` + fmt.Sprint(wxmem.ProbeValue) + `
through its writable view, runs it through its executable view and releases
the region. It fails if this process cannot run JIT code.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return runProbe(e)
		},
	}
}

func runProbe(e *env) error {
	tracker, err := wxmem.NewTrackerWithConfig(wxmem.NewTrackerConfig().WithLogger(e.logger))
	if err != nil {
		return err
	}

	value, err := wxmem.Probe(tracker)
	if err != nil {
		return fmt.Errorf("JIT probe failed: %w", err)
	}
	if value != wxmem.ProbeValue {
		return fmt.Errorf("JIT probe returned %d, expected %d", value, wxmem.ProbeValue)
	}

	result := probeResult{
		Value:       value,
		DualMapping: platform.SupportsDualMapping() && !features.Have(features.SingleMap),
	}
	e.logger.WithField("dual_mapping", result.DualMapping).Info("JIT execution completed successfully")
	if e.jsonOut() {
		return e.printJSON(result)
	}
	_, err = fmt.Fprintf(e.stdOut, "JIT probe returned %d (dual mapping: %t)\n", result.Value, result.DualMapping)
	return err
}
