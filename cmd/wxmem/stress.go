package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tetratelabs/wxmem"
)

// stampSize is the length of what each worker writes per iteration.
const stampSize = 8

type stressOptions struct {
	regions    int
	workers    int
	iterations int
	size       int
}

type stressMetric struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

type stressReport struct {
	Regions    int            `json:"regions"`
	Workers    int            `json:"workers"`
	Iterations int            `json:"iterations"`
	Duration   string         `json:"duration"`
	Metrics    []stressMetric `json:"metrics"`
}

func newStressCmd(e *env) *cobra.Command {
	o := &stressOptions{}
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Toggle write access on shared code regions from many goroutines",
		Long: `stress allocates code regions and has every worker repeatedly take nested
write access to them and write into them. Afterwards every region must be
executable again and hold each worker's last write. The tracker's metrics are
printed at the end.`,
		Args: cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			switch {
			case o.regions <= 0:
				return fmt.Errorf("--regions must be positive: %d", o.regions)
			case o.workers <= 0:
				return fmt.Errorf("--workers must be positive: %d", o.workers)
			case o.iterations < 0:
				return fmt.Errorf("--iterations must not be negative: %d", o.iterations)
			case o.size < o.workers*stampSize:
				return fmt.Errorf("--size must hold %d bytes per worker: %d", stampSize, o.size)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStress(cmd.Context(), e, o)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&o.regions, "regions", 4, "number of code regions")
	flags.IntVar(&o.workers, "workers", 8, "number of concurrent workers")
	flags.IntVar(&o.iterations, "iterations", 1000, "write access cycles per worker")
	flags.IntVar(&o.size, "size", 4096, "minimum size of each code region in bytes")
	return cmd
}

func runStress(ctx context.Context, e *env, o *stressOptions) (err error) {
	registry := prometheus.NewRegistry()
	tracker, err := wxmem.NewTrackerWithConfig(wxmem.NewTrackerConfig().
		WithLogger(e.logger).
		WithMetricsRegisterer(registry))
	if err != nil {
		return err
	}

	regions := make([]*wxmem.CodeRegion, 0, o.regions)
	defer func() {
		for _, r := range regions {
			err = multierr.Append(err, r.Close())
		}
	}()
	for i := 0; i < o.regions; i++ {
		r, allocErr := tracker.AllocateRegion(o.size)
		if allocErr != nil {
			return allocErr
		}
		regions = append(regions, r)
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < o.workers; w++ {
		w := w
		g.Go(func() error {
			return stressWorker(ctx, tracker, regions, w, o.iterations)
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err = verifyStress(tracker, regions, o); err != nil {
		return err
	}
	e.logger.WithField("duration", elapsed).Info("stress run completed")

	report := stressReport{
		Regions:    o.regions,
		Workers:    o.workers,
		Iterations: o.iterations,
		Duration:   elapsed.String(),
	}
	if report.Metrics, err = gatherMetrics(registry); err != nil {
		return err
	}
	if e.jsonOut() {
		return e.printJSON(report)
	}
	printStressReport(e, &report)
	return nil
}

// stressWorker writes its stamp at its own offset of every region in turn,
// nesting the write inside an outer hold of the same region.
func stressWorker(ctx context.Context, tracker *wxmem.Tracker, regions []*wxmem.CodeRegion, worker, iterations int) error {
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := regions[(worker+i)%len(regions)]
		stamp := workerStamp(worker, i)
		err := tracker.WithWriteAccess(r.WritableAddress(), func() error {
			return r.Write(worker*stampSize, stamp)
		})
		if err != nil {
			return fmt.Errorf("worker %d: %w", worker, err)
		}
	}
	return nil
}

func workerStamp(worker, iteration int) []byte {
	stamp := make([]byte, stampSize)
	binary.LittleEndian.PutUint32(stamp, uint32(worker))
	binary.LittleEndian.PutUint32(stamp[4:], uint32(iteration))
	return stamp
}

// verifyStress checks that every region is idle again and that its
// executable view shows the last stamp each worker wrote into it.
func verifyStress(tracker *wxmem.Tracker, regions []*wxmem.CodeRegion, o *stressOptions) error {
	for _, info := range tracker.Regions() {
		if info.Held() {
			return fmt.Errorf("JIT region %#x still held at depth %d", info.WritableAddress, info.Depth)
		}
	}
	for w := 0; w < o.workers; w++ {
		for ri, r := range regions {
			last := -1
			for i := o.iterations - 1; i >= 0; i-- {
				if (w+i)%len(regions) == ri {
					last = i
					break
				}
			}
			if last < 0 {
				continue
			}
			got := r.Executable()[w*stampSize : (w+1)*stampSize]
			if want := workerStamp(w, last); !bytes.Equal(got, want) {
				return fmt.Errorf("JIT region %#x: worker %d wrote %x, executable view shows %x",
					r.WritableAddress(), w, want, got)
			}
		}
	}
	return nil
}

func gatherMetrics(g prometheus.Gatherer) ([]stressMetric, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	var ret []stressMetric
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			sm := stressMetric{Name: mf.GetName()}
			if len(m.GetLabel()) > 0 {
				sm.Labels = map[string]string{}
				for _, l := range m.GetLabel() {
					sm.Labels[l.GetName()] = l.GetValue()
				}
			}
			switch {
			case m.GetCounter() != nil:
				sm.Value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sm.Value = m.GetGauge().GetValue()
			}
			ret = append(ret, sm)
		}
	}
	return ret, nil
}

func formatLabels(labels map[string]string) string {
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func printStressReport(e *env, report *stressReport) {
	fmt.Fprintf(e.stdOut, "%d workers x %d iterations over %d regions in %s\n",
		report.Workers, report.Iterations, report.Regions, report.Duration)

	table := tablewriter.NewWriter(e.stdOut)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Metric", "Labels", "Value"})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, m := range report.Metrics {
		table.Append([]string{m.Name, formatLabels(m.Labels), strconv.FormatFloat(m.Value, 'f', -1, 64)})
	}
	table.Render()
}
