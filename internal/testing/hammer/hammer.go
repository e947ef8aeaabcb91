// Package hammer runs a test body from many goroutines released at once, to
// shake out races in code that serializes on a lock.
package hammer

import (
	"runtime"
	"sync"
	"testing"
)

// Hammer invokes a test concurrently in P goroutines, N times per goroutine.
//
// Here's an example:
//
//	P, N := 8, 1000
//	if testing.Short() {
//		P, N = 4, 100
//	}
//
//	hammer.NewHammer(t, P, N).Run(func(p, n int) {
//		// toggle the region owned by p, or a shared one
//	}, nil)
//
//	if t.Failed() {
//		return
//	}
type Hammer interface {
	// Run calls test(p, n) for every goroutine p in [0, P) and iteration n in
	// [0, N). onRunning, if not nil, is called once every goroutine has
	// started and before any of them calls test.
	//
	// A panic or require failure inside test fails the calling test.
	Run(test func(p, n int), onRunning func())
}

// NewHammer returns a Hammer with P goroutines doing N iterations each.
func NewHammer(t *testing.T, P, N int) Hammer {
	return &hammer{t: t, P: P, N: N}
}

type hammer struct {
	t    *testing.T
	P, N int
}

// Run implements Hammer.Run
func (h *hammer) Run(test func(p, n int), onRunning func()) {
	// Fewer procs than goroutines forces the scheduler to interleave them.
	if procs := h.P / 2; procs > 0 {
		defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(procs))
	}

	var started, finished sync.WaitGroup
	gate := make(chan struct{})

	started.Add(h.P)
	finished.Add(h.P)
	for p := 0; p < h.P; p++ {
		p := p
		go func() {
			defer finished.Done()
			defer func() {
				// require failures end the goroutine with runtime.Goexit, which
				// recover does not see. Anything else is reported here.
				if recovered := recover(); recovered != nil {
					h.t.Error(recovered)
				}
			}()
			started.Done()
			<-gate
			for n := 0; n < h.N; n++ {
				test(p, n)
			}
		}()
	}

	started.Wait()
	if onRunning != nil {
		onRunning()
	}
	close(gate)
	finished.Wait()
}
