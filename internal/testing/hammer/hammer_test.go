package hammer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHammer_Run(t *testing.T) {
	const P, N = 4, 25

	var mux sync.Mutex
	calls := map[int]int{}
	onRunningCalls := 0
	NewHammer(t, P, N).Run(func(p, n int) {
		mux.Lock()
		defer mux.Unlock()
		require.Equal(t, 1, onRunningCalls)
		require.Equal(t, calls[p], n)
		calls[p]++
	}, func() {
		onRunningCalls++
	})

	require.Equal(t, map[int]int{0: N, 1: N, 2: N, 3: N}, calls)
}
