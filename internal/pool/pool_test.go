package pool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunPreservesResultOrder(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	results := Run(items, 8, func(n int) int {
		return n * n
	})

	require := assert.New(t)
	require.Len(results, len(items))
	for i, r := range results {
		require.Equal(i*i, r)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	items := make([]int, 50)
	var current, max int64

	Run(items, 4, func(int) int {
		n := atomic.AddInt64(&current, 1)
		for {
			m := atomic.LoadInt64(&max)
			if n <= m || atomic.CompareAndSwapInt64(&max, m, n) {
				break
			}
		}
		atomic.AddInt64(&current, -1)
		return 0
	})

	assert.LessOrEqual(t, max, int64(4))
}

func TestRunZeroWorkersTreatedAsOne(t *testing.T) {
	results := Run([]int{1, 2, 3}, 0, func(n int) int { return n + 1 })
	assert.Equal(t, []int{2, 3, 4}, results)
}

func TestRunEmptyInput(t *testing.T) {
	results := Run([]int{}, 4, func(n int) int { return n })
	assert.Empty(t, results)
}
