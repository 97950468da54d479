// Package pool runs a bounded number of goroutines over a slice of work
// items, collecting one result per item in input order. Both the extraction
// and assembly phases use it so neither ever spawns unbounded goroutines
// against a possibly-huge batch.
package pool

import "sync"

// Run executes fn(items[i]) for every i, using at most workers goroutines
// at a time, and returns results in the same order as items. A workers
// value below 1 is treated as 1.
func Run[T, R any](items []T, workers int, fn func(T) R) []R {
	if workers < 1 {
		workers = 1
	}
	results := make([]R, len(items))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	wg.Add(len(items))

	for i, item := range items {
		sem <- struct{}{}
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = fn(item)
		}(i, item)
	}

	wg.Wait()
	return results
}
