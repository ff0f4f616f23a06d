package thinking

import "sync"

// runParallel calls each fn concurrently and returns their results in the
// same order the thunks were given, fanning in via a WaitGroup — the same
// pattern pkg/executor uses for wave execution. A fn that wants its error
// reflected in the aggregate result is expected to fold it into T itself,
// mirroring the "catch individual check failures, keep going" behavior the
// tool is grounded on.
func runParallel[T any](fns ...func() T) []T {
	results := make([]T, len(fns))
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func(i int, fn func() T) {
			defer wg.Done()
			results[i] = fn()
		}(i, fn)
	}
	wg.Wait()
	return results
}
