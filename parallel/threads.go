// Package parallel contains the bounded ForEach worker pool and thread sizing used by training and sampling.
package parallel

import "runtime"

import "github.com/klauspost/cpuid/v2"

// Threads reports the number of worker goroutines to use for batch parallel work.
// Physical cores are preferred over hyperthreads.
func Threads() int {
	n := cpuid.CPU.PhysicalCores
	if n <= 0 {
		n = cpuid.CPU.LogicalCores
	}
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if max := runtime.GOMAXPROCS(0); n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Resolve maps a configured thread count to an effective one, 0 meaning Threads().
func Resolve(threads int) int {
	if threads <= 0 {
		return Threads()
	}
	return threads
}
