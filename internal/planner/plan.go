// Package planner derives per-job thread counts and job parallelism from the
// host's core count.
package planner

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// FallbackCores is used when the core count cannot be detected.
const FallbackCores = 4

// Plan is the resolved thread and parallelism pair for one batch.
type Plan struct {
	Threads  int
	Parallel int
}

// Compute resolves threads-per-job and concurrent jobs. A requested value
// <= 0 means "not requested"; requested values are used as-is.
func Compute(requestedThreads, requestedParallel, detectedCores int) Plan {
	if detectedCores <= 0 {
		detectedCores = FallbackCores
	}

	threads := requestedThreads
	if threads <= 0 {
		threads = max(2, detectedCores/2)
	}

	parallel := requestedParallel
	if parallel <= 0 {
		parallel = max(1, detectedCores/threads)
	}

	return Plan{Threads: threads, Parallel: parallel}
}

// DetectCores returns the usable core count. runtime.NumCPU honours the
// process affinity mask, so a container pinned to fewer cores than cpuid
// reports gets the smaller value.
func DetectCores() int {
	return usableCores(cpuid.CPU.LogicalCores, runtime.NumCPU())
}

func usableCores(hostCores, affinityCores int) int {
	switch {
	case hostCores > 0 && affinityCores > 0:
		return min(hostCores, affinityCores)
	case affinityCores > 0:
		return affinityCores
	case hostCores > 0:
		return hostCores
	default:
		return FallbackCores
	}
}
