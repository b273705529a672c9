package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name              string
		threads, parallel int
		cores             int
		want              Plan
	}{
		{name: "eight cores defaults", cores: 8, want: Plan{Threads: 4, Parallel: 2}},
		{name: "three cores clamps threads", cores: 3, want: Plan{Threads: 2, Parallel: 1}},
		{name: "single core", cores: 1, want: Plan{Threads: 2, Parallel: 1}},
		{name: "requested threads", threads: 6, cores: 8, want: Plan{Threads: 6, Parallel: 1}},
		{name: "requested parallel", parallel: 5, cores: 8, want: Plan{Threads: 4, Parallel: 5}},
		{name: "oversubscribe allowed", threads: 32, parallel: 4, cores: 2, want: Plan{Threads: 32, Parallel: 4}},
		{name: "sixteen cores", cores: 16, want: Plan{Threads: 8, Parallel: 2}},
		{name: "unknown cores fall back", cores: 0, want: Plan{Threads: 2, Parallel: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.threads, tt.parallel, tt.cores))
		})
	}
}

func TestComputeAlwaysPositive(t *testing.T) {
	for cores := -2; cores <= 64; cores++ {
		p := Compute(0, 0, cores)
		assert.GreaterOrEqual(t, p.Threads, 2)
		assert.GreaterOrEqual(t, p.Parallel, 1)
	}
}

func TestDetectCores(t *testing.T) {
	assert.Positive(t, DetectCores())
}

func TestUsableCoresPrefersSmallerCount(t *testing.T) {
	assert.Equal(t, 2, usableCores(64, 2), "affinity mask limits the host count")
	assert.Equal(t, 4, usableCores(4, 8))
	assert.Equal(t, 6, usableCores(0, 6))
	assert.Equal(t, 12, usableCores(12, 0))
	assert.Equal(t, FallbackCores, usableCores(0, 0))
}
