// Package hardware describes the compute resources an AutoML instance may use.
//
// A Context is a value object owned by one instance. Nothing in this package mutates
// process-wide state, so several instances can be built concurrently with different limits.
package hardware

import (
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidGPUIDs is returned for a malformed GPU id list.
var ErrInvalidGPUIDs = errors.New("invalid gpu ids")

const nvidiaGPUDir = "/proc/driver/nvidia/gpus"

// Context holds the detected resources and the limits granted to one instance.
type Context struct {
	CPUCount int
	CPULimit int
	// GPUs are the detected device indices.
	GPUs []int
	// Threads is the clamped worker count models and readers must use.
	Threads int
}

// Detect inspects the host. cpuLimit <= 0 means no limit.
func Detect(cpuLimit int) Context {
	cpus := runtime.NumCPU()

	return New(cpus, cpuLimit, detectGPUs())
}

// New builds a context from known values.
func New(cpuCount, cpuLimit int, gpus []int) Context {
	if cpuCount < 1 {
		cpuCount = 1
	}

	if cpuLimit <= 0 || cpuLimit > cpuCount {
		cpuLimit = cpuCount
	}

	return Context{
		CPUCount: cpuCount,
		CPULimit: cpuLimit,
		GPUs:     gpus,
		Threads:  cpuLimit,
	}
}

// ClampThreads bounds a requested thread count by min(cpu count, cpu limit). Non-positive requests get the bound.
func (c Context) ClampThreads(requested int) int {
	bound := c.CPUCount
	if c.CPULimit > 0 && c.CPULimit < bound {
		bound = c.CPULimit
	}

	if requested <= 0 || requested > bound {
		return bound
	}

	return requested
}

// HasGPU reports whether at least one device was detected.
func (c Context) HasGPU() bool { return len(c.GPUs) > 0 }

// ResolveGPUIDs turns a user gpu id string into device indices.
// "all" selects every detected device; "", "none" and "cpu" select none.
func (c Context) ResolveGPUIDs(value string) ([]int, error) {
	value = strings.TrimSpace(strings.ToLower(value))

	switch value {
	case "", "none", "cpu":
		return nil, nil
	case "all":
		return append([]int(nil), c.GPUs...), nil
	}

	ids, err := parseIDs(value)
	if err != nil {
		return nil, err
	}

	return ids, nil
}

func parseIDs(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	ids := make([]int, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		id, err := strconv.Atoi(p)
		if err != nil || id < 0 {
			return nil, errors.Wrap(ErrInvalidGPUIDs, p)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

func detectGPUs() []int {
	if visible, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		ids, err := parseIDs(visible)
		if err != nil {
			return nil
		}

		return ids
	}

	entries, err := os.ReadDir(nvidiaGPUDir)
	if err != nil {
		return nil
	}

	ids := make([]int, 0, len(entries))
	for i := range entries {
		ids = append(ids, i)
	}

	sort.Ints(ids)

	return ids
}
