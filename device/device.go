// Package device describes the compute hardware a run executes on
package device

import "fmt"

import "github.com/klauspost/cpuid/v2"
import "github.com/mongodb/grip/message"
import "github.com/pbnjay/memory"

import "github.com/neurlang/rectifiedflow/parallel"

// GPU is one CUDA device.
type GPU struct {
	Index       int    `json:"index" yaml:"index"`
	Name        string `json:"name" yaml:"name"`
	MemoryBytes int64  `json:"memory_bytes" yaml:"memory_bytes"`
	Compute     string `json:"compute" yaml:"compute"`
	ClockKHz    int    `json:"clock_khz" yaml:"clock_khz"`
}

// Info summarizes the host.
type Info struct {
	Kind        string   `json:"kind" yaml:"kind"` // "cpu" or "cuda"
	Name        string   `json:"name" yaml:"name"`
	Vendor      string   `json:"vendor" yaml:"vendor"`
	Cores       int      `json:"cores" yaml:"cores"`
	Threads     int      `json:"threads" yaml:"threads"`
	Workers     int      `json:"workers" yaml:"workers"`
	MemoryBytes uint64   `json:"memory_bytes" yaml:"memory_bytes"`
	CacheL2     int      `json:"cache_l2" yaml:"cache_l2"`
	Vectorized  bool     `json:"vectorized" yaml:"vectorized"`
	Features    []string `json:"features" yaml:"features"`
	Driver      int      `json:"driver,omitempty" yaml:"driver,omitempty"`
	GPUs        []GPU    `json:"gpus,omitempty" yaml:"gpus,omitempty"`
}

// Vectorized reports whether the CPU has the wide vector units the
// gonum kernels benefit from.
func Vectorized() bool {
	return cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) || cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ)
}

// Describe inspects the CPU and, in cuda builds, the CUDA devices.
func Describe() Info {
	info := Info{
		Kind:        "cpu",
		Name:        cpuid.CPU.BrandName,
		Vendor:      cpuid.CPU.VendorString,
		Cores:       cpuid.CPU.PhysicalCores,
		Threads:     cpuid.CPU.LogicalCores,
		Workers:     parallel.Threads(),
		MemoryBytes: memory.TotalMemory(),
		CacheL2:     cpuid.CPU.Cache.L2,
		Vectorized:  Vectorized(),
		Features:    cpuid.CPU.FeatureSet(),
	}
	gpus, driver, err := cudaDevices()
	if err == nil && len(gpus) > 0 {
		info.Kind = "cuda"
		info.GPUs = gpus
		info.Driver = driver
	}
	return info
}

// Fields formats the summary for structured logging.
func (i Info) Fields() message.Fields {
	f := message.Fields{
		"kind":       i.Kind,
		"cpu":        i.Name,
		"cores":      i.Cores,
		"threads":    i.Threads,
		"workers":    i.Workers,
		"memory_mb":  i.MemoryBytes >> 20,
		"vectorized": i.Vectorized,
	}
	for _, g := range i.GPUs {
		f[fmt.Sprintf("gpu%d", g.Index)] = fmt.Sprintf("%s (%d MB, sm %s)", g.Name, g.MemoryBytes>>20, g.Compute)
	}
	return f
}

// String is a one line summary.
func (i Info) String() string {
	s := fmt.Sprintf("%s: %s, %d cores/%d threads, %d MB", i.Kind, i.Name, i.Cores, i.Threads, i.MemoryBytes>>20)
	for _, g := range i.GPUs {
		s += fmt.Sprintf("; gpu%d %s", g.Index, g.Name)
	}
	return s
}
