//go:build cuda

package device

import "fmt"

import "gorgonia.org/cu"

func cudaDevices() ([]GPU, int, error) {
	n, err := cu.NumDevices()
	if err != nil {
		return nil, 0, err
	}
	var out []GPU
	for d := 0; d < n; d++ {
		dev := cu.Device(d)
		name, err := dev.Name()
		if err != nil {
			return out, cu.Version(), err
		}
		mem, _ := dev.TotalMem()
		major, _ := dev.Attribute(cu.ComputeCapabilityMajor)
		minor, _ := dev.Attribute(cu.ComputeCapabilityMinor)
		clock, _ := dev.Attribute(cu.ClockRate)
		out = append(out, GPU{
			Index:       d,
			Name:        name,
			MemoryBytes: mem,
			Compute:     fmt.Sprintf("%d.%d", major, minor),
			ClockKHz:    clock,
		})
	}
	return out, cu.Version(), nil
}
